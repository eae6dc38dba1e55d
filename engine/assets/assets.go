package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/twinrender/engine/core"
)

type AssetType int

const (
	AssetTypeNone AssetType = iota
	AssetTypeShaderSource
	AssetTypeSpirv
	AssetTypeReflection
	AssetTypeImage
)

type AssetInfo struct {
	Path     string
	Type     AssetType
	Modified time.Time
}

/**
 * @brief Watches the shader directory and remembers which files changed since
 * the last time someone asked. Backends poll it between frames to rebuild
 * programs whose sources were edited.
 */
type AssetManager struct {
	assets  map[string]AssetInfo
	changed map[string]struct{}

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	started  bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		changed:  make(map[string]struct{}),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Initialize indexes every asset below assetsDir and starts watching it.
func (am *AssetManager) Initialize(assetsDir string) error {
	if err := am.watchRecursive(assetsDir, false); err != nil {
		return err
	}
	// Indexing is not a change.
	am.mutex.Lock()
	am.changed = make(map[string]struct{})
	am.mutex.Unlock()

	am.started = true
	go am.start()
	return nil
}

func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	am.isClosed = true
	if !am.started {
		return am.fsnotify.Close()
	}
	close(am.done)
	<-am.stopped
	return nil
}

// Lookup returns what is known about a file, keyed by its cleaned path.
func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.Clean(path)]
	return info, ok
}

// Changed reports whether path was written since the last call and clears
// the flag.
func (am *AssetManager) Changed(path string) bool {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	path = filepath.Clean(path)
	if _, ok := am.changed[path]; !ok {
		return false
	}
	delete(am.changed, path)
	return true
}

// MarkChanged flags a file as changed, as if the watcher had seen a write.
func (am *AssetManager) MarkChanged(path string) {
	am.handleFileEvent(path)
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e := <-am.fsnotify.Events:
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			// Editors often replace files instead of writing them in place.
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if am.handleFileEvent(e.Name) {
					var ctx core.EventContext
					core.EventFire(core.EVENT_CODE_SHADER_CHANGED, am, ctx)
				}
			}
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
			}

		case err := <-am.fsnotify.Errors:
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files it finds.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// handleFileEvent records a created or modified file. Returns false for files
// that are not assets.
func (am *AssetManager) handleFileEvent(path string) bool {
	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return false
	}
	path = filepath.Clean(path)

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path:     path,
		Type:     assetType,
		Modified: time.Now(),
	}
	am.changed[path] = struct{}{}
	return true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	path = filepath.Clean(path)
	delete(am.assets, path)
	delete(am.changed, path)
}

func determineAssetType(path string) AssetType {
	switch filepath.Ext(path) {
	case ".vert", ".tesc", ".tese", ".geom", ".frag", ".glsl":
		return AssetTypeShaderSource
	case ".spv":
		return AssetTypeSpirv
	case ".rfl":
		return AssetTypeReflection
	case ".png", ".bmp", ".tif", ".tiff":
		return AssetTypeImage
	default:
		return AssetTypeNone
	}
}
