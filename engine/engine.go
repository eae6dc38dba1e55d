package engine

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/twinrender/engine/assets"
	"github.com/spaghettifunk/twinrender/engine/config"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/platform"
	"github.com/spaghettifunk/twinrender/engine/renderer"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.Config
	isRunning    atomic.Bool
	isSuspended  bool
	platform     *platform.Platform
	assetManager *assets.AssetManager
	resources    *metadata.ResourceManager
	renderer     *renderer.Renderer
	stopRenderer func()
	width        uint32
	height       uint32
	clock        *core.Clock
	lastTime     float64
	frames       int
	// Set from the watcher goroutine, consumed between frames.
	shadersChanged atomic.Bool
}

func New(g *Game) (*Engine, error) {
	if g.Config == nil {
		g.Config = config.Default()
	}
	if err := g.Config.Validate(); err != nil {
		return nil, err
	}

	p, err := platform.New()
	if err != nil {
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       g.Config,
		clock:        core.NewClock(),
		platform:     p,
		width:        g.Config.Application.Width,
		height:       g.Config.Application.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	e.config.Apply()

	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized)
	core.EventRegister(core.EVENT_CODE_SHADER_CHANGED, e, e.onShaderChanged)

	res := e.config.Resources
	resources, err := metadata.LoadResourceTable(res.Table, res.ShaderDir)
	if err != nil {
		return err
	}
	// Offsets and bindings come from the glslang reflection dumps.
	if err := resources.ReadReflection(e.config.Renderer.Debug); err != nil {
		return fmt.Errorf("reading shader reflection (run `mage build:shaders`): %w", err)
	}
	e.resources = resources

	r, stop, err := startRenderer(e.config, e.platform, resources)
	if err != nil {
		return err
	}
	e.renderer = r
	e.stopRenderer = stop
	core.LogInfo("%s renderer ready, %d worker threads", r.Kind(), r.MaxThreads())

	if res.Watch {
		am, err := assets.NewAssetManager()
		if err != nil {
			return err
		}
		if err := am.Initialize(res.ShaderDir); err != nil {
			return err
		}
		e.assetManager = am
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(r); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine run before initialization")
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		e.platform.PumpMessages()
		if e.platform.ShouldClose() {
			e.isRunning.Store(false)
			break
		}
		if e.isSuspended {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if e.shadersChanged.Swap(false) && e.assetManager != nil {
			if rebuilt := e.renderer.CheckForRebuild(e.assetManager); len(rebuilt) > 0 {
				core.LogInfo("rebuilt shaders %v", rebuilt)
			}
		}

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				return err
			}
		}

		if err := e.drawFrame(delta); err != nil {
			core.LogError("Frame failed, shutting down: %s", err)
			return err
		}

		core.MetricsUpdate(time.Since(frameStart).Seconds())
		primitives := core.MetricsTakePrimitives()
		e.frames++
		if e.frames%60 == 0 {
			fps, frameTime := core.MetricsFrame()
			core.LogDebug("frame %d: %.1f fps, %.3f ms avg, %d primitives", e.frames, fps, frameTime, primitives)
		}

		e.lastTime = currentTime
		if n := e.config.Renderer.Frames; n > 0 && e.frames >= n {
			e.isRunning.Store(false)
		}
	}
	return nil
}

func (e *Engine) drawFrame(delta float64) error {
	r := e.renderer
	if err := r.BeginFrame(); err != nil {
		return err
	}
	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(r, delta); err != nil {
			return err
		}
	}
	if err := r.EndFrame(); err != nil {
		return err
	}
	return r.Flip()
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	if e.renderer != nil {
		if e.gameInstance.FnShutdown != nil {
			if err := e.gameInstance.FnShutdown(e.renderer); err != nil {
				core.LogError("%s", err)
			}
		}
		e.stopRenderer()
		e.renderer = nil
	}
	if e.assetManager != nil {
		if err := e.assetManager.Shutdown(); err != nil {
			core.LogError("%s", err)
		}
	}
	core.EventReset()
	return e.platform.Shutdown()
}

// Stop asks the main loop to return after the current frame. Safe to call
// from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogDebug("key %d pressed", data.Data.I32[0])
	return false
}

func (e *Engine) onShaderChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	e.shadersChanged.Store(true)
	return true
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width := uint32(data.Data.U16[0])
	height := uint32(data.Data.U16[1])
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError("%s", err)
		}
	}
	if e.renderer != nil {
		e.renderer.Resize(int(width), int(height))
	}
	return true
}

// LoadConfig reads path when it exists and falls back to the defaults.
func LoadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		core.LogInfo("%s not found, using the default configuration", path)
		return config.Default(), nil
	}
	return config.Load(path)
}
