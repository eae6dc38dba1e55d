package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlipRows(t *testing.T) {
	data := []byte{
		1, 1, 2, 2,
		3, 3, 4, 4,
		5, 5, 6, 6,
	}
	FlipRows(2, 3, 2, data)
	assert.Equal(t, []byte{
		5, 5, 6, 6,
		3, 3, 4, 4,
		1, 1, 2, 2,
	}, data)
}

func TestSaveAndLoadImage(t *testing.T) {
	// Two rows, bottom row first as it comes out of a read back.
	rgb := []byte{
		10, 20, 30, 40, 50, 60,
		70, 80, 90, 100, 110, 120,
	}
	for _, ext := range []string{".png", ".bmp", ".tiff"} {
		path := filepath.Join(t.TempDir(), "snap"+ext)
		require.NoError(t, SaveRGB(path, 2, 2, rgb, true), ext)

		img, err := LoadImage(path)
		require.NoError(t, err, ext)
		assert.Equal(t, 2, img.Width)
		assert.Equal(t, 2, img.Height)
		assert.Equal(t, []byte{
			70, 80, 90, 0, 100, 110, 120, 0,
			10, 20, 30, 0, 40, 50, 60, 0,
		}, img.Data, ext)
	}
	// The caller's buffer is left alone.
	assert.Equal(t, byte(10), rgb[0])
}

func TestSaveRGBRejectsUnknownExtension(t *testing.T) {
	err := SaveRGB(filepath.Join(t.TempDir(), "snap.xyz"), 1, 1, []byte{1, 2, 3}, false)
	assert.ErrorIs(t, err, core.ErrUnsupportedImageFormat)
}

func TestLoadSPIRV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shader.spv")
	require.NoError(t, os.WriteFile(path, []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}, 0o644))
	words, err := LoadSPIRV(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 0x00010000}, words)

	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))
	_, err = LoadSPIRV(path)
	assert.Error(t, err)
}

func TestAssetManagerTracksChanges(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "solid.vert")
	require.NoError(t, os.WriteFile(src, []byte("void main() {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(dir))
	defer am.Shutdown()

	info, ok := am.Lookup(src)
	require.True(t, ok)
	assert.Equal(t, AssetTypeShaderSource, info.Type)
	_, ok = am.Lookup(filepath.Join(dir, "notes.txt"))
	assert.False(t, ok)
	assert.False(t, am.Changed(src))

	require.NoError(t, os.WriteFile(src, []byte("void main() { }"), 0o644))
	assert.Eventually(t, func() bool { return am.Changed(src) }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, am.Changed(src))

	am.MarkChanged(src)
	assert.True(t, am.Changed(src))
}
