package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[application]
name = "demo"
width = 640
height = 480
log_level = "debug"
suppress_warnings = true

[renderer]
backend = "vulkan"
max_threads = 4
frames = 120
snapshot = "out.png"
`))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Application.Name)
	assert.EqualValues(t, 640, cfg.Application.Width)
	assert.EqualValues(t, 100, cfg.Application.X)
	assert.True(t, cfg.Application.SuppressWarnings)
	assert.Equal(t, BackendVulkan, cfg.Renderer.Backend)
	assert.Equal(t, 4, cfg.Renderer.MaxThreads)
	assert.Equal(t, 120, cfg.Renderer.Frames)
	assert.Equal(t, "out.png", cfg.Renderer.Snapshot)
	assert.Equal(t, "assets/resources.toml", cfg.Resources.Table)
	assert.Equal(t, "assets/textures", cfg.Resources.TextureDir)
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := []string{
		"[renderer]\nbackend = \"metal\"\n",
		"[renderer]\nmax_threads = 0\n",
		"[application]\nwidth = 0\n",
		"[application]\nlog_level = \"chatty\"\n",
		"[renderer\n",
	}
	for _, c := range cases {
		_, err := Parse([]byte(c))
		assert.ErrorIs(t, err, core.ErrInvalidConfig, c)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twinrender.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nmax_threads = 1\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Renderer.MaxThreads)
	assert.Equal(t, BackendOpenGL, cfg.Renderer.Backend)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
