package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/twinrender/engine/core"
)

type Backend string

const (
	BackendOpenGL Backend = "opengl"
	BackendVulkan Backend = "vulkan"
)

type Application struct {
	Name             string `toml:"name"`
	X                uint32 `toml:"x"`
	Y                uint32 `toml:"y"`
	Width            uint32 `toml:"width"`
	Height           uint32 `toml:"height"`
	LogLevel         string `toml:"log_level"`
	SuppressWarnings bool   `toml:"suppress_warnings"`
}

type Renderer struct {
	Backend    Backend `toml:"backend"`
	MaxThreads int     `toml:"max_threads"`
	// Number of frames the demo renders before exiting, 0 runs until the window closes.
	Frames int `toml:"frames"`
	// Enables the Vulkan validation layers and debug report callback.
	Debug bool `toml:"debug"`
	// Strips descriptor set qualifiers from GLSL for drivers without
	// GL_KHR_vulkan_glsl.
	OldDriver bool   `toml:"old_driver"`
	Snapshot  string `toml:"snapshot"`
}

type Resources struct {
	Table      string `toml:"table"`
	ShaderDir  string `toml:"shader_dir"`
	TextureDir string `toml:"texture_dir"`
	Watch      bool   `toml:"watch"`
}

type Config struct {
	Application Application `toml:"application"`
	Renderer    Renderer    `toml:"renderer"`
	Resources   Resources   `toml:"resources"`
}

func Default() *Config {
	return &Config{
		Application: Application{
			Name:     "Twinrender",
			X:        100,
			Y:        100,
			Width:    1280,
			Height:   720,
			LogLevel: "info",
		},
		Renderer: Renderer{
			Backend:    BackendOpenGL,
			MaxThreads: runtime.NumCPU(),
		},
		Resources: Resources{
			Table:      "assets/resources.toml",
			ShaderDir:  "assets/shaders",
			TextureDir: "assets/textures",
		},
	}
}

// Load reads a TOML file on top of the defaults. Keys missing from the file
// keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Renderer.Backend {
	case BackendOpenGL, BackendVulkan:
	default:
		return fmt.Errorf("%w: unknown backend %q", core.ErrInvalidConfig, c.Renderer.Backend)
	}
	if c.Renderer.MaxThreads < 1 {
		return fmt.Errorf("%w: max_threads must be at least 1, got %d", core.ErrInvalidConfig, c.Renderer.MaxThreads)
	}
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return fmt.Errorf("%w: window size must be non zero", core.ErrInvalidConfig)
	}
	if _, ok := core.ParseLogLevel(c.Application.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log level %q", core.ErrInvalidConfig, c.Application.LogLevel)
	}
	if c.Renderer.Frames < 0 {
		return fmt.Errorf("%w: frames cannot be negative", core.ErrInvalidConfig)
	}
	return nil
}

// Apply pushes the logging related settings into the core logger.
func (c *Config) Apply() {
	level, _ := core.ParseLogLevel(c.Application.LogLevel)
	core.SetLogLevel(level)
	core.SuppressWarnings(c.Application.SuppressWarnings)
}
