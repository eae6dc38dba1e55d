package engine

import (
	"github.com/spaghettifunk/twinrender/engine/config"
	"github.com/spaghettifunk/twinrender/engine/renderer"
)

type Game struct {
	Config       *config.Config
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func(r *renderer.Renderer) error
type Update func(deltaTime float64) error

// Render records the passes of one frame. BeginFrame has been called and
// EndFrame and Flip follow.
type Render func(r *renderer.Renderer, deltaTime float64) error
type OnResize func(width uint32, height uint32) error

// Shutdown runs before the renderer is torn down.
type Shutdown func(r *renderer.Renderer) error
