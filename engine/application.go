package engine

import (
	"fmt"

	"github.com/spaghettifunk/twinrender/engine/config"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/platform"
	"github.com/spaghettifunk/twinrender/engine/renderer"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/opengl"
	"github.com/spaghettifunk/twinrender/engine/renderer/opengl/gldriver"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan/vkdevice"
)

// startRenderer opens the window the configured backend needs and builds the
// renderer on top of it. The returned function releases what the backend
// created and must run before the platform shuts down.
func startRenderer(cfg *config.Config, p *platform.Platform, resources *metadata.ResourceManager) (*renderer.Renderer, func(), error) {
	app := cfg.Application
	switch cfg.Renderer.Backend {
	case config.BackendOpenGL:
		if err := p.Startup(app.Name, app.X, app.Y, app.Width, app.Height, platform.GraphicsAPIOpenGL); err != nil {
			return nil, nil, err
		}
		drv, err := gldriver.New()
		if err != nil {
			return nil, nil, err
		}
		w, h := p.FramebufferSize()
		be, err := opengl.New(drv, resources, opengl.Options{
			MaxThreads: cfg.Renderer.MaxThreads,
			Width:      int(w),
			Height:     int(h),
			Debug:      cfg.Renderer.Debug,
			OldDriver:  cfg.Renderer.OldDriver,
			Swap:       p.SwapBuffers,
		})
		if err != nil {
			drv.Destroy()
			return nil, nil, err
		}
		r := renderer.NewOpenGL(be)
		return r, func() {
			r.Shutdown()
			drv.Destroy()
		}, nil

	case config.BackendVulkan:
		if err := p.Startup(app.Name, app.X, app.Y, app.Width, app.Height, platform.GraphicsAPIVulkan); err != nil {
			return nil, nil, err
		}
		dev, err := vkdevice.New(p, resources, vkdevice.Options{
			AppName:    app.Name,
			MaxThreads: cfg.Renderer.MaxThreads,
			Debug:      cfg.Renderer.Debug,
		})
		if err != nil {
			return nil, nil, err
		}
		be, err := vulkan.New(dev, resources, vulkan.Options{
			MaxThreads: cfg.Renderer.MaxThreads,
			Debug:      cfg.Renderer.Debug,
		})
		if err != nil {
			dev.Destroy()
			return nil, nil, err
		}
		r := renderer.NewVulkan(be)
		return r, func() {
			r.Shutdown()
			dev.Destroy()
		}, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown backend %q", core.ErrInvalidConfig, cfg.Renderer.Backend)
}
