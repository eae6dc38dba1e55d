package opengl

import (
	"github.com/spaghettifunk/twinrender/engine/assets"
)

/**
 * @brief An offscreen colour target: a float RGBA texture attached to a
 * framebuffer object with a 24 bit depth renderbuffer.
 */
type RenderTarget struct {
	Width   int
	Height  int
	handles TargetHandles
}

func (be *Backend) NewRenderTarget(width, height int) (*RenderTarget, error) {
	h, err := be.driver.CreateRenderTarget(width, height)
	if err != nil {
		return nil, err
	}
	return &RenderTarget{Width: width, Height: height, handles: h}, nil
}

func (be *Backend) DestroyRenderTarget(t *RenderTarget) {
	if be.boundFBO == t.handles.Framebuffer {
		be.DeselectRenderTarget()
	}
	be.driver.DeleteRenderTarget(t.handles)
	t.handles = TargetHandles{}
}

// SelectRenderTarget draws into t from now on and binds its texture. Slot 1
// binds texture unit 1, every other slot unit 0.
func (be *Backend) SelectRenderTarget(slot int, t *RenderTarget) {
	be.bindFramebuffer(t.handles.Framebuffer)
	unit := 0
	if slot == 1 {
		unit = 1
	}
	be.driver.BindTexture(unit, t.handles.Texture)
	be.driver.Viewport(t.Width, t.Height)
}

// DeselectRenderTarget goes back to the window's framebuffer.
func (be *Backend) DeselectRenderTarget() {
	be.bindFramebuffer(0)
	if be.viewportW > 0 && be.viewportH > 0 {
		be.driver.Viewport(be.viewportW, be.viewportH)
	}
}

func (be *Backend) bindFramebuffer(fbo uint32) {
	be.driver.BindFramebuffer(fbo)
	be.boundFBO = fbo
}

// Snapshot reads the colour attachment of t back and saves it to path. GL
// rows start at the bottom so they are flipped on the way out.
func (be *Backend) Snapshot(t *RenderTarget, path string) error {
	previous := be.boundFBO
	if previous != t.handles.Framebuffer {
		be.driver.BindFramebuffer(t.handles.Framebuffer)
	}
	rgb := be.driver.ReadPixelsRGB(t.Width, t.Height)
	if previous != t.handles.Framebuffer {
		be.driver.BindFramebuffer(previous)
	}
	return assets.SaveRGB(path, t.Width, t.Height, rgb, true)
}
