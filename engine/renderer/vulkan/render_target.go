package vulkan

import (
	"github.com/spaghettifunk/twinrender/engine/assets"
	"github.com/spaghettifunk/twinrender/engine/core"
)

/**
 * @brief An offscreen target: a float RGBA colour image that shaders can
 * sample, a depth image and a framebuffer for the offscreen render pass.
 */
type RenderTarget struct {
	Width   int
	Height  int
	handles TargetHandles
}

func (be *Backend) NewRenderTarget(width, height int) (*RenderTarget, error) {
	h, err := be.device.CreateRenderTarget(width, height)
	if err != nil {
		return nil, err
	}
	return &RenderTarget{Width: width, Height: height, handles: h}, nil
}

func (be *Backend) DestroyRenderTarget(t *RenderTarget) {
	if be.hasDepth && be.currentTarget == t.handles.Framebuffer {
		be.DeselectRenderTarget()
	}
	be.forgetSampler(t.handles.Color)
	be.device.DestroyRenderTarget(t.handles)
	t.handles = TargetHandles{}
}

// SelectRenderTarget makes the following passes render into t and gives
// ClearDepthBuffer its depth image. The colour image is bound to the samplers
// at binding slot.
func (be *Backend) SelectRenderTarget(slot int, t *RenderTarget) {
	if err := be.bindSampler(uint32(slot), t.handles.Color); err != nil {
		core.LogFatal("%s", err)
	}
	be.currentTarget = t.handles.Framebuffer
	be.depthTarget = t.handles.Depth
	be.hasDepth = true
	be.targetWidth, be.targetHeight = uint32(t.Width), uint32(t.Height)
}

// bindSampler rewrites the descriptor sets only when the image behind binding
// changes, since every rewrite drains the device.
func (be *Backend) bindSampler(binding uint32, img Image) error {
	if cur, ok := be.samplers[binding]; ok && cur == img {
		return nil
	}
	if err := be.device.BindSampledImage(img, binding); err != nil {
		return err
	}
	be.samplers[binding] = img
	return nil
}

func (be *Backend) forgetSampler(img Image) {
	for binding, cur := range be.samplers {
		if cur == img {
			delete(be.samplers, binding)
		}
	}
}

// DeselectRenderTarget goes back to the framebuffer of the current swapchain
// image, which has no depth attachment.
func (be *Backend) DeselectRenderTarget() {
	be.currentTarget = be.device.SwapchainFramebuffer(be.image)
	be.hasDepth = false
	be.targetWidth, be.targetHeight = be.device.Extent()
}

// Snapshot copies the colour image of t back to the host and saves it.
func (be *Backend) Snapshot(t *RenderTarget, path string) error {
	rgb, err := be.device.ReadRenderTarget(t.handles, t.Width, t.Height)
	if err != nil {
		return err
	}
	return assets.SaveRGB(path, t.Width, t.Height, rgb, true)
}
