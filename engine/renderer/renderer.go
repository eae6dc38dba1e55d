// Package renderer drives a frame on either backend: it owns the frame state
// machine, runs workers through the flush protocol the active backend needs,
// and dispatches the operations that only one backend supports.
package renderer

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/twinrender/engine/assets"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/spaghettifunk/twinrender/engine/renderer/batch"
	"github.com/spaghettifunk/twinrender/engine/renderer/opengl"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

type Kind int

const (
	KindOpenGL Kind = iota
	KindVulkan
)

func (k Kind) String() string {
	switch k {
	case KindOpenGL:
		return "opengl"
	case KindVulkan:
		return "vulkan"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

/**
 * @brief The active backend as a tagged variant. Exactly one of gl and vk is
 * set, matching the handle's kind, and operations that exist on one backend
 * only switch on it.
 */
type Renderer struct {
	handle *Handle
	gl     *opengl.Backend
	vk     *vulkan.Backend

	frame   frameMachine
	frameID uuid.UUID
	// One batch per worker thread, reused by every pass.
	batches []*batch.Batch
}

func NewOpenGL(be *opengl.Backend) *Renderer {
	r := newRenderer(KindOpenGL, be)
	r.gl = be
	return r
}

func NewVulkan(be *vulkan.Backend) *Renderer {
	r := newRenderer(KindVulkan, be)
	r.vk = be
	return r
}

func newRenderer(kind Kind, be Backend) *Renderer {
	return &Renderer{handle: NewHandle(kind, be)}
}

func (r *Renderer) Kind() Kind {
	return r.handle.Kind()
}

func (r *Renderer) Handle() *Handle {
	return r.handle
}

func (r *Renderer) State() FrameState {
	return r.frame.state
}

// FrameID identifies the current frame in logs.
func (r *Renderer) FrameID() uuid.UUID {
	return r.frameID
}

func (r *Renderer) MaxThreads() int {
	return r.handle.unlocked().MaxThreads()
}

func (r *Renderer) call(fn func(be Backend) error) error {
	return r.handle.WithLock(fn)
}

func (r *Renderer) BeginFrame() error {
	if err := r.frame.require("BeginFrame", FrameIdle, FramePresented); err != nil {
		return err
	}
	if err := r.call(func(be Backend) error { return be.BeginFrame() }); err != nil {
		return err
	}
	r.frameID = uuid.New()
	return r.frame.beginFrame()
}

func (r *Renderer) BeginPass(shader string) error {
	if err := r.frame.require("BeginPass", FrameBegun, FramePassComplete); err != nil {
		return err
	}
	if err := r.call(func(be Backend) error { return be.BeginPass(shader) }); err != nil {
		return err
	}
	return r.frame.beginPass()
}

func (r *Renderer) EndPass() error {
	if err := r.frame.inPass("EndPass"); err != nil {
		return err
	}
	if err := r.call(func(be Backend) error { return be.EndPass() }); err != nil {
		return err
	}
	return r.frame.endPass()
}

// RenderPass runs a whole pass of shader: begin, run work, end.
func (r *Renderer) RenderPass(shader string, work Worker) (RunStats, error) {
	if err := r.BeginPass(shader); err != nil {
		return RunStats{}, err
	}
	stats, err := r.Run(work)
	if err != nil {
		return stats, err
	}
	core.LogDebug("frame %s pass %s: %d workers, %d flushes, %d primitives",
		r.frameID, shader, stats.Finished, stats.Flushes, stats.Primitives)
	return stats, r.EndPass()
}

func (r *Renderer) ClearDepthBuffer() error {
	if err := r.frame.betweenPasses("ClearDepthBuffer"); err != nil {
		return err
	}
	return r.call(func(be Backend) error { return be.ClearDepthBuffer() })
}

func (r *Renderer) EndFrame() error {
	if err := r.frame.require("EndFrame", FrameBegun, FramePassComplete); err != nil {
		return err
	}
	if err := r.call(func(be Backend) error { return be.EndFrame() }); err != nil {
		return err
	}
	return r.frame.endFrame()
}

func (r *Renderer) Flip() error {
	if err := r.frame.require("Flip", FrameEnded); err != nil {
		return err
	}
	if err := r.call(func(be Backend) error { return be.Flip() }); err != nil {
		return err
	}
	return r.frame.flip()
}

func (r *Renderer) SetUniformInt(block, name string, value int32) {
	_ = r.call(func(be Backend) error { be.SetUniformInt(block, name, value); return nil })
}

func (r *Renderer) SetUniformFloat(block, name string, value float32) {
	_ = r.call(func(be Backend) error { be.SetUniformFloat(block, name, value); return nil })
}

func (r *Renderer) SetUniformVec3(block, name string, value math.Vec3) {
	_ = r.call(func(be Backend) error { be.SetUniformVec3(block, name, value); return nil })
}

func (r *Renderer) SetUniformMat4(block, name string, value math.Mat4) {
	_ = r.call(func(be Backend) error { be.SetUniformMat4(block, name, value); return nil })
}

func (r *Renderer) SetUniformFloats(block, name string, values []float32) {
	_ = r.call(func(be Backend) error { be.SetUniformFloats(block, name, values); return nil })
}

func (r *Renderer) SynchroniseUniformBuffer(block string) error {
	return r.call(func(be Backend) error { return be.SynchroniseUniformBuffer(block) })
}

func (r *Renderer) DeselectRenderTarget() {
	_ = r.call(func(be Backend) error { be.DeselectRenderTarget(); return nil })
}

// Resize follows a change of the window's framebuffer. The swapchain is
// created once for the lifetime of the window, so Vulkan ignores it.
func (r *Renderer) Resize(width, height int) {
	switch r.Kind() {
	case KindOpenGL:
		if r.gl != nil {
			r.gl.Resize(width, height)
		}
	case KindVulkan:
		core.LogWarn("vulkan swapchain is not recreated on resize (%dx%d)", width, height)
	}
}

// CheckForRebuild rebuilds the GL programs whose sources changed. Vulkan
// pipelines are built from SPIR-V once and are never rebuilt.
func (r *Renderer) CheckForRebuild(am *assets.AssetManager) []string {
	if r.Kind() != KindOpenGL || r.gl == nil {
		return nil
	}
	var rebuilt []string
	_ = r.call(func(Backend) error {
		rebuilt = r.gl.CheckForRebuild(am)
		return nil
	})
	return rebuilt
}

func (r *Renderer) Shutdown() {
	_ = r.call(func(be Backend) error { be.Shutdown(); return nil })
}
