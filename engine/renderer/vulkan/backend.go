// Package vulkan is the explicit backend. Every worker records into its own
// command buffer and draws from its own pool of vertex buffers, so batches
// are flushed on the goroutine that filled them.
package vulkan

import (
	"fmt"

	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/spaghettifunk/twinrender/engine/renderer/batch"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
)

type Options struct {
	MaxThreads int
	Debug      bool
}

type Backend struct {
	device    Device
	resources *metadata.ResourceManager
	opts      Options

	uniformBuffers map[string]*metadata.UniformBuffer

	// Vertex buffer pools indexed by [image][layout][thread]. A worker only
	// ever touches the entries of its own thread, so flushes need no lock.
	vertexBuffers [][][][]Buffer
	// Index of the buffer last drawn from in each pool, -1 before the first
	// flush of a pass.
	vertexBufferIndex [][][]int

	image     int
	shader    string
	layout    metadata.VertexLayout
	primitive metadata.PrimitiveType
	pass      metadata.RenderTargetID

	currentTarget Framebuffer
	targetWidth   uint32
	targetHeight  uint32
	depthTarget   Image
	hasDepth      bool

	// Image currently written into the samplers of each binding.
	samplers map[uint32]Image
}

// New creates the CPU side uniform blocks and one vertex buffer for every
// (image, layout, thread) slot. The device must already hold a pipeline and
// descriptor sets for every shader in resources.
func New(device Device, resources *metadata.ResourceManager, opts Options) (*Backend, error) {
	if opts.MaxThreads < 1 {
		opts.MaxThreads = 1
	}
	be := &Backend{
		device:         device,
		resources:      resources,
		opts:           opts,
		uniformBuffers: make(map[string]*metadata.UniformBuffer),
		samplers:       make(map[uint32]Image),
	}

	for _, name := range resources.UniformBlockNames() {
		spec, err := resources.UniformBlock(name)
		if err != nil {
			return nil, err
		}
		be.uniformBuffers[name] = metadata.NewUniformBuffer(spec)
	}

	images := device.ImageCount()
	be.vertexBuffers = make([][][][]Buffer, images)
	be.vertexBufferIndex = make([][][]int, images)
	for i := 0; i < images; i++ {
		be.vertexBuffers[i] = make([][][]Buffer, metadata.VertexLayoutCount)
		be.vertexBufferIndex[i] = make([][]int, metadata.VertexLayoutCount)
		for l := 0; l < metadata.VertexLayoutCount; l++ {
			be.vertexBuffers[i][l] = make([][]Buffer, opts.MaxThreads)
			be.vertexBufferIndex[i][l] = make([]int, opts.MaxThreads)
			for thr := 0; thr < opts.MaxThreads; thr++ {
				buf, err := device.CreateVertexBuffer(metadata.VertexLayout(l))
				if err != nil {
					return nil, err
				}
				be.vertexBuffers[i][l][thr] = []Buffer{buf}
				be.vertexBufferIndex[i][l][thr] = -1
			}
		}
	}

	if opts.Debug {
		w, h := device.Extent()
		core.LogDebug("Vulkan backend: %d swapchain images, %dx%d, %d threads", images, w, h, opts.MaxThreads)
	}

	be.DeselectRenderTarget()
	return be, nil
}

// Shutdown waits for the queue to drain. The device owns and frees every
// object the backend handed out.
func (be *Backend) Shutdown() {
	if err := be.device.WaitIdle(); err != nil {
		core.LogError("%s", err)
	}
}

// NeedsCentralFlush is false: workers flush into their own command buffers.
func (be *Backend) NeedsCentralFlush() bool {
	return false
}

func (be *Backend) MaxThreads() int {
	return be.opts.MaxThreads
}

func (be *Backend) Layout() metadata.VertexLayout {
	return be.layout
}

func (be *Backend) Primitive() metadata.PrimitiveType {
	return be.primitive
}

// Image is the swapchain image of the current frame.
func (be *Backend) Image() int {
	return be.image
}

// PoolSize reports how many vertex buffers the (image, layout, thread) slot has.
func (be *Backend) PoolSize(image int, layout metadata.VertexLayout, thread int) int {
	return len(be.vertexBuffers[image][layout][thread])
}

// BeginFrame acquires the next swapchain image, waiting for as long as it
// takes, and renders to it by default.
func (be *Backend) BeginFrame() error {
	image, err := be.device.AcquireNextImage()
	if err != nil {
		return err
	}
	be.image = image
	be.DeselectRenderTarget()
	return nil
}

// EndFrame transitions the image for presentation. The submission waits for
// the image to be acquired and signals RenderFinished for Flip.
func (be *Backend) EndFrame() error {
	cb := be.device.PrePresentCommandBuffer(be.image)
	if err := be.device.BeginCommandBuffer(cb); err != nil {
		return err
	}
	be.device.PresentBarrier(cb, be.image)
	if err := be.device.EndCommandBuffer(cb); err != nil {
		return err
	}
	return be.device.Submit([]CommandBuffer{cb}, ImageAvailable, RenderFinished)
}

// BeginPass opens the render pass of shader on every thread's command buffer
// and rewinds the vertex buffer pools of the current image.
func (be *Backend) BeginPass(shader string) error {
	spec, err := be.resources.ShaderSpec(shader)
	if err != nil {
		return err
	}
	be.shader = shader
	be.layout = spec.VertexLayout
	be.primitive = spec.Primitive
	be.pass = spec.Pass

	for thr := 0; thr < be.opts.MaxThreads; thr++ {
		cb := be.device.ThreadCommandBuffer(be.image, thr)
		if err := be.device.BeginCommandBuffer(cb); err != nil {
			return err
		}
		be.device.BeginRenderPass(cb, be.pass, be.currentTarget, be.targetWidth, be.targetHeight)
	}

	for l := range be.vertexBufferIndex[be.image] {
		for thr := range be.vertexBufferIndex[be.image][l] {
			be.vertexBufferIndex[be.image][l][thr] = -1
		}
	}

	for thr := 0; thr < be.opts.MaxThreads; thr++ {
		be.device.BindPipeline(be.device.ThreadCommandBuffer(be.image, thr), shader, be.image)
	}
	return nil
}

// EndPass closes every thread's command buffer and submits them together,
// then waits for the queue so the next pass may reuse the vertex buffers.
func (be *Backend) EndPass() error {
	cbs := make([]CommandBuffer, 0, be.opts.MaxThreads)
	for thr := 0; thr < be.opts.MaxThreads; thr++ {
		cb := be.device.ThreadCommandBuffer(be.image, thr)
		be.device.EndRenderPass(cb)
		if err := be.device.EndCommandBuffer(cb); err != nil {
			return err
		}
		cbs = append(cbs, cb)
	}
	if err := be.device.Submit(cbs, NoSemaphore, NoSemaphore); err != nil {
		return err
	}
	return be.device.QueueWaitIdle()
}

func (be *Backend) Flip() error {
	if err := be.device.Present(be.image); err != nil {
		return err
	}
	return be.device.QueueWaitIdle()
}

// ClearDepthBuffer clears the depth image of the selected render target. The
// swapchain framebuffers have no depth attachment.
func (be *Backend) ClearDepthBuffer() error {
	if !be.hasDepth {
		return core.ErrNoDepthTarget
	}
	cb := be.device.ClearDepthCommandBuffer(be.image)
	if err := be.device.BeginCommandBuffer(cb); err != nil {
		return err
	}
	be.device.ClearDepthImage(cb, be.depthTarget)
	if err := be.device.EndCommandBuffer(cb); err != nil {
		return err
	}
	if err := be.device.Submit([]CommandBuffer{cb}, NoSemaphore, NoSemaphore); err != nil {
		return err
	}
	return be.device.QueueWaitIdle()
}

// Flush draws b from the next vertex buffer of its thread's pool, growing the
// pool when every buffer already holds a batch of this pass. It runs on the
// worker's goroutine and touches only that worker's slots.
func (be *Backend) Flush(b *batch.Batch) {
	if b.Index == 0 {
		return
	}
	image, layout, thr := be.image, be.layout, b.Thread

	be.vertexBufferIndex[image][layout][thr]++
	cursor := be.vertexBufferIndex[image][layout][thr]
	if cursor == len(be.vertexBuffers[image][layout][thr]) {
		buf, err := be.device.CreateVertexBuffer(layout)
		if err != nil {
			core.LogFatal("%s", err)
		}
		be.vertexBuffers[image][layout][thr] = append(be.vertexBuffers[image][layout][thr], buf)
	}
	buf := be.vertexBuffers[image][layout][thr][cursor]

	if err := be.device.UploadVertices(buf, b.Floats()); err != nil {
		core.LogFatal("%s", err)
	}
	cb := be.device.ThreadCommandBuffer(image, thr)
	be.device.BindVertexBuffer(cb, buf)
	be.device.Draw(cb, uint32(b.Index*metadata.VerticesPerTriangle))
	core.MetricsAddPrimitives(b.Index)
}

func (be *Backend) uniformBuffer(block string) (*metadata.UniformBuffer, bool) {
	ub, ok := be.uniformBuffers[block]
	if !ok {
		core.LogShaderWarn("uniform block %s not found", block)
	}
	return ub, ok
}

func (be *Backend) SetUniformInt(block, name string, value int32) {
	if ub, ok := be.uniformBuffer(block); ok {
		ub.SetInt(name, value)
	}
}

func (be *Backend) SetUniformFloat(block, name string, value float32) {
	if ub, ok := be.uniformBuffer(block); ok {
		ub.SetFloat(name, value)
	}
}

func (be *Backend) SetUniformVec3(block, name string, value math.Vec3) {
	if ub, ok := be.uniformBuffer(block); ok {
		ub.SetVec3(name, value)
	}
}

func (be *Backend) SetUniformMat4(block, name string, value math.Mat4) {
	if ub, ok := be.uniformBuffer(block); ok {
		ub.SetMat4(name, value)
	}
}

func (be *Backend) SetUniformFloats(block, name string, values []float32) {
	if ub, ok := be.uniformBuffer(block); ok {
		ub.SetFloats(name, values)
	}
}

// SynchroniseUniformBuffer copies the CPU side block into its device buffer.
func (be *Backend) SynchroniseUniformBuffer(block string) error {
	ub, ok := be.uniformBuffers[block]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownUniformBlock, block)
	}
	return be.device.UploadUniforms(block, ub.Bytes)
}
