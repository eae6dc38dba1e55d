package vulkan

import (
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
)

// Handles to objects owned by the device. They are plain indices so the
// backend can keep them in its per image tables.
type (
	CommandBuffer int
	Buffer        int
	Framebuffer   int
	Image         int
)

// Semaphore names one of the two semaphores that order a frame.
type Semaphore int

const (
	NoSemaphore Semaphore = iota
	// ImageAvailable is signalled by the acquire at the start of the frame.
	ImageAvailable
	// RenderFinished is signalled by the pre-present submission and waited on
	// by the present.
	RenderFinished
)

/** @brief Everything the device created for one offscreen render target. */
type TargetHandles struct {
	Color       Image
	Depth       Image
	Framebuffer Framebuffer
}

/**
 * @brief The Vulkan calls the explicit backend records and submits, with
 * handles in place of raw Vulkan objects. Recording calls do not fail; calls
 * that return a VkResult report it as an error naming the Vulkan function.
 *
 * Per frame objects are created up front for every swapchain image: one
 * command buffer per worker thread, a pre-present and a depth clear command
 * buffer, a framebuffer and one descriptor set per shader. Sampled images
 * are written into those sets when they are bound, not when they are created.
 */
type Device interface {
	ImageCount() int
	Extent() (width, height uint32)

	ThreadCommandBuffer(image, thread int) CommandBuffer
	PrePresentCommandBuffer(image int) CommandBuffer
	ClearDepthCommandBuffer(image int) CommandBuffer
	SwapchainFramebuffer(image int) Framebuffer

	// AcquireNextImage blocks until a swapchain image is available and
	// signals ImageAvailable.
	AcquireNextImage() (int, error)
	// BeginCommandBuffer resets cb and starts recording into it.
	BeginCommandBuffer(cb CommandBuffer) error
	EndCommandBuffer(cb CommandBuffer) error
	BeginRenderPass(cb CommandBuffer, pass metadata.RenderTargetID, fb Framebuffer, width, height uint32)
	EndRenderPass(cb CommandBuffer)
	// BindPipeline binds the pipeline of shader and its descriptor set for image.
	BindPipeline(cb CommandBuffer, shader string, image int)
	BindVertexBuffer(cb CommandBuffer, buf Buffer)
	Draw(cb CommandBuffer, vertexCount uint32)
	// PresentBarrier moves the swapchain image from colour attachment to
	// present layout.
	PresentBarrier(cb CommandBuffer, image int)
	// ClearDepthImage clears depth to 1.0 and stencil to 0, leaving the image
	// ready to be a depth attachment.
	ClearDepthImage(cb CommandBuffer, depth Image)
	Submit(cbs []CommandBuffer, wait, signal Semaphore) error
	QueueWaitIdle() error
	// Present queues image for presentation once RenderFinished is signalled.
	Present(image int) error

	// CreateVertexBuffer allocates host visible memory for a full batch of the
	// given layout. It may be called from any worker goroutine.
	CreateVertexBuffer(layout metadata.VertexLayout) (Buffer, error)
	// UploadVertices maps buf, copies data into it and unmaps it.
	UploadVertices(buf Buffer, data []float32) error
	// UploadUniforms maps the buffer of block, copies data and unmaps it.
	UploadUniforms(block string, data []byte) error

	CreateRenderTarget(width, height int) (TargetHandles, error)
	DestroyRenderTarget(h TargetHandles)
	// ReadRenderTarget copies the colour image through a staging image and
	// returns it as 8 bit RGB, last row first.
	ReadRenderTarget(h TargetHandles, width, height int) ([]byte, error)

	// CreateTexture uploads data into a device local image shaders can
	// sample, leaving it in shader read layout.
	CreateTexture(width, height int, format metadata.TextureFormat, data []byte) (Image, error)
	DestroyImage(img Image)
	// BindSampledImage points every combined image sampler with the given
	// binding, in every shader and on every swapchain image, at img. It waits
	// for the device to go idle before touching the descriptor sets.
	BindSampledImage(img Image, binding uint32) error

	WaitIdle() error
}
