// Package vkdevice implements the device of the explicit backend on top of
// goki/vulkan: instance, swapchain, render passes, pipelines, descriptor sets,
// command buffers and host visible buffers.
package vkdevice

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/platform"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

var _ vulkan.Device = (*Device)(nil)

type Options struct {
	AppName string
	// MaxThreads is the number of worker threads that record draws. Each one
	// gets its own command pool.
	MaxThreads int
	// Debug enables the validation layer and the debug report callback.
	Debug bool
}

type Device struct {
	platform  *platform.Platform
	resources *metadata.ResourceManager
	opts      Options
	locks     *VulkanLockPool

	Allocator     *vk.AllocationCallbacks
	instance      vk.Instance
	debugCallback vk.DebugReportCallback
	surface       vk.Surface

	physical *VulkanPhysicalDevice
	logical  vk.Device
	queue    vk.Queue

	swapchain   *VulkanSwapchain
	renderpass  [metadata.RenderTargetCount]*VulkanRenderpass
	sampler     vk.Sampler
	threadPools []vk.CommandPool
	auxPool     vk.CommandPool

	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore

	// Handle tables. A vulkan.CommandBuffer, Framebuffer or Image is an index
	// into the matching slice.
	commandBuffers []*VulkanCommandBuffer
	framebuffers   []*VulkanFramebuffer
	images         []*VulkanImage

	threadCommandBuffers [][]vulkan.CommandBuffer
	prePresent           []vulkan.CommandBuffer
	clearDepth           []vulkan.CommandBuffer
	swapchainFramebuffer []vulkan.Framebuffer

	// Vertex buffers are created from worker goroutines.
	bufferMu sync.RWMutex
	buffers  []*VulkanBuffer

	uniformBuffers map[string]*VulkanBuffer
	descriptorPool vk.DescriptorPool
	shaders        map[string]*shaderObjects
}

// New brings up Vulkan for the platform window and creates every object the
// shaders in resources need: a pipeline, descriptor set layouts and one set of
// descriptor sets per swapchain image.
func New(p *platform.Platform, resources *metadata.ResourceManager, opts Options) (*Device, error) {
	if opts.MaxThreads < 1 {
		opts.MaxThreads = 1
	}
	d := &Device{
		platform:       p,
		resources:      resources,
		opts:           opts,
		locks:          NewVulkanLockPool(),
		uniformBuffers: make(map[string]*VulkanBuffer),
		shaders:        make(map[string]*shaderObjects),
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"instance", d.createInstance},
		{"surface", d.createSurface},
		{"device", d.createDevice},
		{"swapchain", d.createSwapchain},
		{"render passes", d.createRenderpasses},
		{"swapchain framebuffers", d.createSwapchainFramebuffers},
		{"command buffers", d.createCommandBuffers},
		{"semaphores", d.createSemaphores},
		{"sampler", d.createSampler},
		{"uniform buffers", d.createUniformBuffers},
		{"descriptor pool", d.createDescriptorPool},
		{"shaders", d.createShaders},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			d.Destroy()
			return nil, fmt.Errorf("vulkan %s: %w", step.name, err)
		}
		core.LogDebug("Vulkan %s created.", step.name)
	}

	core.LogInfo("Vulkan device initialized successfully.")
	return d, nil
}

func (d *Device) createSurface() error {
	surface, err := d.platform.CreateSurface(d.instance)
	if err != nil {
		return err
	}
	d.surface = vk.SurfaceFromPointer(surface)
	return nil
}

func (d *Device) createSemaphores() error {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(d.logical, &info, d.Allocator, &d.imageAvailable)); err != nil {
		return err
	}
	return check("vkCreateSemaphore", vk.CreateSemaphore(d.logical, &info, d.Allocator, &d.renderFinished))
}

func (d *Device) semaphore(s vulkan.Semaphore) vk.Semaphore {
	switch s {
	case vulkan.ImageAvailable:
		return d.imageAvailable
	case vulkan.RenderFinished:
		return d.renderFinished
	}
	return vk.NullSemaphore
}

// Destroy frees everything in the opposite order of creation. It is safe to
// call on a partially created device.
func (d *Device) Destroy() {
	if d.logical != nil {
		vk.DeviceWaitIdle(d.logical)

		d.destroyShaders()
		if d.descriptorPool != nil {
			vk.DestroyDescriptorPool(d.logical, d.descriptorPool, d.Allocator)
			d.descriptorPool = nil
		}
		for name, b := range d.uniformBuffers {
			b.Destroy(d)
			delete(d.uniformBuffers, name)
		}
		d.bufferMu.Lock()
		for _, b := range d.buffers {
			b.Destroy(d)
		}
		d.buffers = nil
		d.bufferMu.Unlock()

		for _, img := range d.images {
			if img != nil {
				img.Destroy(d)
			}
		}
		d.images = nil
		for _, fb := range d.framebuffers {
			if fb != nil {
				fb.Destroy(d)
			}
		}
		d.framebuffers = nil

		if d.sampler != nil {
			vk.DestroySampler(d.logical, d.sampler, d.Allocator)
			d.sampler = nil
		}
		if d.imageAvailable != vk.NullSemaphore {
			vk.DestroySemaphore(d.logical, d.imageAvailable, d.Allocator)
			d.imageAvailable = vk.NullSemaphore
		}
		if d.renderFinished != vk.NullSemaphore {
			vk.DestroySemaphore(d.logical, d.renderFinished, d.Allocator)
			d.renderFinished = vk.NullSemaphore
		}
		d.destroyCommandBuffers()

		for _, rp := range d.renderpass {
			if rp != nil {
				rp.RenderpassDestroy(d)
			}
		}
		if d.swapchain != nil {
			d.swapchain.SwapchainDestroy(d)
			d.swapchain = nil
		}

		core.LogDebug("Destroying Vulkan device...")
		d.destroyDevice()
	}

	if d.surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(d.instance, d.surface, d.Allocator)
		d.surface = vk.NullSurface
	}
	d.destroyInstance()
}

func (d *Device) ImageCount() int {
	return int(d.swapchain.ImageCount)
}

func (d *Device) Extent() (uint32, uint32) {
	return d.swapchain.Extent.Width, d.swapchain.Extent.Height
}

func (d *Device) ThreadCommandBuffer(image, thread int) vulkan.CommandBuffer {
	return d.threadCommandBuffers[image][thread]
}

func (d *Device) PrePresentCommandBuffer(image int) vulkan.CommandBuffer {
	return d.prePresent[image]
}

func (d *Device) ClearDepthCommandBuffer(image int) vulkan.CommandBuffer {
	return d.clearDepth[image]
}

func (d *Device) SwapchainFramebuffer(image int) vulkan.Framebuffer {
	return d.swapchainFramebuffer[image]
}

func (d *Device) WaitIdle() error {
	return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.logical))
}
