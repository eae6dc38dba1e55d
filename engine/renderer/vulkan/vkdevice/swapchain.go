package vkdevice

import (
	gomath "math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/math"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	Extent      vk.Extent2D
	ImageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func (d *Device) createSwapchain() error {
	width, height := d.platform.FramebufferSize()
	sc, err := createSwapchain(d, width, height)
	if err != nil {
		return err
	}
	d.swapchain = sc
	return nil
}

func createSwapchain(d *Device, width, height uint32) (*VulkanSwapchain, error) {
	support := &d.physical.SwapchainSupport
	swapchain := &VulkanSwapchain{
		ImageFormat: support.Formats[0],
		Extent:      vk.Extent2D{Width: width, Height: height},
	}

	// Preferred format.
	for _, format := range support.Formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			break
		}
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	caps := support.Capabilities
	if caps.CurrentExtent.Width != gomath.MaxUint32 {
		swapchain.Extent = caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	swapchain.Extent.Width = math.Clamp(swapchain.Extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	swapchain.Extent.Height = math.Clamp(swapchain.Extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchain.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if err := check("vkCreateSwapchainKHR", vk.CreateSwapchain(d.logical, &swapchainCreateInfo, d.Allocator, &swapchain.Handle)); err != nil {
		return nil, err
	}

	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(d.logical, swapchain.Handle, &swapchain.ImageCount, nil)); err != nil {
		return nil, err
	}
	swapchain.Images = make([]vk.Image, swapchain.ImageCount)
	swapchain.Views = make([]vk.ImageView, swapchain.ImageCount)
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(d.logical, swapchain.Handle, &swapchain.ImageCount, swapchain.Images)); err != nil {
		return nil, err
	}

	for i := range swapchain.Images {
		view, err := createImageView(d, swapchain.Images[i], swapchain.ImageFormat.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return nil, err
		}
		swapchain.Views[i] = view
	}

	core.LogInfo("Swapchain created: %d images, %dx%d.", swapchain.ImageCount, swapchain.Extent.Width, swapchain.Extent.Height)
	return swapchain, nil
}

func (vs *VulkanSwapchain) SwapchainDestroy(d *Device) {
	// Only destroy the views, not the images, since those are owned by the
	// swapchain and are destroyed with it.
	for _, view := range vs.Views {
		if view != vk.NullImageView {
			vk.DestroyImageView(d.logical, view, d.Allocator)
		}
	}
	vs.Views = nil
	vk.DestroySwapchain(d.logical, vs.Handle, d.Allocator)
	vs.Handle = vk.NullSwapchain
}

// AcquireNextImage waits without a timeout and signals the image available
// semaphore. A suboptimal swapchain is still used, resizing is not supported.
func (d *Device) AcquireNextImage() (int, error) {
	var index uint32
	result := vk.AcquireNextImage(d.logical, d.swapchain.Handle, vk.MaxUint64, d.imageAvailable, vk.NullFence, &index)
	if result != vk.Success && result != vk.Suboptimal {
		return 0, check("vkAcquireNextImageKHR", result)
	}
	return int(index), nil
}

// Present gives image back to the swapchain once rendering has finished.
func (d *Device) Present(image int) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{d.renderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchain.Handle},
		PImageIndices:      []uint32{uint32(image)},
	}
	return d.locks.SafeCall(QueueManagement, func() error {
		result := vk.QueuePresent(d.queue, &presentInfo)
		if result == vk.Suboptimal {
			return nil
		}
		return check("vkQueuePresentKHR", result)
	})
}
