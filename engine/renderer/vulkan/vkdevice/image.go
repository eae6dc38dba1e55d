package vkdevice

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format vk.Format
	Width  uint32
	Height uint32
}

type imageConfig struct {
	width, height uint32
	format        vk.Format
	tiling        vk.ImageTiling
	usage         vk.ImageUsageFlagBits
	memoryFlags   vk.MemoryPropertyFlagBits
	// A zero aspect creates no view.
	viewAspect vk.ImageAspectFlagBits
}

func createImage(d *Device, cfg imageConfig) (*VulkanImage, error) {
	img := &VulkanImage{Format: cfg.format, Width: cfg.width, Height: cfg.height}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    cfg.format,
		Extent: vk.Extent3D{
			Width:  cfg.width,
			Height: cfg.height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        cfg.tiling,
		Usage:         vk.ImageUsageFlags(cfg.usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if err := check("vkCreateImage", vk.CreateImage(d.logical, &imageCreateInfo, d.Allocator, &img.Handle)); err != nil {
		return nil, err
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, img.Handle, &memReqs)
	memReqs.Deref()
	mem, err := d.allocateMemory(memReqs, cfg.memoryFlags)
	if err != nil {
		img.Destroy(d)
		return nil, err
	}
	img.Memory = mem
	if err := check("vkBindImageMemory", vk.BindImageMemory(d.logical, img.Handle, img.Memory, 0)); err != nil {
		img.Destroy(d)
		return nil, err
	}

	if cfg.viewAspect != 0 {
		view, err := createImageView(d, img.Handle, cfg.format, vk.ImageAspectFlags(cfg.viewAspect))
		if err != nil {
			img.Destroy(d)
			return nil, err
		}
		img.View = view
	}
	return img, nil
}

func createImageView(d *Device, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if err := check("vkCreateImageView", vk.CreateImageView(d.logical, &viewInfo, d.Allocator, &view)); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

func (img *VulkanImage) Destroy(d *Device) {
	if img.View != vk.NullImageView {
		vk.DestroyImageView(d.logical, img.View, d.Allocator)
		img.View = vk.NullImageView
	}
	if img.Handle != vk.NullImage {
		vk.DestroyImage(d.logical, img.Handle, d.Allocator)
		img.Handle = vk.NullImage
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.logical, img.Memory, d.Allocator)
		img.Memory = vk.NullDeviceMemory
	}
}

type layoutTransition struct {
	oldLayout, newLayout vk.ImageLayout
	srcAccess, dstAccess vk.AccessFlagBits
	srcStage, dstStage   vk.PipelineStageFlagBits
	aspect               vk.ImageAspectFlagBits
}

func transitionImageLayout(cmd vk.CommandBuffer, image vk.Image, t layoutTransition) {
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(t.srcStage), vk.PipelineStageFlags(t.dstStage),
		0, 0, nil, 0, nil, 1,
		[]vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(t.srcAccess),
			DstAccessMask:       vk.AccessFlags(t.dstAccess),
			OldLayout:           t.oldLayout,
			NewLayout:           t.newLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(t.aspect),
				LevelCount: 1,
				LayerCount: 1,
			},
		}})
}

// The swapchain render pass leaves its colour attachment in attachment
// layout, so the image is moved to present layout before the present.
func (d *Device) PresentBarrier(cb vulkan.CommandBuffer, image int) {
	transitionImageLayout(d.commandBuffers[cb].Handle, d.swapchain.Images[image], layoutTransition{
		oldLayout: vk.ImageLayoutColorAttachmentOptimal,
		newLayout: vk.ImageLayoutPresentSrc,
		srcAccess: vk.AccessColorAttachmentWriteBit,
		dstAccess: vk.AccessMemoryReadBit,
		srcStage:  vk.PipelineStageAllGraphicsBit,
		dstStage:  vk.PipelineStageAllGraphicsBit,
		aspect:    vk.ImageAspectColorBit,
	})
}

func (d *Device) ClearDepthImage(cb vulkan.CommandBuffer, depth vulkan.Image) {
	recordDepthClear(d.commandBuffers[cb].Handle, d.images[depth])
}

// recordDepthClear clears depth to 1.0 and stencil to 0 through a transfer,
// whatever layout the image was in, and leaves it in attachment layout.
func recordDepthClear(cmd vk.CommandBuffer, img *VulkanImage) {
	aspect := depthAspect(img.Format)

	transitionImageLayout(cmd, img.Handle, layoutTransition{
		oldLayout: vk.ImageLayoutUndefined,
		newLayout: vk.ImageLayoutTransferDstOptimal,
		dstAccess: vk.AccessTransferWriteBit,
		srcStage:  vk.PipelineStageColorAttachmentOutputBit,
		dstStage:  vk.PipelineStageTransferBit,
		aspect:    aspect,
	})

	vk.CmdClearDepthStencilImage(cmd, img.Handle, vk.ImageLayoutTransferDstOptimal,
		&vk.ClearDepthStencilValue{Depth: 1.0, Stencil: 0},
		1, []vk.ImageSubresourceRange{{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		}})

	transitionImageLayout(cmd, img.Handle, layoutTransition{
		oldLayout: vk.ImageLayoutTransferDstOptimal,
		newLayout: vk.ImageLayoutDepthStencilAttachmentOptimal,
		srcAccess: vk.AccessTransferWriteBit,
		dstAccess: vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit,
		srcStage:  vk.PipelineStageTransferBit,
		dstStage:  vk.PipelineStageColorAttachmentOutputBit,
		aspect:    aspect,
	})
}

func depthAspect(format vk.Format) vk.ImageAspectFlagBits {
	switch format {
	case vk.FormatD32SfloatS8Uint, vk.FormatD24UnormS8Uint:
		return vk.ImageAspectDepthBit | vk.ImageAspectStencilBit
	}
	return vk.ImageAspectDepthBit
}
