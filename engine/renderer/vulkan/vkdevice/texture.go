package vkdevice

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

var textureFormats = map[metadata.TextureFormat]vk.Format{
	metadata.TextureFormatFloatRGBA: vk.FormatR32g32b32a32Sfloat,
	metadata.TextureFormatUByteRGBA: vk.FormatR8g8b8a8Unorm,
}

// CreateTexture creates a device local image that shaders can sample and
// fills it from data through a host visible staging buffer. With no data the
// image is only moved to shader read layout.
func (d *Device) CreateTexture(width, height int, format metadata.TextureFormat, data []byte) (vulkan.Image, error) {
	w, h := uint32(width), uint32(height)
	img, err := createImage(d, imageConfig{
		width:       w,
		height:      h,
		format:      textureFormats[format],
		tiling:      vk.ImageTilingOptimal,
		usage:       vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit,
		memoryFlags: vk.MemoryPropertyDeviceLocalBit,
		viewAspect:  vk.ImageAspectColorBit,
	})
	if err != nil {
		return 0, err
	}

	var staging *VulkanBuffer
	if len(data) > 0 {
		if staging, err = createBuffer(d, len(data), vk.BufferUsageTransferSrcBit); err != nil {
			img.Destroy(d)
			return 0, err
		}
		defer staging.Destroy(d)
		if err := staging.Upload(d, data); err != nil {
			img.Destroy(d)
			return 0, err
		}
	}

	err = d.executeSingleUse(func(cmd vk.CommandBuffer) {
		if staging == nil {
			transitionImageLayout(cmd, img.Handle, layoutTransition{
				oldLayout: vk.ImageLayoutUndefined,
				newLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				dstAccess: vk.AccessShaderReadBit,
				srcStage:  vk.PipelineStageTopOfPipeBit,
				dstStage:  vk.PipelineStageFragmentShaderBit,
				aspect:    vk.ImageAspectColorBit,
			})
			return
		}

		transitionImageLayout(cmd, img.Handle, layoutTransition{
			oldLayout: vk.ImageLayoutUndefined,
			newLayout: vk.ImageLayoutTransferDstOptimal,
			dstAccess: vk.AccessTransferWriteBit,
			srcStage:  vk.PipelineStageTopOfPipeBit,
			dstStage:  vk.PipelineStageTransferBit,
			aspect:    vk.ImageAspectColorBit,
		})
		vk.CmdCopyBufferToImage(cmd, staging.Handle, img.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: w, Height: h, Depth: 1},
		}})
		transitionImageLayout(cmd, img.Handle, layoutTransition{
			oldLayout: vk.ImageLayoutTransferDstOptimal,
			newLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			srcAccess: vk.AccessTransferWriteBit,
			dstAccess: vk.AccessShaderReadBit,
			srcStage:  vk.PipelineStageTransferBit,
			dstStage:  vk.PipelineStageFragmentShaderBit,
			aspect:    vk.ImageAspectColorBit,
		})
	})
	if err != nil {
		img.Destroy(d)
		return 0, err
	}
	return d.addImage(img), nil
}

// DestroyImage frees an image handed out by CreateTexture once the device is
// done with it.
func (d *Device) DestroyImage(i vulkan.Image) {
	if i < 0 || int(i) >= len(d.images) || d.images[i] == nil {
		return
	}
	vk.DeviceWaitIdle(d.logical)
	d.images[i].Destroy(d)
	d.images[i] = nil
}
