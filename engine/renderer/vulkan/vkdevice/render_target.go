package vkdevice

import (
	"encoding/binary"
	gomath "math"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

const bytesPerTexel = 4 * 4

func (d *Device) addImage(img *VulkanImage) vulkan.Image {
	d.images = append(d.images, img)
	return vulkan.Image(len(d.images) - 1)
}

// CreateRenderTarget creates the colour and depth images of an offscreen
// target and its framebuffer. The colour image starts in shader read layout
// and the depth image starts cleared.
func (d *Device) CreateRenderTarget(width, height int) (vulkan.TargetHandles, error) {
	w, h := uint32(width), uint32(height)
	color, err := createImage(d, imageConfig{
		width:       w,
		height:      h,
		format:      offscreenColorFormat,
		tiling:      vk.ImageTilingOptimal,
		usage:       vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit,
		memoryFlags: vk.MemoryPropertyDeviceLocalBit,
		viewAspect:  vk.ImageAspectColorBit,
	})
	if err != nil {
		return vulkan.TargetHandles{}, err
	}
	depth, err := createImage(d, imageConfig{
		width:       w,
		height:      h,
		format:      d.physical.DepthFormat,
		tiling:      vk.ImageTilingOptimal,
		usage:       vk.ImageUsageDepthStencilAttachmentBit | vk.ImageUsageTransferDstBit,
		memoryFlags: vk.MemoryPropertyDeviceLocalBit,
		viewAspect:  depthAspect(d.physical.DepthFormat),
	})
	if err != nil {
		color.Destroy(d)
		return vulkan.TargetHandles{}, err
	}
	fb, err := FramebufferCreate(d, d.renderpass[metadata.RenderTargetOffscreen], w, h, []vk.ImageView{color.View, depth.View})
	if err != nil {
		color.Destroy(d)
		depth.Destroy(d)
		return vulkan.TargetHandles{}, err
	}

	handles := vulkan.TargetHandles{
		Color:       d.addImage(color),
		Depth:       d.addImage(depth),
		Framebuffer: d.addFramebuffer(fb),
	}

	err = d.executeSingleUse(func(cmd vk.CommandBuffer) {
		transitionImageLayout(cmd, color.Handle, layoutTransition{
			oldLayout: vk.ImageLayoutUndefined,
			newLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			dstAccess: vk.AccessShaderReadBit,
			srcStage:  vk.PipelineStageTopOfPipeBit,
			dstStage:  vk.PipelineStageFragmentShaderBit,
			aspect:    vk.ImageAspectColorBit,
		})
		recordDepthClear(cmd, depth)
	})
	if err != nil {
		d.DestroyRenderTarget(handles)
		return vulkan.TargetHandles{}, err
	}
	return handles, nil
}

func (d *Device) DestroyRenderTarget(h vulkan.TargetHandles) {
	vk.DeviceWaitIdle(d.logical)
	if fb := d.framebuffers[h.Framebuffer]; fb != nil {
		fb.Destroy(d)
		d.framebuffers[h.Framebuffer] = nil
	}
	for _, i := range []vulkan.Image{h.Color, h.Depth} {
		if img := d.images[i]; img != nil {
			img.Destroy(d)
			d.images[i] = nil
		}
	}
}

// ReadRenderTarget copies the colour image into a linear, host visible
// staging image and converts its float texels to 8 bit RGB, last row first.
func (d *Device) ReadRenderTarget(h vulkan.TargetHandles, width, height int) ([]byte, error) {
	color := d.images[h.Color]
	staging, err := createImage(d, imageConfig{
		width:       uint32(width),
		height:      uint32(height),
		format:      offscreenColorFormat,
		tiling:      vk.ImageTilingLinear,
		usage:       vk.ImageUsageTransferDstBit,
		memoryFlags: vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit,
	})
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(d)

	err = d.executeSingleUse(func(cmd vk.CommandBuffer) {
		transitionImageLayout(cmd, color.Handle, layoutTransition{
			oldLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			newLayout: vk.ImageLayoutTransferSrcOptimal,
			srcAccess: vk.AccessColorAttachmentWriteBit,
			dstAccess: vk.AccessTransferReadBit,
			srcStage:  vk.PipelineStageColorAttachmentOutputBit,
			dstStage:  vk.PipelineStageTransferBit,
			aspect:    vk.ImageAspectColorBit,
		})
		transitionImageLayout(cmd, staging.Handle, layoutTransition{
			oldLayout: vk.ImageLayoutUndefined,
			newLayout: vk.ImageLayoutTransferDstOptimal,
			dstAccess: vk.AccessTransferWriteBit,
			srcStage:  vk.PipelineStageTopOfPipeBit,
			dstStage:  vk.PipelineStageTransferBit,
			aspect:    vk.ImageAspectColorBit,
		})

		layers := vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		}
		vk.CmdCopyImage(cmd, color.Handle, vk.ImageLayoutTransferSrcOptimal,
			staging.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageCopy{{
				SrcSubresource: layers,
				DstSubresource: layers,
				Extent:         vk.Extent3D{Width: uint32(width), Height: uint32(height), Depth: 1},
			}})

		transitionImageLayout(cmd, color.Handle, layoutTransition{
			oldLayout: vk.ImageLayoutTransferSrcOptimal,
			newLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			srcAccess: vk.AccessTransferReadBit,
			dstAccess: vk.AccessShaderReadBit,
			srcStage:  vk.PipelineStageTransferBit,
			dstStage:  vk.PipelineStageFragmentShaderBit,
			aspect:    vk.ImageAspectColorBit,
		})
		transitionImageLayout(cmd, staging.Handle, layoutTransition{
			oldLayout: vk.ImageLayoutTransferDstOptimal,
			newLayout: vk.ImageLayoutGeneral,
			srcAccess: vk.AccessTransferWriteBit,
			dstAccess: vk.AccessHostReadBit,
			srcStage:  vk.PipelineStageTransferBit,
			dstStage:  vk.PipelineStageHostBit,
			aspect:    vk.ImageAspectColorBit,
		})
	})
	if err != nil {
		return nil, err
	}

	var layout vk.SubresourceLayout
	vk.GetImageSubresourceLayout(d.logical, staging.Handle, &vk.ImageSubresource{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	}, &layout)
	layout.Deref()

	size := int(layout.Offset) + int(layout.RowPitch)*height
	var ptr unsafe.Pointer
	if err := check("vkMapMemory", vk.MapMemory(d.logical, staging.Memory, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr)); err != nil {
		return nil, err
	}
	texels := make([]byte, size)
	copy(texels, unsafe.Slice((*byte)(ptr), size))
	vk.UnmapMemory(d.logical, staging.Memory)

	return floatTexelsToRGB(texels, int(layout.Offset), int(layout.RowPitch), width, height), nil
}

// floatTexelsToRGB converts rows of RGBA float texels, rowPitch bytes apart,
// into tightly packed 8 bit RGB with the last row first.
func floatTexelsToRGB(texels []byte, offset, rowPitch, width, height int) []byte {
	rgb := make([]byte, 0, width*height*3)
	for y := height - 1; y >= 0; y-- {
		row := texels[offset+y*rowPitch:]
		for x := 0; x < width; x++ {
			texel := row[x*bytesPerTexel:]
			for c := 0; c < 3; c++ {
				f := gomath.Float32frombits(binary.LittleEndian.Uint32(texel[c*4:]))
				rgb = append(rgb, byte(math.Clamp(f*255.0, 0, 255)))
			}
		}
	}
	return rgb
}
