package vkdevice

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

// Colour format of offscreen render targets.
const offscreenColorFormat = vk.FormatR32g32b32a32Sfloat

type VulkanRenderpass struct {
	Handle      vk.RenderPass
	ColorFormat vk.Format
	// DepthFormat is FormatUndefined for a pass without depth attachment.
	DepthFormat vk.Format
}

// createRenderpasses creates one pass per render target kind: the swapchain
// pass has a single colour attachment, the offscreen pass adds a depth
// attachment that keeps its contents between passes and leaves its colour
// attachment ready to be sampled.
func (d *Device) createRenderpasses() error {
	var err error
	d.renderpass[metadata.RenderTargetSwapchain], err = RenderpassCreate(d,
		d.swapchain.ImageFormat.Format, vk.ImageLayoutColorAttachmentOptimal, vk.FormatUndefined)
	if err != nil {
		return err
	}
	d.renderpass[metadata.RenderTargetOffscreen], err = RenderpassCreate(d,
		offscreenColorFormat, vk.ImageLayoutShaderReadOnlyOptimal, d.physical.DepthFormat)
	return err
}

func RenderpassCreate(d *Device, colorFormat vk.Format, colorFinalLayout vk.ImageLayout, depthFormat vk.Format) (*VulkanRenderpass, error) {
	out := &VulkanRenderpass{ColorFormat: colorFormat, DepthFormat: depthFormat}

	attachments := []vk.AttachmentDescription{{
		Format:         colorFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpDontCare,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    colorFinalLayout,
	}}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}

	if depthFormat != vk.FormatUndefined {
		// Depth is cleared explicitly, never by the pass.
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	// Submissions wait at the top of the pipe, so no external dependency is
	// declared.
	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(d.logical, &renderpassCreateInfo, d.Allocator, &out.Handle)); err != nil {
		return nil, err
	}
	return out, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(d *Device) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(d.logical, vr.Handle, d.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

// BeginRenderPass begins pass over the whole of fb. Nothing is cleared, and
// viewport and scissor are set to the framebuffer size.
func (d *Device) BeginRenderPass(cb vulkan.CommandBuffer, pass metadata.RenderTargetID, fb vulkan.Framebuffer, width, height uint32) {
	cmd := d.commandBuffers[cb].Handle
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  d.renderpass[pass].Handle,
		Framebuffer: d.framebuffers[fb].Handle,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: width, Height: height},
		},
	}
	vk.CmdBeginRenderPass(cmd, &beginInfo, vk.SubpassContentsInline)

	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{{
		Width:    float32(width),
		Height:   float32(height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}})
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{{
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
}

func (d *Device) EndRenderPass(cb vulkan.CommandBuffer) {
	vk.CmdEndRenderPass(d.commandBuffers[cb].Handle)
}
