package vkdevice

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func FramebufferCreate(d *Device, renderpass *VulkanRenderpass, width, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	out := &VulkanFramebuffer{
		Attachments: append([]vk.ImageView(nil), attachments...),
		Renderpass:  renderpass,
	}
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(out.Attachments)),
		PAttachments:    out.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(d.logical, &framebufferCreateInfo, d.Allocator, &out.Handle)); err != nil {
		return nil, err
	}
	return out, nil
}

func (vfb *VulkanFramebuffer) Destroy(d *Device) {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(d.logical, vfb.Handle, d.Allocator)
		vfb.Handle = vk.NullFramebuffer
	}
	vfb.Attachments = nil
	vfb.Renderpass = nil
}

func (d *Device) addFramebuffer(fb *VulkanFramebuffer) vulkan.Framebuffer {
	d.framebuffers = append(d.framebuffers, fb)
	return vulkan.Framebuffer(len(d.framebuffers) - 1)
}

func (d *Device) createSwapchainFramebuffers() error {
	d.swapchainFramebuffer = make([]vulkan.Framebuffer, d.swapchain.ImageCount)
	for i, view := range d.swapchain.Views {
		fb, err := FramebufferCreate(d, d.renderpass[metadata.RenderTargetSwapchain],
			d.swapchain.Extent.Width, d.swapchain.Extent.Height, []vk.ImageView{view})
		if err != nil {
			return err
		}
		d.swapchainFramebuffer[i] = d.addFramebuffer(fb)
	}
	return nil
}
