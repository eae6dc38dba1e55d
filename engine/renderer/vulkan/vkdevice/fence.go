package vkdevice

import (
	vk "github.com/goki/vulkan"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(d *Device, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		IsSignaled: createSignaled,
	}
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if createSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	if err := check("vkCreateFence", vk.CreateFence(d.logical, &fenceCreateInfo, d.Allocator, &fence.Handle)); err != nil {
		return nil, err
	}
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(d *Device) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(d.logical, vf.Handle, d.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// FenceWait returns at once when the fence is known to be signalled.
func (vf *VulkanFence) FenceWait(d *Device, timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}
	if err := check("vkWaitForFences", vk.WaitForFences(d.logical, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)); err != nil {
		return err
	}
	vf.IsSignaled = true
	return nil
}
