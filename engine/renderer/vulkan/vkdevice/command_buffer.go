package vkdevice

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	Pool   vk.CommandPool
}

func NewVulkanCommandBuffer(d *Device, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.logical, &allocateInfo, handles)); err != nil {
		return nil, err
	}
	return &VulkanCommandBuffer{Handle: handles[0], Pool: pool}, nil
}

func (v *VulkanCommandBuffer) Free(d *Device) {
	vk.FreeCommandBuffers(d.logical, v.Pool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
}

func (v *VulkanCommandBuffer) Begin(isSingleUse bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return check("vkBeginCommandBuffer", vk.BeginCommandBuffer(v.Handle, beginInfo))
}

func (v *VulkanCommandBuffer) End() error {
	return check("vkEndCommandBuffer", vk.EndCommandBuffer(v.Handle))
}

func (d *Device) addCommandBuffer(pool vk.CommandPool) (vulkan.CommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(d, pool)
	if err != nil {
		return 0, err
	}
	d.commandBuffers = append(d.commandBuffers, cb)
	return vulkan.CommandBuffer(len(d.commandBuffers) - 1), nil
}

// createCommandBuffers allocates, for every swapchain image, one command
// buffer per worker thread from that thread's pool and the pre-present and
// depth clear buffers from the auxiliary pool.
func (d *Device) createCommandBuffers() error {
	images := int(d.swapchain.ImageCount)
	d.threadCommandBuffers = make([][]vulkan.CommandBuffer, images)
	d.prePresent = make([]vulkan.CommandBuffer, images)
	d.clearDepth = make([]vulkan.CommandBuffer, images)

	var err error
	for i := 0; i < images; i++ {
		d.threadCommandBuffers[i] = make([]vulkan.CommandBuffer, d.opts.MaxThreads)
		for thr := range d.threadCommandBuffers[i] {
			if d.threadCommandBuffers[i][thr], err = d.addCommandBuffer(d.threadPools[thr]); err != nil {
				return err
			}
		}
		if d.prePresent[i], err = d.addCommandBuffer(d.auxPool); err != nil {
			return err
		}
		if d.clearDepth[i], err = d.addCommandBuffer(d.auxPool); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) destroyCommandBuffers() {
	for _, cb := range d.commandBuffers {
		cb.Free(d)
	}
	d.commandBuffers = nil
}

func (d *Device) BeginCommandBuffer(cb vulkan.CommandBuffer) error {
	c := d.commandBuffers[cb]
	if err := check("vkResetCommandBuffer", vk.ResetCommandBuffer(c.Handle, 0)); err != nil {
		return err
	}
	return c.Begin(false)
}

func (d *Device) EndCommandBuffer(cb vulkan.CommandBuffer) error {
	return d.commandBuffers[cb].End()
}

func (d *Device) Draw(cb vulkan.CommandBuffer, vertexCount uint32) {
	vk.CmdDraw(d.commandBuffers[cb].Handle, vertexCount, 1, 0, 0)
}

// Submit queues cbs without a fence. A wait semaphore blocks the top of the
// pipe.
func (d *Device) Submit(cbs []vulkan.CommandBuffer, wait, signal vulkan.Semaphore) error {
	handles := make([]vk.CommandBuffer, len(cbs))
	for i, cb := range cbs {
		handles[i] = d.commandBuffers[cb].Handle
	}
	return d.submit(handles, wait, signal, vk.NullFence)
}

func (d *Device) submit(handles []vk.CommandBuffer, wait, signal vulkan.Semaphore, fence vk.Fence) error {
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(handles)),
		PCommandBuffers:    handles,
	}
	if wait != vulkan.NoSemaphore {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{d.semaphore(wait)}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)}
	}
	if signal != vulkan.NoSemaphore {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{d.semaphore(signal)}
	}
	return d.locks.SafeCall(QueueManagement, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submitInfo}, fence))
	})
}

func (d *Device) QueueWaitIdle() error {
	return d.locks.SafeCall(QueueManagement, func() error {
		return check("vkQueueWaitIdle", vk.QueueWaitIdle(d.queue))
	})
}

// executeSingleUse records fn into a fresh command buffer from the auxiliary
// pool, submits it and waits on a fence before freeing it.
func (d *Device) executeSingleUse(fn func(cmd vk.CommandBuffer)) error {
	cb, err := NewVulkanCommandBuffer(d, d.auxPool)
	if err != nil {
		return err
	}
	defer cb.Free(d)

	if err := cb.Begin(true); err != nil {
		return err
	}
	fn(cb.Handle)
	if err := cb.End(); err != nil {
		return err
	}

	fence, err := NewFence(d, false)
	if err != nil {
		return err
	}
	defer fence.FenceDestroy(d)

	if err := d.submit([]vk.CommandBuffer{cb.Handle}, vulkan.NoSemaphore, vulkan.NoSemaphore, fence.Handle); err != nil {
		return err
	}
	return fence.FenceWait(d, vk.MaxUint64)
}
