package vkdevice

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/renderer/batch"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

/** @brief A buffer backed by host visible, coherent memory. */
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   int
}

func createBuffer(d *Device, size int, usage vk.BufferUsageFlagBits) (*VulkanBuffer, error) {
	b := &VulkanBuffer{Size: size}
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if err := check("vkCreateBuffer", vk.CreateBuffer(d.logical, &bufferInfo, d.Allocator, &b.Handle)); err != nil {
		return nil, err
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, b.Handle, &memReqs)
	memReqs.Deref()
	mem, err := d.allocateMemory(memReqs, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		b.Destroy(d)
		return nil, err
	}
	b.Memory = mem
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(d.logical, b.Handle, b.Memory, 0)); err != nil {
		b.Destroy(d)
		return nil, err
	}
	return b, nil
}

func (b *VulkanBuffer) Destroy(d *Device) {
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(d.logical, b.Handle, d.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.logical, b.Memory, d.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
}

// Upload maps the whole buffer, copies data to its start and unmaps it.
func (b *VulkanBuffer) Upload(d *Device, data []byte) error {
	if len(data) > b.Size {
		return fmt.Errorf("upload of %d bytes into a buffer of %d", len(data), b.Size)
	}
	var ptr unsafe.Pointer
	if err := check("vkMapMemory", vk.MapMemory(d.logical, b.Memory, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr)); err != nil {
		return err
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(d.logical, b.Memory)
	return nil
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that has
// all of propertyFlags, or -1.
func (d *Device) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	memory := d.physical.Memory
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	return -1
}

func (d *Device) allocateMemory(reqs vk.MemoryRequirements, flags vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	index := d.FindMemoryIndex(reqs.MemoryTypeBits, vk.MemoryPropertyFlags(flags))
	if index < 0 {
		return vk.NullDeviceMemory, fmt.Errorf("no suitable memory type for flags %#x", flags)
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}
	var mem vk.DeviceMemory
	err := d.locks.SafeCall(MemoryManagement, func() error {
		return check("vkAllocateMemory", vk.AllocateMemory(d.logical, &allocInfo, d.Allocator, &mem))
	})
	if err != nil {
		return vk.NullDeviceMemory, err
	}
	return mem, nil
}

// CreateVertexBuffer sizes the buffer for a full batch of layout.
func (d *Device) CreateVertexBuffer(layout metadata.VertexLayout) (vulkan.Buffer, error) {
	size := batch.Capacity * layout.ComponentsPerTriangle() * int(unsafe.Sizeof(float32(0)))
	var handle vulkan.Buffer
	err := d.locks.SafeCall(BufferManagement, func() error {
		b, err := createBuffer(d, size, vk.BufferUsageVertexBufferBit)
		if err != nil {
			return err
		}
		d.bufferMu.Lock()
		handle = vulkan.Buffer(len(d.buffers))
		d.buffers = append(d.buffers, b)
		d.bufferMu.Unlock()
		return nil
	})
	return handle, err
}

func (d *Device) buffer(h vulkan.Buffer) *VulkanBuffer {
	d.bufferMu.RLock()
	defer d.bufferMu.RUnlock()
	return d.buffers[h]
}

func (d *Device) UploadVertices(buf vulkan.Buffer, data []float32) error {
	if len(data) == 0 {
		return nil
	}
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*int(unsafe.Sizeof(data[0])))
	return d.buffer(buf).Upload(d, bytes)
}

func (d *Device) BindVertexBuffer(cb vulkan.CommandBuffer, buf vulkan.Buffer) {
	vk.CmdBindVertexBuffers(d.commandBuffers[cb].Handle, 0, 1, []vk.Buffer{d.buffer(buf).Handle}, []vk.DeviceSize{0})
}

func (d *Device) createUniformBuffers() error {
	for _, name := range d.resources.UniformBlockNames() {
		spec, err := d.resources.UniformBlock(name)
		if err != nil {
			return err
		}
		b, err := createBuffer(d, spec.Size, vk.BufferUsageUniformBufferBit)
		if err != nil {
			return fmt.Errorf("uniform block %s: %w", name, err)
		}
		d.uniformBuffers[name] = b
	}
	return nil
}

func (d *Device) UploadUniforms(block string, data []byte) error {
	b, ok := d.uniformBuffers[block]
	if !ok {
		return fmt.Errorf("no device buffer for uniform block %s", block)
	}
	return b.Upload(d, data)
}
