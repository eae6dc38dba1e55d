package vkdevice

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

var descriptorTypes = map[metadata.UniformType]vk.DescriptorType{
	metadata.UniformTypeSampler:              vk.DescriptorTypeSampler,
	metadata.UniformTypeCombinedImageSampler: vk.DescriptorTypeCombinedImageSampler,
	metadata.UniformTypeSampledImage:         vk.DescriptorTypeSampledImage,
	metadata.UniformTypeStorageImage:         vk.DescriptorTypeStorageImage,
	metadata.UniformTypeUniformTexelBuffer:   vk.DescriptorTypeUniformTexelBuffer,
	metadata.UniformTypeStorageTexelBuffer:   vk.DescriptorTypeStorageTexelBuffer,
	metadata.UniformTypeUniformBuffer:        vk.DescriptorTypeUniformBuffer,
	metadata.UniformTypeStorageBuffer:        vk.DescriptorTypeStorageBuffer,
	metadata.UniformTypeUniformBufferDynamic: vk.DescriptorTypeUniformBufferDynamic,
	metadata.UniformTypeStorageBufferDynamic: vk.DescriptorTypeStorageBufferDynamic,
	metadata.UniformTypeInputAttachment:      vk.DescriptorTypeInputAttachment,
}

const allGraphicsStages = vk.ShaderStageVertexBit | vk.ShaderStageTessellationControlBit |
	vk.ShaderStageTessellationEvaluationBit | vk.ShaderStageGeometryBit | vk.ShaderStageFragmentBit

// numberOfSets is one past the highest set index any uniform of the shader uses.
func numberOfSets(resources *metadata.ResourceManager, spec *metadata.ShaderSpec) uint32 {
	var n uint32
	for _, name := range spec.UniformBlockNames {
		if block, err := resources.UniformBlock(name); err == nil && block.Set+1 > n {
			n = block.Set + 1
		}
	}
	for _, u := range spec.UniformSpecs {
		if u.Set+1 > n {
			n = u.Set + 1
		}
	}
	return n
}

// createDescriptorPool sizes the pool for every shader's sets on every
// swapchain image.
func (d *Device) createDescriptorPool() error {
	images := d.swapchain.ImageCount
	shaders := uint32(len(d.resources.ShaderNames()))
	blocks := uint32(len(d.resources.UniformBlockNames()))

	var maxSets, samplers uint32
	for _, name := range d.resources.ShaderNames() {
		spec, err := d.resources.ShaderSpec(name)
		if err != nil {
			return err
		}
		maxSets += numberOfSets(d.resources, &spec)
		for _, u := range spec.UniformSpecs {
			if u.UniformType == metadata.UniformTypeCombinedImageSampler {
				samplers++
			}
		}
	}

	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: max(1, images*shaders*blocks)},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: max(1, images*samplers)},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       max(1, images*maxSets),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	return check("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.logical, &poolInfo, d.Allocator, &d.descriptorPool))
}

// createDescriptorSetLayouts builds one layout per set index used by spec.
func (d *Device) createDescriptorSetLayouts(spec *metadata.ShaderSpec) ([]vk.DescriptorSetLayout, error) {
	n := numberOfSets(d.resources, spec)
	bindings := make([][]vk.DescriptorSetLayoutBinding, n)
	for _, name := range spec.UniformBlockNames {
		block, err := d.resources.UniformBlock(name)
		if err != nil {
			return nil, err
		}
		bindings[block.Set] = append(bindings[block.Set], vk.DescriptorSetLayoutBinding{
			Binding:         block.Binding,
			DescriptorType:  descriptorTypes[block.BlockType],
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(allGraphicsStages),
		})
	}
	for _, u := range spec.UniformSpecs {
		bindings[u.Set] = append(bindings[u.Set], vk.DescriptorSetLayoutBinding{
			Binding:         u.Binding,
			DescriptorType:  descriptorTypes[u.UniformType],
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(allGraphicsStages),
		})
	}

	layouts := make([]vk.DescriptorSetLayout, n)
	for set := range bindings {
		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings[set])),
			PBindings:    bindings[set],
		}
		if err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.logical, &layoutInfo, d.Allocator, &layouts[set])); err != nil {
			return layouts[:set], err
		}
	}
	return layouts, nil
}

// allocateDescriptorSets allocates the sets of one shader for one swapchain
// image and points its uniform block bindings at the device buffers.
func (d *Device) allocateDescriptorSets(spec *metadata.ShaderSpec, layouts []vk.DescriptorSetLayout) ([]vk.DescriptorSet, error) {
	if len(layouts) == 0 {
		return nil, nil
	}
	sets := make([]vk.DescriptorSet, len(layouts))
	for i, layout := range layouts {
		allocInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     d.descriptorPool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{layout},
		}
		if err := check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(d.logical, &allocInfo, &sets[i])); err != nil {
			return nil, err
		}
	}

	var writes []vk.WriteDescriptorSet
	for _, name := range spec.UniformBlockNames {
		block, err := d.resources.UniformBlock(name)
		if err != nil {
			return nil, err
		}
		buf := d.uniformBuffers[name]
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          sets[block.Set],
			DstBinding:      block.Binding,
			DescriptorCount: 1,
			DescriptorType:  descriptorTypes[block.BlockType],
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: buf.Handle,
				Offset: 0,
				Range:  vk.DeviceSize(buf.Size),
			}},
		})
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(d.logical, uint32(len(writes)), writes, 0, nil)
	}
	return sets, nil
}

// bindSampledImage points every combined image sampler at binding, in every
// shader and on every swapchain image, at view.
func (d *Device) bindSampledImage(view vk.ImageView, binding uint32) int {
	var writes []vk.WriteDescriptorSet
	for _, obj := range d.shaders {
		for _, u := range obj.spec.UniformSpecs {
			if u.UniformType != metadata.UniformTypeCombinedImageSampler || u.Binding != binding {
				continue
			}
			for _, sets := range obj.sets {
				writes = append(writes, vk.WriteDescriptorSet{
					SType:           vk.StructureTypeWriteDescriptorSet,
					DstSet:          sets[u.Set],
					DstBinding:      u.Binding,
					DescriptorCount: 1,
					DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
					PImageInfo: []vk.DescriptorImageInfo{{
						Sampler:     d.sampler,
						ImageView:   view,
						ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
					}},
				})
			}
		}
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(d.logical, uint32(len(writes)), writes, 0, nil)
	}
	return len(writes)
}

// BindSampledImage makes the samplers at binding read img. The descriptor
// sets may still be in use by earlier frames, so the device is drained first.
func (d *Device) BindSampledImage(img vulkan.Image, binding uint32) error {
	if int(img) >= len(d.images) || d.images[img] == nil {
		return fmt.Errorf("bind of destroyed image %d", img)
	}
	if err := d.WaitIdle(); err != nil {
		return err
	}
	if d.bindSampledImage(d.images[img].View, binding) == 0 {
		core.LogShaderWarn("no shader samples binding %d", binding)
	}
	return nil
}

func (d *Device) createSampler() error {
	samplerInfo := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        vk.FilterLinear,
		MinFilter:        vk.FilterLinear,
		MipmapMode:       vk.SamplerMipmapModeLinear,
		AddressModeU:     vk.SamplerAddressModeClampToEdge,
		AddressModeV:     vk.SamplerAddressModeClampToEdge,
		AddressModeW:     vk.SamplerAddressModeClampToEdge,
		MaxAnisotropy:    1.0,
		CompareOp:        vk.CompareOpAlways,
		BorderColor:      vk.BorderColorFloatOpaqueBlack,
		AnisotropyEnable: vk.False,
	}
	return check("vkCreateSampler", vk.CreateSampler(d.logical, &samplerInfo, d.Allocator, &d.sampler))
}
