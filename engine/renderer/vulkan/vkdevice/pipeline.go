package vkdevice

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
}

type VulkanPipelineConfig struct {
	/** @brief The renderpass the pipeline draws in. */
	Renderpass *VulkanRenderpass
	/** @brief The layout of the vertex data. */
	VertexLayout metadata.VertexLayout
	/** @brief An array of descriptor set layouts. */
	DescriptorSetLayouts []vk.DescriptorSetLayout
	/** @brief An array of stages. */
	Stages []vk.PipelineShaderStageCreateInfo
	DepthTest     bool
	AlphaBlending bool
	/** @brief Draw patches of three control points instead of triangles. */
	Tessellation bool
}

// Everything the device created for one shader.
type shaderObjects struct {
	spec       metadata.ShaderSpec
	stages     []*VulkanShaderStage
	setLayouts []vk.DescriptorSetLayout
	pipeline   *VulkanPipeline
	// Descriptor sets indexed by [swapchain image][set].
	sets [][]vk.DescriptorSet
}

func (d *Device) createShaders() error {
	for _, name := range d.resources.ShaderNames() {
		spec, err := d.resources.ShaderSpec(name)
		if err != nil {
			return err
		}
		obj := &shaderObjects{spec: spec}
		d.shaders[name] = obj
		if err := d.createShader(obj); err != nil {
			return fmt.Errorf("shader %s: %w", name, err)
		}
		core.LogDebug("Vulkan pipeline for shader %s created.", name)
	}
	return nil
}

func (d *Device) createShader(obj *shaderObjects) error {
	tessellation := false
	for _, file := range obj.spec.ShaderFiles {
		stage, err := NewShaderModule(d, file)
		if err != nil {
			return err
		}
		obj.stages = append(obj.stages, stage)
		if file.Stage == metadata.ShaderStageTessControl || file.Stage == metadata.ShaderStageTessEval {
			tessellation = true
		}
	}

	var err error
	if obj.setLayouts, err = d.createDescriptorSetLayouts(&obj.spec); err != nil {
		return err
	}

	obj.sets = make([][]vk.DescriptorSet, d.swapchain.ImageCount)
	for i := range obj.sets {
		if obj.sets[i], err = d.allocateDescriptorSets(&obj.spec, obj.setLayouts); err != nil {
			return err
		}
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(obj.stages))
	for i, s := range obj.stages {
		stages[i] = s.ShaderStageCreateInfo
	}
	obj.pipeline, err = NewGraphicsPipeline(d, &VulkanPipelineConfig{
		Renderpass:           d.renderpass[obj.spec.Pass],
		VertexLayout:         obj.spec.VertexLayout,
		DescriptorSetLayouts: obj.setLayouts,
		Stages:               stages,
		DepthTest:            obj.spec.DepthTest,
		AlphaBlending:        obj.spec.AlphaBlending,
		Tessellation:         tessellation,
	})
	return err
}

func (d *Device) destroyShaders() {
	for name, obj := range d.shaders {
		if obj.pipeline != nil {
			obj.pipeline.Destroy(d)
		}
		for _, layout := range obj.setLayouts {
			vk.DestroyDescriptorSetLayout(d.logical, layout, d.Allocator)
		}
		for _, stage := range obj.stages {
			stage.Destroy(d)
		}
		delete(d.shaders, name)
	}
}

func vertexInputAttributes(layout metadata.VertexLayout) []vk.VertexInputAttributeDescription {
	formats := map[int]vk.Format{
		2: vk.FormatR32g32Sfloat,
		3: vk.FormatR32g32b32Sfloat,
	}
	var attributes []vk.VertexInputAttributeDescription
	offset := 0
	for location, size := range layout.AttributeSizes() {
		attributes = append(attributes, vk.VertexInputAttributeDescription{
			Binding:  0,
			Location: uint32(location),
			Format:   formats[size],
			Offset:   uint32(offset * int(unsafe.Sizeof(float32(0)))),
		})
		offset += size
	}
	return attributes
}

func NewGraphicsPipeline(d *Device, config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	outPipeline := &VulkanPipeline{}

	// Viewport and scissor are dynamic, set when a pass begins.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		DepthCompareOp:    vk.CompareOpLess,
		StencilTestEnable: vk.False,
		MaxDepthBounds:    1.0,
	}
	if config.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
	}

	colorWriteMask := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
		vk.ColorComponentBBit | vk.ColorComponentABit)
	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorOne,
		DstColorBlendFactor: vk.BlendFactorZero,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask:      colorWriteMask,
	}
	if config.AlphaBlending {
		colorBlendAttachmentState.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		colorBlendAttachmentState.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	bindingDescription := vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    uint32(config.VertexLayout.ComponentsPerVertex() * int(unsafe.Sizeof(float32(0)))),
		InputRate: vk.VertexInputRateVertex,
	}
	attributes := vertexInputAttributes(config.VertexLayout)
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{bindingDescription},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}
	var tessellationState *vk.PipelineTessellationStateCreateInfo
	if config.Tessellation {
		inputAssembly.Topology = vk.PrimitiveTopologyPatchList
		tessellationState = &vk.PipelineTessellationStateCreateInfo{
			SType:              vk.StructureTypePipelineTessellationStateCreateInfo,
			PatchControlPoints: metadata.VerticesPerTriangle,
		}
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(config.DescriptorSetLayouts)),
		PSetLayouts:    config.DescriptorSetLayouts,
	}

	if err := d.locks.SafeCall(PipelineManagement, func() error {
		return check("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.logical, &pipelineLayoutCreateInfo, d.Allocator, &outPipeline.PipelineLayout))
	}); err != nil {
		return nil, err
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(config.Stages)),
		PStages:             config.Stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PTessellationState:  tessellationState,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              outPipeline.PipelineLayout,
		RenderPass:          config.Renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		return check("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(d.logical, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, d.Allocator, pipelines))
	}); err != nil {
		outPipeline.Destroy(d)
		return nil, err
	}
	outPipeline.Handle = pipelines[0]
	return outPipeline, nil
}

func (pipeline *VulkanPipeline) Destroy(d *Device) {
	if pipeline.Handle != vk.NullPipeline {
		vk.DestroyPipeline(d.logical, pipeline.Handle, d.Allocator)
		pipeline.Handle = vk.NullPipeline
	}
	if pipeline.PipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(d.logical, pipeline.PipelineLayout, d.Allocator)
		pipeline.PipelineLayout = vk.NullPipelineLayout
	}
}

// BindPipeline binds the pipeline of shader and its descriptor sets for image.
func (d *Device) BindPipeline(cb vulkan.CommandBuffer, shader string, image int) {
	obj, ok := d.shaders[shader]
	if !ok {
		core.LogError("no pipeline for shader %s", shader)
		return
	}
	cmd := d.commandBuffers[cb].Handle
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, obj.pipeline.Handle)
	if sets := obj.sets[image]; len(sets) > 0 {
		vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, obj.pipeline.PipelineLayout,
			0, uint32(len(sets)), sets, 0, nil)
	}
}
