package vkdevice

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/assets"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

var shaderStageFlags = map[metadata.ShaderStage]vk.ShaderStageFlagBits{
	metadata.ShaderStageVertex:      vk.ShaderStageVertexBit,
	metadata.ShaderStageTessControl: vk.ShaderStageTessellationControlBit,
	metadata.ShaderStageTessEval:    vk.ShaderStageTessellationEvaluationBit,
	metadata.ShaderStageGeometry:    vk.ShaderStageGeometryBit,
	metadata.ShaderStageFragment:    vk.ShaderStageFragmentBit,
}

// NewShaderModule loads the SPIR-V built from file and wraps it in a shader
// module with its stage create info.
func NewShaderModule(d *Device, file metadata.ShaderFileSpec) (*VulkanShaderStage, error) {
	path := d.resources.Path(file.SpirvOut)
	code, err := assets.LoadSPIRV(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrShaderBuild, path, err)
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}
	stage := &VulkanShaderStage{}
	if err := check("vkCreateShaderModule", vk.CreateShaderModule(d.logical, &createInfo, d.Allocator, &stage.Handle)); err != nil {
		return nil, err
	}

	stage.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  shaderStageFlags[file.Stage],
		Module: stage.Handle,
		PName:  VulkanSafeString("main"),
	}
	return stage, nil
}

func (s *VulkanShaderStage) Destroy(d *Device) {
	if s.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(d.logical, s.Handle, d.Allocator)
		s.Handle = vk.NullShaderModule
	}
}
