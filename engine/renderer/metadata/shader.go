package metadata

import (
	"fmt"
	"strings"
)

/** @brief A programmable pipeline stage. */
type ShaderStage int

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageTessControl
	ShaderStageTessEval
	ShaderStageGeometry
	ShaderStageFragment
)

var shaderStageNames = []string{"vertex", "tesselation control", "tesselation evaluation", "geometry", "fragment"}

// File extensions glslangValidator uses to infer the stage.
var shaderStageExtensions = []string{"vert", "tesc", "tese", "geom", "frag"}

/** @brief Returns a human readable stage name, used in diagnostics. */
func (s ShaderStage) String() string {
	if s < 0 || int(s) >= len(shaderStageNames) {
		return fmt.Sprintf("ShaderStage(%d)", int(s))
	}
	return shaderStageNames[s]
}

func (s ShaderStage) Extension() string {
	return shaderStageExtensions[s]
}

func (s *ShaderStage) UnmarshalText(text []byte) error {
	t := strings.ToLower(string(text))
	for i := range shaderStageNames {
		if t == shaderStageExtensions[i] || t == shaderStageNames[i] {
			*s = ShaderStage(i)
			return nil
		}
	}
	switch t {
	case "tess_control":
		*s = ShaderStageTessControl
	case "tess_eval":
		*s = ShaderStageTessEval
	default:
		return fmt.Errorf("unknown shader stage %q", string(text))
	}
	return nil
}

/**
 * @brief The kind of a uniform or uniform block. Mirrors the descriptor
 * types of the explicit API so both backends can share one table.
 */
type UniformType int

const (
	UniformTypeSampler UniformType = iota
	UniformTypeCombinedImageSampler
	UniformTypeSampledImage
	UniformTypeStorageImage
	UniformTypeUniformTexelBuffer
	UniformTypeStorageTexelBuffer
	UniformTypeUniformBuffer
	UniformTypeStorageBuffer
	UniformTypeUniformBufferDynamic
	UniformTypeStorageBufferDynamic
	UniformTypeInputAttachment
)

var uniformTypeNames = []string{
	"sampler",
	"combined_image_sampler",
	"sampled_image",
	"storage_image",
	"uniform_texel_buffer",
	"storage_texel_buffer",
	"uniform_buffer",
	"storage_buffer",
	"uniform_buffer_dynamic",
	"storage_buffer_dynamic",
	"input_attachment",
}

func (u UniformType) String() string {
	if u < 0 || int(u) >= len(uniformTypeNames) {
		return fmt.Sprintf("UniformType(%d)", int(u))
	}
	return uniformTypeNames[u]
}

func (u *UniformType) UnmarshalText(text []byte) error {
	t := strings.ToLower(string(text))
	for i, n := range uniformTypeNames {
		if n == t {
			*u = UniformType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown uniform type %q", string(text))
}

/** @brief One source file of a shader program together with its build outputs. */
type ShaderFileSpec struct {
	Filename string      `toml:"filename"`
	Stage    ShaderStage `toml:"stage"`
	/** @brief The SPIR-V bytecode produced from Filename. */
	SpirvOut string `toml:"spirv_out"`
	/** @brief The glslang reflection dump produced from Filename. */
	ReflectOut string `toml:"reflect_out"`
}

/** @brief A uniform living inside a uniform block. */
type BlockUniformSpec struct {
	Name   string `toml:"name"`
	Offset int    `toml:"offset"`
	/** @brief Array stride in bytes, 0 for scalars. */
	Stride int `toml:"stride"`
}

/** @brief A uniform block shared by one or more shaders. */
type UniformBlockSpec struct {
	Name      string             `toml:"name"`
	Size      int                `toml:"size"`
	Set       uint32             `toml:"set"`
	Binding   uint32             `toml:"binding"`
	BlockType UniformType        `toml:"type"`
	Uniforms  []BlockUniformSpec `toml:"uniform"`
}

// Uniform returns the named uniform of the block.
func (b *UniformBlockSpec) Uniform(name string) (BlockUniformSpec, bool) {
	for _, u := range b.Uniforms {
		if u.Name == name {
			return u, true
		}
	}
	return BlockUniformSpec{}, false
}

/** @brief An opaque uniform (sampler, image...) declared outside of any block. */
type UniformSpec struct {
	Name        string      `toml:"name"`
	Set         uint32      `toml:"set"`
	Binding     uint32      `toml:"binding"`
	UniformType UniformType `toml:"type"`
}

/** @brief Everything both backends need to know to build and bind a shader. */
type ShaderSpec struct {
	Name              string           `toml:"name"`
	LibraryFiles      []string         `toml:"library"`
	ShaderFiles       []ShaderFileSpec `toml:"file"`
	UniformBlockNames []string         `toml:"uniform_blocks"`
	UniformSpecs      []UniformSpec    `toml:"uniform"`
	VertexLayout      VertexLayout     `toml:"vertex_layout"`
	Primitive         PrimitiveType    `toml:"primitive"`
	/** @brief Vertex attribute names, in the order of the layout's attributes. */
	Attributes    []string       `toml:"attributes"`
	FragmentOut   string         `toml:"fragment_out"`
	DepthTest     bool           `toml:"depth_test"`
	AlphaBlending bool           `toml:"alpha_blending"`
	Pass          RenderTargetID `toml:"pass"`
}

// HasStage reports whether one of the shader files is of the given stage.
func (s *ShaderSpec) HasStage(stage ShaderStage) bool {
	for _, f := range s.ShaderFiles {
		if f.Stage == stage {
			return true
		}
	}
	return false
}

func (s *ShaderSpec) clone() ShaderSpec {
	c := *s
	c.LibraryFiles = append([]string(nil), s.LibraryFiles...)
	c.ShaderFiles = append([]ShaderFileSpec(nil), s.ShaderFiles...)
	c.UniformBlockNames = append([]string(nil), s.UniformBlockNames...)
	c.UniformSpecs = append([]UniformSpec(nil), s.UniformSpecs...)
	c.Attributes = append([]string(nil), s.Attributes...)
	return c
}

func (b *UniformBlockSpec) clone() UniformBlockSpec {
	c := *b
	c.Uniforms = append([]BlockUniformSpec(nil), b.Uniforms...)
	return c
}
