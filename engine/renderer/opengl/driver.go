package opengl

import (
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
)

// DriverInfo is what the context reports about itself, logged at start up in
// debug mode.
type DriverInfo struct {
	Vendor                string
	Renderer              string
	Version               string
	ShadingLanguage       string
	MaxUniformBufferBinds int32
	MaxUniformBlockSize   int32
	MaxVertexBlocks       int32
	MaxFragmentBlocks     int32
	MaxGeometryBlocks     int32
}

// TargetHandles are the object names backing an offscreen render target.
type TargetHandles struct {
	Texture      uint32
	Framebuffer  uint32
	Renderbuffer uint32
}

/**
 * @brief The GL entry points the backend uses, expressed in Go types. Every
 * method must be called from the goroutine that owns the context. Compile and
 * link return -1 on failure together with the info log.
 */
type Driver interface {
	Info() DriverInfo

	// Shader programs
	CompileShader(stage metadata.ShaderStage, source string) (int32, string)
	LinkProgram(shaders []uint32, fragmentOut string) (int32, string)
	DeleteShader(shader uint32)
	DeleteProgram(program uint32)
	UseProgram(program uint32)
	UniformBlockIndex(program uint32, name string) (uint32, bool)
	UniformBlockBinding(program, index, binding uint32)
	UniformLocation(program uint32, name string) int32
	AttribLocation(program uint32, name string) int32
	Uniform1i(location int32, value int32)

	// Vertex input and drawing
	VertexAttribPointer(location uint32, components, stride, offset int)
	UploadVertices(data []float32)
	DrawArrays(primitive metadata.PrimitiveType, first, count int)
	SetPatchVertices(n int)

	// Fixed function state
	SetDepthTest(enabled bool)
	SetBlending(enabled bool)
	ClearDepth()
	Viewport(width, height int)
	Error() uint32

	// Uniform buffers
	GenUniformBuffer(size int, binding uint32) uint32
	UpdateUniformBuffer(buffer uint32, data []byte)
	DeleteBuffer(buffer uint32)

	// Render targets
	CreateRenderTarget(width, height int) (TargetHandles, error)
	DeleteRenderTarget(h TargetHandles)
	BindFramebuffer(fbo uint32)
	BindTexture(unit int, texture uint32)
	ReadPixelsRGB(width, height int) []byte

	// Textures. Empty data leaves the contents undefined.
	CreateTexture(width, height int, format metadata.TextureFormat, data []byte) uint32
	DeleteTexture(texture uint32)
}
