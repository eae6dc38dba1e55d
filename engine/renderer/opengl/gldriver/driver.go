// Package gldriver implements opengl.Driver on top of the go-gl bindings.
package gldriver

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/opengl"
)

const floatSize = 4

var glStages = map[metadata.ShaderStage]uint32{
	metadata.ShaderStageVertex:      gl.VERTEX_SHADER,
	metadata.ShaderStageTessControl: gl.TESS_CONTROL_SHADER,
	metadata.ShaderStageTessEval:    gl.TESS_EVALUATION_SHADER,
	metadata.ShaderStageGeometry:    gl.GEOMETRY_SHADER,
	metadata.ShaderStageFragment:    gl.FRAGMENT_SHADER,
}

/**
 * @brief Talks to the context current on the calling thread. Every batch
 * goes through a single vertex array and vertex buffer created up front.
 */
type Driver struct {
	vao uint32
	vbo uint32
}

var _ opengl.Driver = (*Driver)(nil)

// New loads the GL entry points. The context must already be current.
func New() (*Driver, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	d := &Driver{}
	gl.GenVertexArrays(1, &d.vao)
	gl.BindVertexArray(d.vao)
	gl.GenBuffers(1, &d.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.vbo)
	return d, nil
}

func (d *Driver) Destroy() {
	gl.DeleteBuffers(1, &d.vbo)
	gl.DeleteVertexArrays(1, &d.vao)
}

func (d *Driver) Info() opengl.DriverInfo {
	info := opengl.DriverInfo{
		Vendor:          gl.GoStr(gl.GetString(gl.VENDOR)),
		Renderer:        gl.GoStr(gl.GetString(gl.RENDERER)),
		Version:         gl.GoStr(gl.GetString(gl.VERSION)),
		ShadingLanguage: gl.GoStr(gl.GetString(gl.SHADING_LANGUAGE_VERSION)),
	}
	gl.GetIntegerv(gl.MAX_UNIFORM_BUFFER_BINDINGS, &info.MaxUniformBufferBinds)
	gl.GetIntegerv(gl.MAX_UNIFORM_BLOCK_SIZE, &info.MaxUniformBlockSize)
	gl.GetIntegerv(gl.MAX_VERTEX_UNIFORM_BLOCKS, &info.MaxVertexBlocks)
	gl.GetIntegerv(gl.MAX_FRAGMENT_UNIFORM_BLOCKS, &info.MaxFragmentBlocks)
	gl.GetIntegerv(gl.MAX_GEOMETRY_UNIFORM_BLOCKS, &info.MaxGeometryBlocks)
	return info
}

func (d *Driver) CompileShader(stage metadata.ShaderStage, source string) (int32, string) {
	handle := gl.CreateShader(glStages[stage])
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(handle, 1, csources, nil)
	free()
	gl.CompileShader(handle)

	var status int32
	gl.GetShaderiv(handle, gl.COMPILE_STATUS, &status)
	var logLength int32
	gl.GetShaderiv(handle, gl.INFO_LOG_LENGTH, &logLength)
	infoLog := ""
	if logLength > 1 {
		msg := strings.Repeat("\x00", int(logLength))
		gl.GetShaderInfoLog(handle, logLength, nil, gl.Str(msg))
		infoLog = strings.TrimRight(msg, "\x00")
	}
	if status == gl.FALSE {
		gl.DeleteShader(handle)
		return -1, infoLog
	}
	return int32(handle), infoLog
}

func (d *Driver) LinkProgram(shaders []uint32, fragmentOut string) (int32, string) {
	program := gl.CreateProgram()
	for _, s := range shaders {
		gl.AttachShader(program, s)
	}
	if fragmentOut != "" {
		gl.BindFragDataLocation(program, 0, gl.Str(fragmentOut+"\x00"))
	}
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	var logLength int32
	gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
	infoLog := ""
	if logLength > 1 {
		msg := strings.Repeat("\x00", int(logLength))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(msg))
		infoLog = strings.TrimRight(msg, "\x00")
	}
	if status == gl.FALSE {
		gl.DeleteProgram(program)
		return -1, infoLog
	}
	return int32(program), infoLog
}

func (d *Driver) DeleteShader(shader uint32) {
	gl.DeleteShader(shader)
}

func (d *Driver) DeleteProgram(program uint32) {
	gl.DeleteProgram(program)
}

func (d *Driver) UseProgram(program uint32) {
	gl.BindVertexArray(d.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.vbo)
	gl.UseProgram(program)
}

func (d *Driver) UniformBlockIndex(program uint32, name string) (uint32, bool) {
	index := gl.GetUniformBlockIndex(program, gl.Str(name+"\x00"))
	return index, index != gl.INVALID_INDEX
}

func (d *Driver) UniformBlockBinding(program, index, binding uint32) {
	gl.UniformBlockBinding(program, index, binding)
}

func (d *Driver) UniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

func (d *Driver) AttribLocation(program uint32, name string) int32 {
	return gl.GetAttribLocation(program, gl.Str(name+"\x00"))
}

func (d *Driver) Uniform1i(location int32, value int32) {
	gl.Uniform1i(location, value)
}

// VertexAttribPointer configures a float attribute; stride and offset are in
// floats.
func (d *Driver) VertexAttribPointer(location uint32, components, stride, offset int) {
	gl.VertexAttribPointerWithOffset(location, int32(components), gl.FLOAT, false,
		int32(stride*floatSize), uintptr(offset*floatSize))
	gl.EnableVertexAttribArray(location)
}

func (d *Driver) UploadVertices(data []float32) {
	if len(data) == 0 {
		return
	}
	gl.BufferData(gl.ARRAY_BUFFER, len(data)*floatSize, gl.Ptr(data), gl.DYNAMIC_DRAW)
}

func (d *Driver) DrawArrays(primitive metadata.PrimitiveType, first, count int) {
	mode := uint32(gl.TRIANGLES)
	if primitive == metadata.PrimitivePatches {
		mode = gl.PATCHES
	}
	gl.DrawArrays(mode, int32(first), int32(count))
}

func (d *Driver) SetPatchVertices(n int) {
	gl.PatchParameteri(gl.PATCH_VERTICES, int32(n))
}

func (d *Driver) SetDepthTest(enabled bool) {
	if enabled {
		gl.DepthFunc(gl.LESS)
		gl.Enable(gl.DEPTH_TEST)
	} else {
		gl.Disable(gl.DEPTH_TEST)
	}
}

func (d *Driver) SetBlending(enabled bool) {
	if enabled {
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
		gl.Enable(gl.BLEND)
	} else {
		gl.Disable(gl.BLEND)
	}
}

func (d *Driver) ClearDepth() {
	gl.Clear(gl.DEPTH_BUFFER_BIT)
}

func (d *Driver) Viewport(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
}

func (d *Driver) Error() uint32 {
	return gl.GetError()
}

func (d *Driver) GenUniformBuffer(size int, binding uint32) uint32 {
	var ubo uint32
	gl.GenBuffers(1, &ubo)
	gl.BindBuffer(gl.UNIFORM_BUFFER, ubo)
	gl.BufferData(gl.UNIFORM_BUFFER, size, nil, gl.DYNAMIC_DRAW)
	gl.BindBufferBase(gl.UNIFORM_BUFFER, binding, ubo)
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
	return ubo
}

func (d *Driver) UpdateUniformBuffer(buffer uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	gl.BindBuffer(gl.UNIFORM_BUFFER, buffer)
	gl.BufferSubData(gl.UNIFORM_BUFFER, 0, len(data), gl.Ptr(data))
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
}

func (d *Driver) DeleteBuffer(buffer uint32) {
	gl.DeleteBuffers(1, &buffer)
}

func (d *Driver) CreateRenderTarget(width, height int) (opengl.TargetHandles, error) {
	var h opengl.TargetHandles

	gl.GenTextures(1, &h.Texture)
	gl.BindTexture(gl.TEXTURE_2D, h.Texture)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA32F, int32(width), int32(height), 0, gl.RGBA, gl.FLOAT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)

	gl.GenFramebuffers(1, &h.Framebuffer)
	gl.BindFramebuffer(gl.FRAMEBUFFER, h.Framebuffer)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, h.Texture, 0)

	gl.GenRenderbuffers(1, &h.Renderbuffer)
	gl.BindRenderbuffer(gl.RENDERBUFFER, h.Renderbuffer)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT24, int32(width), int32(height))
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, h.Renderbuffer)

	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		d.DeleteRenderTarget(h)
		return opengl.TargetHandles{}, fmt.Errorf("framebuffer incomplete: 0x%x", status)
	}
	return h, nil
}

func (d *Driver) DeleteRenderTarget(h opengl.TargetHandles) {
	if h.Renderbuffer != 0 {
		gl.DeleteRenderbuffers(1, &h.Renderbuffer)
	}
	if h.Framebuffer != 0 {
		gl.DeleteFramebuffers(1, &h.Framebuffer)
	}
	if h.Texture != 0 {
		gl.DeleteTextures(1, &h.Texture)
	}
}

func (d *Driver) BindFramebuffer(fbo uint32) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
}

func (d *Driver) BindTexture(unit int, texture uint32) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	gl.BindTexture(gl.TEXTURE_2D, texture)
}

func (d *Driver) ReadPixelsRGB(width, height int) []byte {
	data := make([]byte, width*height*3)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGB, gl.UNSIGNED_BYTE, gl.Ptr(data))
	return data
}

// CreateTexture uploads a 2D texture with tightly packed rows. It is left
// bound on the active texture unit.
func (d *Driver) CreateTexture(width, height int, format metadata.TextureFormat, data []byte) uint32 {
	internalFormat, dataType := int32(gl.RGBA8), uint32(gl.UNSIGNED_BYTE)
	if format == metadata.TextureFormatFloatRGBA {
		internalFormat, dataType = gl.RGBA32F, gl.FLOAT
	}

	var texture uint32
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.GenTextures(1, &texture)
	gl.BindTexture(gl.TEXTURE_2D, texture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)

	var pixels unsafe.Pointer
	if len(data) != 0 {
		pixels = gl.Ptr(data)
	}
	gl.TexImage2D(gl.TEXTURE_2D, 0, internalFormat, int32(width), int32(height), 0, gl.RGBA, dataType, pixels)
	return texture
}

func (d *Driver) DeleteTexture(texture uint32) {
	gl.DeleteTextures(1, &texture)
}
