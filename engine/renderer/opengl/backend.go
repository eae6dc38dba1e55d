// Package opengl is the immediate mode backend. Draws go straight to a single
// GL context which is not thread safe, so when more than one worker renders
// the batches are funnelled to the goroutine owning the context.
package opengl

import (
	"fmt"

	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/spaghettifunk/twinrender/engine/renderer/batch"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
)

type Options struct {
	MaxThreads int
	// Width and Height of the default framebuffer.
	Width  int
	Height int
	Debug  bool
	// OldDriver strips Vulkan style set qualifiers from the GLSL sources.
	OldDriver bool
	// Swap presents the back buffer. It belongs to the window, not the context.
	Swap func()
}

type uniformBuffer struct {
	*metadata.UniformBuffer
	handle uint32
}

type Backend struct {
	driver    Driver
	resources *metadata.ResourceManager
	opts      Options

	programs       map[string]*program
	uniformBuffers map[string]*uniformBuffer

	current   *program
	layout    metadata.VertexLayout
	primitive metadata.PrimitiveType
	boundFBO  uint32
	viewportW int
	viewportH int
}

// New creates one uniform buffer per block and builds every shader in the
// resource table. A shader that fails to build fails the whole backend.
func New(driver Driver, resources *metadata.ResourceManager, opts Options) (*Backend, error) {
	if opts.MaxThreads < 1 {
		opts.MaxThreads = 1
	}
	be := &Backend{
		driver:         driver,
		resources:      resources,
		opts:           opts,
		programs:       make(map[string]*program),
		uniformBuffers: make(map[string]*uniformBuffer),
	}

	if opts.Debug {
		info := driver.Info()
		core.LogDebug("GL vendor: %s", info.Vendor)
		core.LogDebug("GL renderer: %s", info.Renderer)
		core.LogDebug("GL version: %s", info.Version)
		core.LogDebug("GLSL version: %s", info.ShadingLanguage)
		core.LogDebug("Max uniform buffer bindings: %d", info.MaxUniformBufferBinds)
		core.LogDebug("Max uniform block size: %d", info.MaxUniformBlockSize)
		core.LogDebug("Max vertex uniform blocks: %d", info.MaxVertexBlocks)
		core.LogDebug("Max fragment uniform blocks: %d", info.MaxFragmentBlocks)
		core.LogDebug("Max geometry uniform blocks: %d", info.MaxGeometryBlocks)
	}

	for _, name := range resources.UniformBlockNames() {
		spec, err := resources.UniformBlock(name)
		if err != nil {
			return nil, err
		}
		ub := metadata.NewUniformBuffer(spec)
		be.uniformBuffers[name] = &uniformBuffer{
			UniformBuffer: ub,
			handle:        driver.GenUniformBuffer(ub.Size(), spec.Binding),
		}
	}

	for _, name := range resources.ShaderNames() {
		p, err := be.buildProgram(name)
		if err != nil {
			be.Shutdown()
			return nil, err
		}
		be.programs[name] = p
	}

	be.Resize(opts.Width, opts.Height)
	return be, nil
}

func (be *Backend) Shutdown() {
	for name, p := range be.programs {
		be.deleteProgram(p)
		delete(be.programs, name)
	}
	for name, ub := range be.uniformBuffers {
		be.driver.DeleteBuffer(ub.handle)
		delete(be.uniformBuffers, name)
	}
	be.current = nil
}

// NeedsCentralFlush is true: the context may only be used by one goroutine.
func (be *Backend) NeedsCentralFlush() bool {
	return true
}

func (be *Backend) MaxThreads() int {
	return be.opts.MaxThreads
}

func (be *Backend) Layout() metadata.VertexLayout {
	return be.layout
}

func (be *Backend) Primitive() metadata.PrimitiveType {
	return be.primitive
}

// Resize records the size of the default framebuffer.
func (be *Backend) Resize(width, height int) {
	be.viewportW, be.viewportH = width, height
	if be.boundFBO == 0 && width > 0 && height > 0 {
		be.driver.Viewport(width, height)
	}
}

func (be *Backend) BeginFrame() error {
	return nil
}

func (be *Backend) EndFrame() error {
	if e := be.driver.Error(); e != 0 {
		core.LogError("glGetError returned 0x%x", e)
	}
	return nil
}

func (be *Backend) BeginPass(shader string) error {
	p, ok := be.programs[shader]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownShader, shader)
	}
	be.layout = p.spec.VertexLayout
	be.primitive = p.spec.Primitive
	be.selectProgram(p)
	return nil
}

func (be *Backend) EndPass() error {
	return nil
}

func (be *Backend) Flip() error {
	if be.opts.Swap != nil {
		be.opts.Swap()
	}
	return nil
}

func (be *Backend) ClearDepthBuffer() error {
	be.driver.ClearDepth()
	return nil
}

// Flush uploads the batch into the shared vertex buffer and draws it. The
// caller must own the context.
func (be *Backend) Flush(b *batch.Batch) {
	if b.Index == 0 {
		return
	}
	be.driver.UploadVertices(b.Floats())
	be.driver.DrawArrays(b.Primitive, 0, b.Index*metadata.VerticesPerTriangle)
	core.MetricsAddPrimitives(b.Index)
}

func (be *Backend) uniformBuffer(block string) (*uniformBuffer, bool) {
	ub, ok := be.uniformBuffers[block]
	if !ok {
		core.LogShaderWarn("uniform block %s not found", block)
	}
	return ub, ok
}

func (be *Backend) SetUniformInt(block, name string, value int32) {
	if ub, ok := be.uniformBuffer(block); ok {
		ub.SetInt(name, value)
	}
}

func (be *Backend) SetUniformFloat(block, name string, value float32) {
	if ub, ok := be.uniformBuffer(block); ok {
		ub.SetFloat(name, value)
	}
}

func (be *Backend) SetUniformVec3(block, name string, value math.Vec3) {
	if ub, ok := be.uniformBuffer(block); ok {
		ub.SetVec3(name, value)
	}
}

func (be *Backend) SetUniformMat4(block, name string, value math.Mat4) {
	if ub, ok := be.uniformBuffer(block); ok {
		ub.SetMat4(name, value)
	}
}

func (be *Backend) SetUniformFloats(block, name string, values []float32) {
	if ub, ok := be.uniformBuffer(block); ok {
		ub.SetFloats(name, values)
	}
}

// SynchroniseUniformBuffer pushes the CPU copy of a block to its GL buffer.
func (be *Backend) SynchroniseUniformBuffer(block string) error {
	ub, ok := be.uniformBuffers[block]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownUniformBlock, block)
	}
	be.driver.UpdateUniformBuffer(ub.handle, ub.Bytes)
	return nil
}
