package renderer

import (
	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/spaghettifunk/twinrender/engine/renderer/batch"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/opengl"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

/**
 * @brief The operations both backends share. Everything that only one of
 * them can do (render targets, hot reload, resizing) goes through the tagged
 * Renderer instead.
 */
type Backend interface {
	batch.Flusher

	// NeedsCentralFlush reports whether batches filled on worker goroutines
	// must be handed to the goroutine that runs the harness to be drawn.
	NeedsCentralFlush() bool
	MaxThreads() int
	Layout() metadata.VertexLayout
	Primitive() metadata.PrimitiveType

	BeginFrame() error
	EndFrame() error
	BeginPass(shader string) error
	EndPass() error
	Flip() error
	ClearDepthBuffer() error
	DeselectRenderTarget()

	SetUniformInt(block, name string, value int32)
	SetUniformFloat(block, name string, value float32)
	SetUniformVec3(block, name string, value math.Vec3)
	SetUniformMat4(block, name string, value math.Mat4)
	SetUniformFloats(block, name string, values []float32)
	SynchroniseUniformBuffer(block string) error

	Shutdown()
}

var (
	_ Backend = (*opengl.Backend)(nil)
	_ Backend = (*vulkan.Backend)(nil)
)
