package vulkan

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spaghettifunk/twinrender/engine/assets"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/spaghettifunk/twinrender/engine/renderer/batch"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fakeImages  = 2
	fakeThreads = 2
)

type submission struct {
	cbs    []CommandBuffer
	wait   Semaphore
	signal Semaphore
}

type fakeDevice struct {
	mu         sync.Mutex
	nextImage  int
	acquireErr error
	ops        []string
	submits    []submission
	buffers    int
	uploads    map[Buffer][]float32
	draws      map[CommandBuffer][]uint32
	passes     []Framebuffer
	passSizes  [][2]uint32
	uniforms   map[string][]byte
	cleared    []Image
	targets    int
	destroyed  []TargetHandles
	waitIdles  int
	pixels     []byte
	textures   map[Image]texUpload
	freed      []Image
	bindings   [][2]uint32
}

type texUpload struct {
	width, height int
	format        metadata.TextureFormat
	data          []byte
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		uploads:  make(map[Buffer][]float32),
		draws:    make(map[CommandBuffer][]uint32),
		uniforms: make(map[string][]byte),
		textures: make(map[Image]texUpload),
	}
}

func (d *fakeDevice) record(format string, args ...interface{}) {
	d.mu.Lock()
	d.ops = append(d.ops, fmt.Sprintf(format, args...))
	d.mu.Unlock()
}

func (d *fakeDevice) ImageCount() int          { return fakeImages }
func (d *fakeDevice) Extent() (uint32, uint32) { return 640, 480 }

func (d *fakeDevice) SwapchainFramebuffer(image int) Framebuffer {
	return Framebuffer(100 + image)
}

func (d *fakeDevice) ThreadCommandBuffer(image, thread int) CommandBuffer {
	return CommandBuffer(image*10 + thread)
}

func (d *fakeDevice) PrePresentCommandBuffer(image int) CommandBuffer { return CommandBuffer(50 + image) }
func (d *fakeDevice) ClearDepthCommandBuffer(image int) CommandBuffer { return CommandBuffer(60 + image) }

func (d *fakeDevice) AcquireNextImage() (int, error) {
	if d.acquireErr != nil {
		return 0, d.acquireErr
	}
	image := d.nextImage
	d.nextImage = (d.nextImage + 1) % fakeImages
	d.record("acquire %d", image)
	return image, nil
}

func (d *fakeDevice) BeginCommandBuffer(cb CommandBuffer) error { d.record("begin %d", cb); return nil }
func (d *fakeDevice) EndCommandBuffer(cb CommandBuffer) error   { d.record("end %d", cb); return nil }

func (d *fakeDevice) BeginRenderPass(cb CommandBuffer, pass metadata.RenderTargetID, fb Framebuffer, width, height uint32) {
	d.record("renderpass %d %d", cb, pass)
	d.mu.Lock()
	d.passes = append(d.passes, fb)
	d.passSizes = append(d.passSizes, [2]uint32{width, height})
	d.mu.Unlock()
}

func (d *fakeDevice) EndRenderPass(cb CommandBuffer) { d.record("endpass %d", cb) }

func (d *fakeDevice) BindPipeline(cb CommandBuffer, shader string, image int) {
	d.record("pipeline %d %s %d", cb, shader, image)
}

func (d *fakeDevice) BindVertexBuffer(cb CommandBuffer, buf Buffer) {}

func (d *fakeDevice) Draw(cb CommandBuffer, vertexCount uint32) {
	d.mu.Lock()
	d.draws[cb] = append(d.draws[cb], vertexCount)
	d.mu.Unlock()
}

func (d *fakeDevice) PresentBarrier(cb CommandBuffer, image int) { d.record("barrier %d %d", cb, image) }

func (d *fakeDevice) ClearDepthImage(cb CommandBuffer, depth Image) {
	d.cleared = append(d.cleared, depth)
}

func (d *fakeDevice) Submit(cbs []CommandBuffer, wait, signal Semaphore) error {
	d.submits = append(d.submits, submission{cbs: append([]CommandBuffer(nil), cbs...), wait: wait, signal: signal})
	return nil
}

func (d *fakeDevice) QueueWaitIdle() error    { d.record("wait"); return nil }
func (d *fakeDevice) Present(image int) error { d.record("present %d", image); return nil }

func (d *fakeDevice) CreateVertexBuffer(layout metadata.VertexLayout) (Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers++
	return Buffer(d.buffers), nil
}

func (d *fakeDevice) UploadVertices(buf Buffer, data []float32) error {
	d.mu.Lock()
	d.uploads[buf] = append([]float32(nil), data...)
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) UploadUniforms(block string, data []byte) error {
	d.uniforms[block] = append([]byte(nil), data...)
	return nil
}

func (d *fakeDevice) CreateRenderTarget(width, height int) (TargetHandles, error) {
	d.targets++
	return TargetHandles{Color: Image(d.targets * 2), Depth: Image(d.targets*2 + 1), Framebuffer: Framebuffer(d.targets)}, nil
}

func (d *fakeDevice) DestroyRenderTarget(h TargetHandles) { d.destroyed = append(d.destroyed, h) }

func (d *fakeDevice) ReadRenderTarget(h TargetHandles, width, height int) ([]byte, error) {
	return d.pixels, nil
}

func (d *fakeDevice) WaitIdle() error { d.waitIdles++; return nil }

func (d *fakeDevice) CreateTexture(width, height int, format metadata.TextureFormat, data []byte) (Image, error) {
	img := Image(1000 + len(d.textures))
	d.textures[img] = texUpload{width, height, format, append([]byte(nil), data...)}
	return img, nil
}

func (d *fakeDevice) DestroyImage(img Image) { d.freed = append(d.freed, img) }

func (d *fakeDevice) BindSampledImage(img Image, binding uint32) error {
	d.bindings = append(d.bindings, [2]uint32{uint32(img), binding})
	return nil
}

func newResources(t *testing.T) *metadata.ResourceManager {
	t.Helper()
	blocks := []metadata.UniformBlockSpec{{
		Name:     "Globals",
		Size:     16,
		Uniforms: []metadata.BlockUniformSpec{{Name: "time", Offset: 4}},
	}}
	files := func(name string) []metadata.ShaderFileSpec {
		return []metadata.ShaderFileSpec{
			{Filename: name + ".vert", Stage: metadata.ShaderStageVertex, SpirvOut: name + ".vert.spv"},
			{Filename: name + ".frag", Stage: metadata.ShaderStageFragment, SpirvOut: name + ".frag.spv"},
		}
	}
	shaders := []metadata.ShaderSpec{
		{
			Name:              "scene",
			ShaderFiles:       files("scene"),
			UniformBlockNames: []string{"Globals"},
			VertexLayout:      metadata.VertexLayoutV3N3C3,
			Pass:              metadata.RenderTargetOffscreen,
		},
		{
			Name:         "post",
			ShaderFiles:  files("post"),
			VertexLayout: metadata.VertexLayoutV2T2,
			Pass:         metadata.RenderTargetSwapchain,
		},
	}
	rm, err := metadata.NewResourceManager(t.TempDir(), blocks, shaders)
	require.NoError(t, err)
	return rm
}

func newBackend(t *testing.T) (*Backend, *fakeDevice) {
	t.Helper()
	d := newFakeDevice()
	be, err := New(d, newResources(t), Options{MaxThreads: fakeThreads})
	require.NoError(t, err)
	return be, d
}

func fill(b *batch.Batch, triangles int) {
	v := math.NewVec3(1, 2, 3)
	for i := 0; i < triangles; i++ {
		b.AppendV3N3C3(v, v, v, v, v, v, v, v, v)
	}
}

func TestNewCreatesOneBufferPerSlot(t *testing.T) {
	be, d := newBackend(t)
	assert.Equal(t, fakeImages*metadata.VertexLayoutCount*fakeThreads, d.buffers)
	assert.Equal(t, 1, be.PoolSize(1, metadata.VertexLayoutV2T2, 1))
	assert.False(t, be.NeedsCentralFlush())
}

func TestFrameSequence(t *testing.T) {
	be, d := newBackend(t)

	require.NoError(t, be.BeginFrame())
	require.NoError(t, be.BeginPass("post"))
	require.NoError(t, be.EndPass())
	require.NoError(t, be.EndFrame())
	require.NoError(t, be.Flip())

	assert.Equal(t, []string{
		"acquire 0",
		"begin 0", "renderpass 0 0",
		"begin 1", "renderpass 1 0",
		"pipeline 0 post 0", "pipeline 1 post 0",
		"endpass 0", "end 0", "endpass 1", "end 1",
		"wait",
		"begin 50", "barrier 50 0", "end 50",
		"present 0", "wait",
	}, d.ops)

	require.Len(t, d.submits, 2)
	assert.Equal(t, submission{cbs: []CommandBuffer{0, 1}}, d.submits[0])
	assert.Equal(t, submission{cbs: []CommandBuffer{50}, wait: ImageAvailable, signal: RenderFinished}, d.submits[1])
	assert.Equal(t, []Framebuffer{100, 100}, d.passes)
	assert.Equal(t, metadata.VertexLayoutV2T2, be.Layout())
}

func TestBeginFrameFailure(t *testing.T) {
	be, d := newBackend(t)
	d.acquireErr = errors.New("vkAcquireNextImageKHR: VK_ERROR_OUT_OF_DATE_KHR")
	assert.Error(t, be.BeginFrame())
}

func TestBeginPassUnknownShader(t *testing.T) {
	be, _ := newBackend(t)
	require.NoError(t, be.BeginFrame())
	assert.ErrorIs(t, be.BeginPass("missing"), core.ErrUnknownShader)
}

func TestFlushEmptyBatchDrawsNothing(t *testing.T) {
	be, d := newBackend(t)
	require.NoError(t, be.BeginFrame())
	require.NoError(t, be.BeginPass("scene"))

	be.Flush(batch.New(0, metadata.VertexLayoutV3N3C3))
	assert.Empty(t, d.draws)
	assert.Empty(t, d.uploads)
}

func TestFlushGrowsPoolAndRewindsPerPass(t *testing.T) {
	be, d := newBackend(t)
	const images, passes = 2, 2

	for frame := 0; frame < images; frame++ {
		require.NoError(t, be.BeginFrame())
		for pass := 0; pass < passes; pass++ {
			require.NoError(t, be.BeginPass("scene"))

			var wg sync.WaitGroup
			for thr := 0; thr < fakeThreads; thr++ {
				wg.Add(1)
				go func(thr int) {
					defer wg.Done()
					b := batch.New(thr, metadata.VertexLayoutV3N3C3)
					for i := 0; i < batch.Capacity+10; i++ {
						b.CheckFlush(false, be)
						fill(b, 1)
					}
					b.Finish(be)
				}(thr)
			}
			wg.Wait()

			for thr := 0; thr < fakeThreads; thr++ {
				assert.Equal(t, 1, be.vertexBufferIndex[be.Image()][metadata.VertexLayoutV3N3C3][thr])
			}
			require.NoError(t, be.EndPass())
		}
		require.NoError(t, be.EndFrame())
		require.NoError(t, be.Flip())
	}

	for image := 0; image < images; image++ {
		for thr := 0; thr < fakeThreads; thr++ {
			assert.Equal(t, 2, be.PoolSize(image, metadata.VertexLayoutV3N3C3, thr))
			// Two passes, each a full batch and a ten triangle remainder.
			assert.Equal(t, []uint32{batch.Capacity * 3, 30, batch.Capacity * 3, 30},
				d.draws[d.ThreadCommandBuffer(image, thr)])
		}
		assert.Equal(t, 1, be.PoolSize(image, metadata.VertexLayoutN3, 0))
	}

	first := be.vertexBuffers[0][metadata.VertexLayoutV3N3C3][0][0]
	assert.Len(t, d.uploads[first], batch.Capacity*metadata.VertexLayoutV3N3C3.ComponentsPerTriangle())
}

func TestClearDepthNeedsTarget(t *testing.T) {
	be, d := newBackend(t)
	require.NoError(t, be.BeginFrame())
	assert.ErrorIs(t, be.ClearDepthBuffer(), core.ErrNoDepthTarget)

	rt, err := be.NewRenderTarget(64, 32)
	require.NoError(t, err)
	be.SelectRenderTarget(0, rt)
	require.NoError(t, be.ClearDepthBuffer())
	assert.Equal(t, []Image{rt.handles.Depth}, d.cleared)
	assert.Equal(t, submission{cbs: []CommandBuffer{60}}, d.submits[len(d.submits)-1])
}

func TestRenderTargetSelection(t *testing.T) {
	be, d := newBackend(t)
	require.NoError(t, be.BeginFrame())
	rt, err := be.NewRenderTarget(64, 32)
	require.NoError(t, err)

	be.SelectRenderTarget(0, rt)
	require.NoError(t, be.BeginPass("scene"))
	require.NoError(t, be.EndPass())
	be.DeselectRenderTarget()
	require.NoError(t, be.BeginPass("post"))
	require.NoError(t, be.EndPass())

	assert.Equal(t, []Framebuffer{rt.handles.Framebuffer, rt.handles.Framebuffer, 100, 100}, d.passes)
	assert.Equal(t, [2]uint32{64, 32}, d.passSizes[0])
	assert.Equal(t, [2]uint32{640, 480}, d.passSizes[2])

	// A new frame starts on the swapchain again.
	require.NoError(t, be.EndFrame())
	require.NoError(t, be.Flip())
	be.SelectRenderTarget(0, rt)
	require.NoError(t, be.BeginFrame())
	assert.ErrorIs(t, be.ClearDepthBuffer(), core.ErrNoDepthTarget)

	be.DestroyRenderTarget(rt)
	assert.Len(t, d.destroyed, 1)
}

func TestRenderTargetBindsItsSlot(t *testing.T) {
	be, d := newBackend(t)
	rt, err := be.NewRenderTarget(8, 8)
	require.NoError(t, err)

	be.SelectRenderTarget(1, rt)
	be.SelectRenderTarget(1, rt)
	assert.Equal(t, [][2]uint32{{uint32(rt.handles.Color), 1}}, d.bindings)

	// A destroyed target no longer counts as bound, so a new one that reuses
	// its handles is written again.
	color := rt.handles.Color
	be.DestroyRenderTarget(rt)
	be.SelectRenderTarget(1, &RenderTarget{Width: 8, Height: 8, handles: TargetHandles{Color: color}})
	assert.Len(t, d.bindings, 2)
}

func TestTextureFromImage(t *testing.T) {
	be, d := newBackend(t)

	path := filepath.Join(t.TempDir(), "ramp.png")
	require.NoError(t, assets.SaveRGB(path, 2, 1, []byte{10, 20, 30, 40, 50, 60}, false))
	img, err := assets.LoadImage(path)
	require.NoError(t, err)

	tex, err := be.NewTexture(img.Width, img.Height, metadata.TextureFormatUByteRGBA, img.Data)
	require.NoError(t, err)
	assert.Equal(t, texUpload{2, 1, metadata.TextureFormatUByteRGBA, []byte{10, 20, 30, 0, 40, 50, 60, 0}}, d.textures[tex.image])

	require.NoError(t, be.BindTexture(2, tex))
	require.NoError(t, be.BindTexture(2, tex))
	assert.Equal(t, [][2]uint32{{uint32(tex.image), 2}}, d.bindings)

	image := tex.image
	be.DestroyTexture(tex)
	be.DestroyTexture(tex)
	assert.Equal(t, []Image{image}, d.freed)
	assert.Empty(t, be.samplers)
}

func TestTextureSlotsAreIndependent(t *testing.T) {
	be, d := newBackend(t)
	a, err := be.NewTexture(1, 1, metadata.TextureFormatFloatRGBA, make([]byte, 16))
	require.NoError(t, err)
	b, err := be.NewTexture(1, 1, metadata.TextureFormatFloatRGBA, nil)
	require.NoError(t, err)

	require.NoError(t, be.BindTexture(2, a))
	require.NoError(t, be.BindTexture(3, b))
	require.NoError(t, be.BindTexture(2, b))
	assert.Equal(t, [][2]uint32{
		{uint32(a.image), 2},
		{uint32(b.image), 3},
		{uint32(b.image), 2},
	}, d.bindings)
	assert.Empty(t, d.textures[b.image].data)
}

func TestTextureSizeMismatch(t *testing.T) {
	be, d := newBackend(t)
	_, err := be.NewTexture(2, 2, metadata.TextureFormatUByteRGBA, make([]byte, 15))
	assert.ErrorIs(t, err, core.ErrTextureSize)
	_, err = be.NewTexture(2, -1, metadata.TextureFormatFloatRGBA, nil)
	assert.ErrorIs(t, err, core.ErrTextureSize)
	assert.Empty(t, d.textures)
}

func TestSynchroniseUniformBuffer(t *testing.T) {
	be, d := newBackend(t)
	be.SetUniformFloat("Globals", "time", 1)
	require.NoError(t, be.SynchroniseUniformBuffer("Globals"))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0x80, 0x3f, 0, 0, 0, 0, 0, 0, 0, 0}, d.uniforms["Globals"])
	assert.ErrorIs(t, be.SynchroniseUniformBuffer("Missing"), core.ErrUnknownUniformBlock)
}

func TestSnapshot(t *testing.T) {
	be, d := newBackend(t)
	rt, err := be.NewRenderTarget(1, 2)
	require.NoError(t, err)
	d.pixels = []byte{0, 1, 2, 3, 4, 5}

	path := filepath.Join(t.TempDir(), "snap.png")
	require.NoError(t, be.Snapshot(rt, path))
	img, err := assets.LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5, 0, 0, 1, 2, 0}, img.Data)
}

func TestShutdownWaitsIdle(t *testing.T) {
	be, d := newBackend(t)
	be.Shutdown()
	assert.Equal(t, 1, d.waitIdles)
}
