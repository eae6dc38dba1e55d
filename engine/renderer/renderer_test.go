package renderer

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/spaghettifunk/twinrender/engine/renderer/batch"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/opengl"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushCall struct {
	thread   int
	index    int
	finished bool
	data     []float32
}

type fakeBackend struct {
	central bool
	threads int
	layout  metadata.VertexLayout

	mu       sync.Mutex
	calls    []string
	flushes  []flushCall
	inFlight atomic.Int32
	overlap  atomic.Bool
	failPass error
}

func (f *fakeBackend) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeBackend) Flush(b *batch.Batch) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	// Widen the window in which a second draw could overlap.
	time.Sleep(100 * time.Microsecond)
	f.mu.Lock()
	f.flushes = append(f.flushes, flushCall{
		thread:   b.Thread,
		index:    b.Index,
		finished: b.Finished,
		data:     append([]float32(nil), b.Floats()...),
	})
	f.mu.Unlock()
	f.inFlight.Add(-1)
}

func (f *fakeBackend) NeedsCentralFlush() bool           { return f.central }
func (f *fakeBackend) MaxThreads() int                   { return f.threads }
func (f *fakeBackend) Layout() metadata.VertexLayout     { return f.layout }
func (f *fakeBackend) Primitive() metadata.PrimitiveType { return metadata.PrimitiveTriangles }
func (f *fakeBackend) BeginFrame() error                 { return f.record("BeginFrame") }
func (f *fakeBackend) EndFrame() error                   { return f.record("EndFrame") }
func (f *fakeBackend) EndPass() error                    { return f.record("EndPass") }
func (f *fakeBackend) Flip() error                       { return f.record("Flip") }
func (f *fakeBackend) ClearDepthBuffer() error           { return f.record("ClearDepthBuffer") }
func (f *fakeBackend) DeselectRenderTarget()             { _ = f.record("DeselectRenderTarget") }

func (f *fakeBackend) SetUniformInt(string, string, int32)        {}
func (f *fakeBackend) SetUniformFloat(string, string, float32)    {}
func (f *fakeBackend) SetUniformVec3(string, string, math.Vec3)   {}
func (f *fakeBackend) SetUniformMat4(string, string, math.Mat4)   {}
func (f *fakeBackend) SetUniformFloats(string, string, []float32) {}

func (f *fakeBackend) SynchroniseUniformBuffer(block string) error {
	return f.record("Synchronise " + block)
}

func (f *fakeBackend) Shutdown() { _ = f.record("Shutdown") }

func (f *fakeBackend) BeginPass(shader string) error {
	if f.failPass != nil {
		return f.failPass
	}
	return f.record("BeginPass " + shader)
}

func (f *fakeBackend) primitives() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.flushes {
		n += c.index
	}
	return n
}

func newFake(kind Kind, threads int, central bool) (*Renderer, *fakeBackend) {
	be := &fakeBackend{central: central, threads: threads, layout: metadata.VertexLayoutV3N3}
	return newRenderer(kind, be), be
}

func triangleWorker(perWorker int) Worker {
	return func(ctx WorkerContext) {
		for i := 0; i < perWorker; i++ {
			v := math.NewVec3(float32(ctx.Thread), float32(i), 0)
			ctx.Batch.AddV3N3(ctx.Flusher, v, v, v, v, v, v)
		}
	}
}

func beginPass(t *testing.T, r *Renderer) {
	require.NoError(t, r.BeginFrame())
	require.NoError(t, r.BeginPass("lit"))
}

func TestFrameStateMachine(t *testing.T) {
	r, be := newFake(KindOpenGL, 1, true)

	assert.ErrorIs(t, r.BeginPass("lit"), core.ErrInvalidFrameState)
	assert.ErrorIs(t, r.Flip(), core.ErrInvalidFrameState)

	require.NoError(t, r.BeginFrame())
	assert.Equal(t, FrameBegun, r.State())
	assert.ErrorIs(t, r.BeginFrame(), core.ErrInvalidFrameState)
	require.NoError(t, r.ClearDepthBuffer())

	require.NoError(t, r.BeginPass("lit"))
	assert.Equal(t, FramePassInFlight, r.State())
	assert.ErrorIs(t, r.ClearDepthBuffer(), core.ErrInvalidFrameState)
	assert.ErrorIs(t, r.EndFrame(), core.ErrInvalidFrameState)
	require.NoError(t, r.EndPass())
	assert.Equal(t, FramePassComplete, r.State())

	_, err := r.Run(triangleWorker(1))
	assert.ErrorIs(t, err, core.ErrInvalidFrameState)

	require.NoError(t, r.BeginPass("post"))
	require.NoError(t, r.EndPass())
	assert.Equal(t, 2, r.frame.passes)

	require.NoError(t, r.EndFrame())
	assert.ErrorIs(t, r.BeginPass("lit"), core.ErrInvalidFrameState)
	require.NoError(t, r.Flip())
	assert.Equal(t, FramePresented, r.State())

	require.NoError(t, r.BeginFrame())
	assert.Equal(t, 0, r.frame.passes)

	assert.Equal(t, []string{
		"BeginFrame", "ClearDepthBuffer",
		"BeginPass lit", "EndPass",
		"BeginPass post", "EndPass",
		"EndFrame", "Flip",
		"BeginFrame",
	}, be.calls)
}

func TestFailedBeginPassKeepsState(t *testing.T) {
	r, be := newFake(KindOpenGL, 1, true)
	require.NoError(t, r.BeginFrame())
	be.failPass = core.ErrUnknownShader

	assert.ErrorIs(t, r.BeginPass("missing"), core.ErrUnknownShader)
	assert.Equal(t, FrameBegun, r.State())
}

func TestSingleThreadSingleTriangle(t *testing.T) {
	r, be := newFake(KindOpenGL, 1, true)
	beginPass(t, r)

	v1, v2, v3 := math.NewVec3(1, 2, 3), math.NewVec3(4, 5, 6), math.NewVec3(7, 8, 9)
	n := math.NewVec3(0, 0, 1)
	stats, err := r.Run(func(ctx WorkerContext) {
		assert.Equal(t, 0, ctx.Thread)
		assert.Equal(t, 1, ctx.Threads)
		ctx.Batch.AddV3N3(ctx.Flusher, v1, n, v2, n, v3, n)
	})
	require.NoError(t, err)

	require.Len(t, be.flushes, 1)
	call := be.flushes[0]
	assert.Equal(t, 1, call.index)
	assert.True(t, call.finished)
	assert.Equal(t, []float32{1, 2, 3, 0, 0, 1, 4, 5, 6, 0, 0, 1, 7, 8, 9, 0, 0, 1}, call.data)
	assert.Equal(t, RunStats{Threads: 1, Finished: 1, Flushes: 1, Primitives: 1}, stats)
}

func TestCapacityFlushesExactlyCapacity(t *testing.T) {
	r, be := newFake(KindOpenGL, 1, true)
	beginPass(t, r)

	stats, err := r.Run(triangleWorker(batch.Capacity + 1))
	require.NoError(t, err)

	require.Len(t, be.flushes, 2)
	assert.Equal(t, batch.Capacity, be.flushes[0].index)
	assert.False(t, be.flushes[0].finished)
	assert.Equal(t, 1, be.flushes[1].index)
	assert.True(t, be.flushes[1].finished)
	assert.Equal(t, batch.Capacity+1, stats.Primitives)
}

func TestCentralHandoffDrawsEverything(t *testing.T) {
	const threads, perWorker = 4, 700
	r, be := newFake(KindOpenGL, threads, true)
	beginPass(t, r)

	stats, err := r.Run(triangleWorker(perWorker))
	require.NoError(t, err)

	assert.Equal(t, threads, stats.Finished)
	assert.Equal(t, threads*perWorker, stats.Primitives)
	assert.Equal(t, threads*perWorker, be.primitives())
	assert.False(t, be.overlap.Load(), "two draws were in flight at once")

	finals := map[int]int{}
	perThread := map[int]int{}
	for _, c := range be.flushes {
		perThread[c.thread] += c.index
		if c.finished {
			finals[c.thread]++
		}
	}
	for thr := 0; thr < threads; thr++ {
		assert.Equal(t, perWorker, perThread[thr])
		assert.Equal(t, 1, finals[thr])
	}
}

func TestCentralHandoffPreservesPerWorkerOrder(t *testing.T) {
	const threads = 3
	r, be := newFake(KindOpenGL, threads, true)
	beginPass(t, r)

	_, err := r.Run(triangleWorker(3*batch.Capacity + 5))
	require.NoError(t, err)

	next := map[int]float32{}
	for _, c := range be.flushes {
		for i := 0; i < c.index; i++ {
			// y of the first vertex is the triangle number of its worker.
			y := c.data[i*metadata.VertexLayoutV3N3.ComponentsPerTriangle()+1]
			assert.Equal(t, next[c.thread], y)
			next[c.thread]++
		}
	}
}

func TestParallelFlushWithoutHandoff(t *testing.T) {
	const threads, perWorker = 4, 100
	r, be := newFake(KindVulkan, threads, false)
	beginPass(t, r)

	stats, err := r.Run(triangleWorker(perWorker))
	require.NoError(t, err)
	assert.Equal(t, threads, stats.Finished)
	assert.Equal(t, threads*perWorker, be.primitives())
}

func TestWorkerFinishingItselfIsNotFinishedTwice(t *testing.T) {
	const threads = 3
	r, be := newFake(KindOpenGL, threads, true)
	beginPass(t, r)

	done := make(chan RunStats)
	go func() {
		stats, err := r.Run(func(ctx WorkerContext) {
			triangleWorker(10)(ctx)
			ctx.Batch.Finish(ctx.Flusher)
		})
		assert.NoError(t, err)
		done <- stats
	}()

	select {
	case stats := <-done:
		assert.Equal(t, threads, stats.Finished)
		assert.Equal(t, threads, stats.Flushes)
		assert.Equal(t, threads*10, be.primitives())
	case <-time.After(5 * time.Second):
		t.Fatal("harness did not return")
	}
}

func TestEmptyWorkerStillFinishes(t *testing.T) {
	r, be := newFake(KindOpenGL, 2, true)
	beginPass(t, r)

	stats, err := r.Run(func(WorkerContext) {})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Finished)
	assert.Equal(t, 0, be.primitives())
}

func TestBatchesAreReusedAcrossRuns(t *testing.T) {
	r, _ := newFake(KindVulkan, 2, false)
	beginPass(t, r)

	_, err := r.Run(triangleWorker(3))
	require.NoError(t, err)
	first := append([]*batch.Batch(nil), r.batches...)

	_, err = r.Run(triangleWorker(3))
	require.NoError(t, err)
	require.Len(t, r.batches, 2)
	for i := range first {
		assert.Same(t, first[i], r.batches[i])
		assert.Equal(t, 0, r.batches[i].Index)
		assert.False(t, r.batches[i].Finished)
	}
}

func TestWorkerSlice(t *testing.T) {
	ranges := [][2]int{}
	for thr := 0; thr < 3; thr++ {
		s, e := WorkerContext{Thread: thr, Threads: 3}.Slice(10)
		ranges = append(ranges, [2]int{s, e})
	}
	assert.Equal(t, [][2]int{{0, 4}, {4, 8}, {8, 10}}, ranges)

	s, e := WorkerContext{Thread: 3, Threads: 4}.Slice(2)
	assert.Equal(t, s, e)
}

func TestRenderTargetMismatch(t *testing.T) {
	r, _ := newFake(KindOpenGL, 1, true)
	vkTarget := &RenderTarget{Width: 4, Height: 4, vk: &vulkan.RenderTarget{}}
	glTarget := &RenderTarget{Width: 4, Height: 4, gl: &opengl.RenderTarget{}}

	assert.Equal(t, KindVulkan, vkTarget.Kind())
	assert.Equal(t, KindOpenGL, glTarget.Kind())
	assert.ErrorIs(t, r.SelectRenderTarget(0, vkTarget), core.ErrBackendMismatch)
	assert.ErrorIs(t, r.Snapshot(vkTarget, "out.png"), core.ErrBackendMismatch)
	assert.ErrorIs(t, r.DestroyRenderTarget(vkTarget), core.ErrBackendMismatch)

	_, err := r.NewRenderTarget(4, 4)
	assert.ErrorIs(t, err, core.ErrBackendMismatch)
}

func TestTextureMismatch(t *testing.T) {
	r, _ := newFake(KindVulkan, 1, false)
	glTexture := &Texture{Width: 2, Height: 1, Format: metadata.TextureFormatUByteRGBA, gl: &opengl.Texture{}}
	vkTexture := &Texture{Width: 2, Height: 1, vk: &vulkan.Texture{}}

	assert.Equal(t, KindOpenGL, glTexture.Kind())
	assert.Equal(t, KindVulkan, vkTexture.Kind())
	assert.Contains(t, glTexture.String(), "ubyte_rgba")

	err := r.BindTexture(2, glTexture)
	assert.ErrorIs(t, err, core.ErrBackendMismatch)
	assert.Contains(t, err.Error(), "used with the vulkan renderer")
	assert.ErrorIs(t, r.DestroyTexture(glTexture), core.ErrBackendMismatch)

	// The fake renderer wraps neither concrete backend.
	_, err = r.NewTexture(2, 1, metadata.TextureFormatUByteRGBA, make([]byte, 8))
	assert.ErrorIs(t, err, core.ErrBackendMismatch)
}

func TestLoadTextureMissingFile(t *testing.T) {
	r, _ := newFake(KindOpenGL, 1, true)
	_, err := r.LoadTexture(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrBackendMismatch)
}

func TestHandleSerialisesAccess(t *testing.T) {
	h := NewHandle(KindVulkan, &fakeBackend{})
	assert.Equal(t, KindVulkan, h.Kind())

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.WithLock(func(Backend) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, counter)

	boom := errors.New("boom")
	assert.ErrorIs(t, h.WithLock(func(Backend) error { return boom }), boom)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "opengl", KindOpenGL.String())
	assert.Equal(t, "vulkan", KindVulkan.String())
	assert.Equal(t, "pass in flight", FramePassInFlight.String())
}
