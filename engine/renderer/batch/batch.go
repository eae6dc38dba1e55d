// Package batch holds the per-thread triangle accumulation buffer that every
// draw goes through before it reaches a backend.
package batch

import (
	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
)

// Capacity is the number of triangles a batch holds before it must be flushed.
const Capacity = 512

// Flusher turns the accumulated triangles of a batch into a draw. Flush
// returns once the batch data is no longer needed by the flusher, so the
// caller may overwrite it straight away.
type Flusher interface {
	Flush(b *Batch)
}

// FlusherFunc adapts a function to the Flusher interface.
type FlusherFunc func(b *Batch)

func (f FlusherFunc) Flush(b *Batch) {
	f(b)
}

/**
 * @brief A fixed capacity buffer of triangles for one vertex layout. A batch
 * is owned by exactly one goroutine at a time.
 */
type Batch struct {
	/** @brief Index of the worker that owns the batch. */
	Thread int
	Layout metadata.VertexLayout
	/** @brief Number of complete triangles written so far. Always within [0, Capacity]. */
	Index     int
	Primitive metadata.PrimitiveType
	/** @brief Set on the last flush a worker performs for a pass. */
	Finished bool
	/** @brief Flat vertex data, Capacity * Layout.ComponentsPerTriangle() floats. */
	Data []float32
}

func New(thread int, layout metadata.VertexLayout) *Batch {
	return &Batch{
		Thread:    thread,
		Layout:    layout,
		Primitive: metadata.PrimitiveTriangles,
		Data:      make([]float32, Capacity*layout.ComponentsPerTriangle()),
	}
}

// SetLayout switches the batch to another layout. Any pending triangles are
// dropped, so callers flush first.
func (b *Batch) SetLayout(layout metadata.VertexLayout) {
	if size := Capacity * layout.ComponentsPerTriangle(); len(b.Data) != size {
		b.Data = make([]float32, size)
	}
	b.Layout = layout
	b.Index = 0
}

// Clone returns a deep copy, used when a batch crosses goroutines.
func (b *Batch) Clone() *Batch {
	c := *b
	c.Data = make([]float32, len(b.Data))
	copy(c.Data, b.Data)
	return &c
}

// Floats returns the written part of the vertex data.
func (b *Batch) Floats() []float32 {
	return b.Data[:b.Index*b.Layout.ComponentsPerTriangle()]
}

// Full reports whether the next add must flush first.
func (b *Batch) Full() bool {
	return b.Index == Capacity
}

// CheckFlush flushes the batch through f when forced or when the batch is
// full, then rewinds it. It is the only place capacity is enforced.
func (b *Batch) CheckFlush(force bool, f Flusher) bool {
	if !force && b.Index != Capacity {
		return false
	}
	f.Flush(b)
	b.Index = 0
	return true
}

// Finish marks the batch as the worker's last one and flushes it.
func (b *Batch) Finish(f Flusher) {
	b.Finished = true
	b.CheckFlush(true, f)
	b.Finished = false
}

func (b *Batch) offset() int {
	return b.Index * b.Layout.ComponentsPerTriangle()
}

func put3(d []float32, v math.Vec3) {
	d[0], d[1], d[2] = v.X, v.Y, v.Z
}

func put2(d []float32, v math.Vec2) {
	d[0], d[1] = v.X, v.Y
}

// The Append functions write one triangle without any capacity check. The
// batch layout must match the function.

func (b *Batch) AppendN3(n1, n2, n3 math.Vec3) {
	d := b.Data[b.offset():]
	put3(d[0:], n1)
	put3(d[3:], n2)
	put3(d[6:], n3)
	b.Index++
}

func (b *Batch) AppendV3N3C3(v1, n1, c1, v2, n2, c2, v3, n3, c3 math.Vec3) {
	d := b.Data[b.offset():]
	put3(d[0:], v1)
	put3(d[3:], n1)
	put3(d[6:], c1)
	put3(d[9:], v2)
	put3(d[12:], n2)
	put3(d[15:], c2)
	put3(d[18:], v3)
	put3(d[21:], n3)
	put3(d[24:], c3)
	b.Index++
}

func (b *Batch) AppendV3N3(v1, n1, v2, n2, v3, n3 math.Vec3) {
	d := b.Data[b.offset():]
	put3(d[0:], v1)
	put3(d[3:], n1)
	put3(d[6:], v2)
	put3(d[9:], n2)
	put3(d[12:], v3)
	put3(d[15:], n3)
	b.Index++
}

func (b *Batch) AppendV2T2(v1, t1, v2, t2, v3, t3 math.Vec2) {
	d := b.Data[b.offset():]
	put2(d[0:], v1)
	put2(d[2:], t1)
	put2(d[4:], v2)
	put2(d[6:], t2)
	put2(d[8:], v3)
	put2(d[10:], t3)
	b.Index++
}

// The Add functions are the safe way to add a triangle: flush if full, then append.

func (b *Batch) AddN3(f Flusher, n1, n2, n3 math.Vec3) {
	b.CheckFlush(false, f)
	b.AppendN3(n1, n2, n3)
}

func (b *Batch) AddV3N3C3(f Flusher, v1, n1, c1, v2, n2, c2, v3, n3, c3 math.Vec3) {
	b.CheckFlush(false, f)
	b.AppendV3N3C3(v1, n1, c1, v2, n2, c2, v3, n3, c3)
}

func (b *Batch) AddV3N3(f Flusher, v1, n1, v2, n2, v3, n3 math.Vec3) {
	b.CheckFlush(false, f)
	b.AppendV3N3(v1, n1, v2, n2, v3, n3)
}

func (b *Batch) AddV2T2(f Flusher, v1, t1, v2, t2, v3, t3 math.Vec2) {
	b.CheckFlush(false, f)
	b.AppendV2T2(v1, t1, v2, t2, v3, t3)
}
