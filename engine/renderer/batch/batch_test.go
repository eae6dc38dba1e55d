package batch

import (
	"testing"

	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	flushes []*Batch
}

func (r *recorder) Flush(b *Batch) {
	r.flushes = append(r.flushes, b.Clone())
}

func v3(x, y, z float32) math.Vec3 { return math.NewVec3(x, y, z) }

func TestNewSizesDataForLayout(t *testing.T) {
	for l := 0; l < metadata.VertexLayoutCount; l++ {
		layout := metadata.VertexLayout(l)
		b := New(0, layout)
		assert.Len(t, b.Data, Capacity*layout.ComponentsPerTriangle(), layout.String())
	}
}

func TestAppendWritesAtTriangleStride(t *testing.T) {
	b := New(0, metadata.VertexLayoutV2T2)
	b.AppendV2T2(math.NewVec2(1, 1), math.NewVec2(1, 1), math.NewVec2(1, 1), math.NewVec2(1, 1), math.NewVec2(1, 1), math.NewVec2(1, 1))
	b.AppendV2T2(math.NewVec2(2, 3), math.NewVec2(4, 5), math.NewVec2(0, 0), math.NewVec2(0, 0), math.NewVec2(0, 0), math.NewVec2(9, 8))

	stride := metadata.VertexLayoutV2T2.ComponentsPerTriangle()
	assert.Equal(t, 2, b.Index)
	assert.Equal(t, []float32{2, 3, 4, 5}, b.Data[stride:stride+4])
	assert.Equal(t, float32(8), b.Data[2*stride-1])
	assert.Len(t, b.Floats(), 2*stride)
}

func TestSingleTriangleV3N3(t *testing.T) {
	rec := &recorder{}
	b := New(0, metadata.VertexLayoutV3N3)
	b.AddV3N3(rec,
		v3(1, 2, 3), v3(0, 0, 1),
		v3(4, 5, 6), v3(0, 1, 0),
		v3(7, 8, 9), v3(1, 0, 0))
	assert.Empty(t, rec.flushes)

	b.Finish(rec)
	require.Len(t, rec.flushes, 1)
	got := rec.flushes[0]
	assert.Equal(t, 1, got.Index)
	assert.True(t, got.Finished)
	assert.Equal(t, []float32{
		1, 2, 3, 0, 0, 1,
		4, 5, 6, 0, 1, 0,
		7, 8, 9, 1, 0, 0,
	}, got.Floats())
	assert.Equal(t, 0, b.Index)
	assert.False(t, b.Finished)
}

func TestRoundTrip(t *testing.T) {
	rec := &recorder{}
	b := New(3, metadata.VertexLayoutN3)
	for i := 0; i < 100; i++ {
		b.AddN3(rec, v3(float32(i), 0, 0), v3(0, 0, 0), v3(0, 0, 0))
	}
	assert.True(t, b.CheckFlush(true, rec))
	require.Len(t, rec.flushes, 1)
	assert.Equal(t, 100, rec.flushes[0].Index)
	assert.Equal(t, 3, rec.flushes[0].Thread)
	assert.Equal(t, float32(99), rec.flushes[0].Data[99*9])
	assert.Equal(t, 0, b.Index)
}

func TestCheckFlushOnEmptyBatchIsNoop(t *testing.T) {
	rec := &recorder{}
	b := New(0, metadata.VertexLayoutV3N3C3)
	before := b.Clone()
	assert.False(t, b.CheckFlush(false, rec))
	assert.False(t, b.CheckFlush(false, rec))
	assert.Empty(t, rec.flushes)
	assert.Equal(t, before, b)
}

func TestCapacityBoundary(t *testing.T) {
	rec := &recorder{}
	b := New(0, metadata.VertexLayoutN3)
	for i := 0; i < Capacity; i++ {
		b.AddN3(rec, v3(1, 1, 1), v3(1, 1, 1), v3(1, 1, 1))
	}
	assert.Empty(t, rec.flushes)
	assert.True(t, b.Full())

	assert.True(t, b.CheckFlush(false, rec))
	require.Len(t, rec.flushes, 1)
	assert.Equal(t, Capacity, rec.flushes[0].Index)

	// The next add goes into the rewound batch.
	b.AddN3(rec, v3(1, 1, 1), v3(1, 1, 1), v3(1, 1, 1))
	assert.Equal(t, 1, b.Index)
	assert.Len(t, rec.flushes, 1)
}

func TestAddFlushesWhenFull(t *testing.T) {
	rec := &recorder{}
	b := New(0, metadata.VertexLayoutV3N3C3)
	z := math.NewVec3Zero()
	for i := 0; i < Capacity+10; i++ {
		b.AddV3N3C3(rec, z, z, z, z, z, z, z, z, z)
	}
	require.Len(t, rec.flushes, 1)
	assert.Equal(t, Capacity, rec.flushes[0].Index)
	assert.Equal(t, 10, b.Index)
}

func TestCloneIsDeep(t *testing.T) {
	b := New(1, metadata.VertexLayoutN3)
	b.AppendN3(v3(1, 2, 3), v3(4, 5, 6), v3(7, 8, 9))
	c := b.Clone()
	b.Data[0] = 42
	assert.Equal(t, float32(1), c.Data[0])
	assert.Equal(t, b.Index, c.Index)
}

func TestSetLayout(t *testing.T) {
	b := New(0, metadata.VertexLayoutN3)
	b.AppendN3(v3(1, 2, 3), v3(4, 5, 6), v3(7, 8, 9))
	b.SetLayout(metadata.VertexLayoutV3N3C3)
	assert.Equal(t, 0, b.Index)
	assert.Len(t, b.Data, Capacity*27)
}
