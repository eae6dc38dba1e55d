package metadata

import (
	"encoding/binary"
	gomath "math"

	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/math"
)

const floatSize = 4

/**
 * @brief CPU side copy of a uniform block. Setters write at the offsets the
 * reflection data assigned; the backend pushes Bytes to the device when the
 * buffer is synchronised.
 */
type UniformBuffer struct {
	Name    string
	Binding uint32
	Bytes   []byte
	uniform map[string]BlockUniformSpec
}

func NewUniformBuffer(spec UniformBlockSpec) *UniformBuffer {
	ub := &UniformBuffer{
		Name:    spec.Name,
		Binding: spec.Binding,
		Bytes:   make([]byte, spec.Size),
		uniform: make(map[string]BlockUniformSpec, len(spec.Uniforms)),
	}
	for _, u := range spec.Uniforms {
		ub.uniform[u.Name] = u
	}
	return ub
}

// Size is the byte size of the block.
func (ub *UniformBuffer) Size() int {
	return len(ub.Bytes)
}

// lookup finds a uniform and checks that n bytes fit at its offset.
func (ub *UniformBuffer) lookup(name string, n int) (BlockUniformSpec, bool) {
	u, ok := ub.uniform[name]
	if !ok {
		core.LogShaderWarn("uniform %s not found in block %s", name, ub.Name)
		return u, false
	}
	if u.Offset < 0 || u.Offset+n > len(ub.Bytes) {
		core.LogShaderWarn("uniform %s (offset %d, %d bytes) overflows block %s of %d bytes",
			name, u.Offset, n, ub.Name, len(ub.Bytes))
		return u, false
	}
	return u, true
}

func (ub *UniformBuffer) putFloat(offset int, f float32) {
	binary.LittleEndian.PutUint32(ub.Bytes[offset:], gomath.Float32bits(f))
}

func (ub *UniformBuffer) SetInt(name string, value int32) {
	u, ok := ub.lookup(name, 4)
	if !ok {
		return
	}
	binary.LittleEndian.PutUint32(ub.Bytes[u.Offset:], uint32(value))
}

func (ub *UniformBuffer) SetFloat(name string, value float32) {
	u, ok := ub.lookup(name, floatSize)
	if !ok {
		return
	}
	ub.putFloat(u.Offset, value)
}

func (ub *UniformBuffer) SetVec3(name string, value math.Vec3) {
	u, ok := ub.lookup(name, 3*floatSize)
	if !ok {
		return
	}
	ub.putFloat(u.Offset, value.X)
	ub.putFloat(u.Offset+floatSize, value.Y)
	ub.putFloat(u.Offset+2*floatSize, value.Z)
}

func (ub *UniformBuffer) SetMat4(name string, value math.Mat4) {
	u, ok := ub.lookup(name, 16*floatSize)
	if !ok {
		return
	}
	for i, f := range value.Data {
		ub.putFloat(u.Offset+i*floatSize, f)
	}
}

// SetFloats writes a float array. A stride of 0 or 4 bytes means the elements
// are packed and written in one go, otherwise element i lands at
// offset + i*stride.
func (ub *UniformBuffer) SetFloats(name string, values []float32) {
	u, ok := ub.uniform[name]
	if !ok {
		core.LogShaderWarn("uniform %s not found in block %s", name, ub.Name)
		return
	}
	stride := u.Stride
	if stride == 0 {
		stride = floatSize
	}
	if len(values) == 0 {
		return
	}
	if _, ok := ub.lookup(name, (len(values)-1)*stride+floatSize); !ok {
		return
	}
	if stride == floatSize {
		dst := ub.Bytes[u.Offset : u.Offset+len(values)*floatSize]
		for i, f := range values {
			binary.LittleEndian.PutUint32(dst[i*floatSize:], gomath.Float32bits(f))
		}
		return
	}
	for i, f := range values {
		ub.putFloat(u.Offset+i*stride, f)
	}
}
