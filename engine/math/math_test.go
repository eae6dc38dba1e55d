package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 3, Clamp(7, 1, 3))
	assert.Equal(t, 1, Clamp(-2, 1, 3))
	assert.Equal(t, float32(0.5), Clamp(float32(0.5), 0, 1))
}

func TestCrossIsOrthogonal(t *testing.T) {
	a := NewVec3(1, 2, 3)
	b := NewVec3(-4, 0.5, 2)
	c := a.Cross(b)
	assert.InDelta(t, 0, c.Dot(a), 1e-5)
	assert.InDelta(t, 0, c.Dot(b), 1e-5)
}

func TestNormalizedZeroVector(t *testing.T) {
	assert.Equal(t, NewVec3Zero(), NewVec3Zero().Normalized())
	assert.InDelta(t, 1, NewVec3(3, 4, 0).Normalized().Length(), 1e-6)
}

func TestMat4IdentityMul(t *testing.T) {
	tr := NewMat4Translation(NewVec3(1, 2, 3))
	assert.Equal(t, tr, tr.Mul(NewMat4Identity()))
	assert.Equal(t, tr, NewMat4Identity().Mul(tr))

	p := NewVec3(1, 1, 1).Transform(tr)
	assert.True(t, p.Compare(NewVec3(2, 3, 4), K_FLOAT_EPSILON))
	d := NewVec3(1, 1, 1).TransformDirection(tr)
	assert.True(t, d.Compare(NewVec3(1, 1, 1), K_FLOAT_EPSILON))
}

func TestEulerYQuarterTurn(t *testing.T) {
	r := NewMat4EulerY(DegToRad(90))
	v := NewVec3(1, 0, 0).TransformDirection(r)
	assert.True(t, v.Compare(NewVec3(0, 0, -1), 1e-5), "%+v", v)
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	eye := NewVec3(0, 0, 5)
	view := NewMat4LookAt(eye, NewVec3Zero(), NewVec3Up())
	assert.True(t, eye.Transform(view).Compare(NewVec3Zero(), 1e-5))

	// The target ends up straight ahead, down the negative z axis.
	target := NewVec3Zero().Transform(view)
	assert.InDelta(t, -5, target.Z, 1e-5)
}

func TestRandomInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		f := RandomInRange(-1, 1)
		assert.GreaterOrEqual(t, f, float32(-1))
		assert.Less(t, f, float32(1))
	}
}
