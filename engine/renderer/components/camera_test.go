package components

import (
	"testing"

	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/stretchr/testify/assert"
)

func TestCameraStartsOnPositiveZ(t *testing.T) {
	c := NewCamera(math.NewVec3Zero(), 10)
	assert.True(t, c.Position().Compare(math.NewVec3(0, 0, 10), 1e-5), "%+v", c.Position())
}

func TestCameraViewMovesEyeToOrigin(t *testing.T) {
	c := NewCamera(math.NewVec3(1, 0, 2), 6)
	c.Yaw(math.DegToRad(30))
	c.Pitch(math.DegToRad(20))

	view := c.GetView()
	assert.True(t, c.Position().Transform(view).Compare(math.NewVec3Zero(), 1e-4))
	assert.InDelta(t, -6, c.Target.Transform(view).Z, 1e-4)
}

func TestCameraPitchIsClamped(t *testing.T) {
	c := NewCamera(math.NewVec3Zero(), 1)
	c.Pitch(10)
	assert.Equal(t, pitchLimit, c.pitch)
	assert.Less(t, c.Position().Y, float32(1))
}

func TestCameraViewIsCachedUntilChanged(t *testing.T) {
	c := NewCamera(math.NewVec3Zero(), 4)
	first := c.GetView()
	assert.False(t, c.isDirty)
	assert.Equal(t, first, c.GetView())

	c.Yaw(math.DegToRad(90))
	assert.True(t, c.isDirty)
	assert.NotEqual(t, first, c.GetView())
	assert.True(t, c.Position().Compare(math.NewVec3(4, 0, 0), 1e-5))
}
