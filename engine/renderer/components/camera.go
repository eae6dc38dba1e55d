package components

import (
	gomath "math"

	"github.com/spaghettifunk/twinrender/engine/math"
)

// 89 degrees, keeps the eye off the up axis.
const pitchLimit float32 = 1.55334306

/**
 * @brief An orbit camera looking at Target from Distance away. Yaw turns
 * around the world up axis, pitch raises the eye above the target plane.
 * The view matrix is rebuilt lazily after any change.
 */
type Camera struct {
	Target   math.Vec3
	Distance float32
	yaw      float32
	pitch    float32
	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	isDirty    bool
	viewMatrix math.Mat4
}

func NewCamera(target math.Vec3, distance float32) *Camera {
	return &Camera{
		Target:     target,
		Distance:   distance,
		isDirty:    true,
		viewMatrix: math.NewMat4Identity(),
	}
}

func (c *Camera) Yaw(amount float32) {
	c.yaw += amount
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.pitch = math.Clamp(c.pitch+amount, -pitchLimit, pitchLimit)
	c.isDirty = true
}

func (c *Camera) SetDistance(distance float32) {
	c.Distance = distance
	c.isDirty = true
}

// Position is where the eye currently sits.
func (c *Camera) Position() math.Vec3 {
	cp, sp := gomath.Cos(float64(c.pitch)), gomath.Sin(float64(c.pitch))
	cy, sy := gomath.Cos(float64(c.yaw)), gomath.Sin(float64(c.yaw))
	offset := math.NewVec3(float32(cp*sy), float32(sp), float32(cp*cy))
	return c.Target.Add(offset.MulScalar(c.Distance))
}

func (c *Camera) GetView() math.Mat4 {
	if c.isDirty {
		c.viewMatrix = math.NewMat4LookAt(c.Position(), c.Target, math.NewVec3Up())
		c.isDirty = false
	}
	return c.viewMatrix
}
