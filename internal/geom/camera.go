package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Camera is a perspective camera in world space.
type Camera struct {
	Position  mgl64.Vec3
	Direction mgl64.Vec3
	Up        mgl64.Vec3
	FovY      float64 // radians
	Aspect    float64
	NearPlane float64
	FarPlane  float64
}

// NewCamera returns a camera at position looking along direction with a
// 60 degree vertical field of view.
func NewCamera(position, direction mgl64.Vec3, aspect float64) Camera {
	return Camera{
		Position:  position,
		Direction: direction,
		Up:        mgl64.Vec3{0, 0, 1},
		FovY:      mgl64.DegToRad(60),
		Aspect:    aspect,
		NearPlane: 0.1,
		FarPlane:  1e5,
	}
}

func (c Camera) up() mgl64.Vec3 {
	dir := c.Direction.Normalize()
	up := c.Up
	if up.Len() == 0 || math.Abs(dir.Dot(up.Normalize())) > 0.999 {
		up = mgl64.Vec3{0, 1, 0}
		if math.Abs(dir.Y()) > 0.999 {
			up = mgl64.Vec3{1, 0, 0}
		}
	}
	return up
}

func (c Camera) ViewMatrix() mgl64.Mat4 {
	return mgl64.LookAtV(c.Position, c.Position.Add(c.Direction.Normalize()), c.up())
}

func (c Camera) ProjectionMatrix() mgl64.Mat4 {
	return mgl64.Perspective(c.FovY, c.Aspect, c.NearPlane, c.FarPlane)
}

// CullingVolume returns the view frustum planes in world space.
func (c Camera) CullingVolume() CullingVolume {
	return FrustumFromMatrix(c.ProjectionMatrix().Mul4(c.ViewMatrix()))
}

// SSEDenominator converts world-space error at unit distance to a fraction
// of the screen height.
func (c Camera) SSEDenominator() float64 {
	return 2 * math.Tan(c.FovY/2)
}
