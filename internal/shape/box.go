// Package shape holds the bounding shapes a voxel dataset can be laid out in.
package shape

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"voxstream/internal/geom"
)

var (
	// DefaultMinBounds and DefaultMaxBounds span the whole box in its local
	// [-1, 1] space.
	DefaultMinBounds = mgl64.Vec3{-1, -1, -1}
	DefaultMaxBounds = mgl64.Vec3{1, 1, 1}

	ErrInvalidBounds = errors.New("invalid shape bounds")
)

// Box is a voxel volume laid out in the unit cube [-1, 1]^3 of a model
// matrix. Bounds clip the cube to a sub-box in local space.
type Box struct {
	model     mgl64.Mat4
	minBounds mgl64.Vec3
	maxBounds mgl64.Vec3
	obb       geom.OrientedBoundingBox
}

// NewBox returns a box with an identity transform and default bounds.
func NewBox() *Box {
	b := &Box{}
	_ = b.Update(mgl64.Ident4(), DefaultMinBounds, DefaultMaxBounds)
	return b
}

// Update sets the model transform and the local bounds.
func (b *Box) Update(model mgl64.Mat4, minBounds, maxBounds mgl64.Vec3) error {
	for i := range 3 {
		if minBounds[i] > maxBounds[i] {
			return errors.Wrapf(ErrInvalidBounds, "axis %d: min %v > max %v", i, minBounds[i], maxBounds[i])
		}
		if minBounds[i] < -1 || maxBounds[i] > 1 {
			return errors.Wrapf(ErrInvalidBounds, "axis %d: [%v, %v] outside [-1, 1]", i, minBounds[i], maxBounds[i])
		}
	}

	b.model = model
	b.minBounds = minBounds
	b.maxBounds = maxBounds
	b.obb = b.TileBoundingBox(0, 0, 0, 0)
	return nil
}

// ModelMatrix returns the current transform.
func (b *Box) ModelMatrix() mgl64.Mat4 {
	return b.model
}

// OrientedBoundingBox bounds the whole shape.
func (b *Box) OrientedBoundingBox() geom.OrientedBoundingBox {
	return b.obb
}

// TileBoundingBox bounds tile (x, y, z) of the 2^level subdivision of the
// bounded region.
func (b *Box) TileBoundingBox(level, x, y, z int) geom.OrientedBoundingBox {
	n := float64(int(1) << uint(level))
	size := b.maxBounds.Sub(b.minBounds).Mul(1 / n)
	coords := mgl64.Vec3{float64(x), float64(y), float64(z)}

	half := size.Mul(0.5)
	localCenter := mgl64.Vec3{
		b.minBounds[0] + size[0]*coords[0] + half[0],
		b.minBounds[1] + size[1]*coords[1] + half[1],
		b.minBounds[2] + size[2]*coords[2] + half[2],
	}

	return geom.OrientedBoundingBox{
		Center:   b.model.Mul4x1(localCenter.Vec4(1)).Vec3(),
		HalfAxes: b.model.Mat3().Mul3(mgl64.Diag3(half)),
	}
}
