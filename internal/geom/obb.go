package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Epsilon7 is the smallest distance used when dividing by a camera distance.
const Epsilon7 = 1e-7

// Intersect classifies a volume against a single plane.
type Intersect int

const (
	IntersectOutside Intersect = iota
	IntersectIntersecting
	IntersectInside
)

// OrientedBoundingBox is a box with a center and three half axes stored as
// the columns of HalfAxes. Axes may have zero length for flat volumes.
type OrientedBoundingBox struct {
	Center   mgl64.Vec3
	HalfAxes mgl64.Mat3
}

// NewOrientedBoundingBox returns an axis-aligned box centered at center.
func NewOrientedBoundingBox(center, halfExtents mgl64.Vec3) OrientedBoundingBox {
	return OrientedBoundingBox{
		Center:   center,
		HalfAxes: mgl64.Diag3(halfExtents),
	}
}

// HalfExtents returns the length of each half axis.
func (b OrientedBoundingBox) HalfExtents() mgl64.Vec3 {
	return mgl64.Vec3{b.HalfAxes.Col(0).Len(), b.HalfAxes.Col(1).Len(), b.HalfAxes.Col(2).Len()}
}

// basis returns an orthonormal frame aligned with the half axes. Degenerate
// axes are replaced with directions perpendicular to the others.
func (b OrientedBoundingBox) basis() [3]mgl64.Vec3 {
	var dirs [3]mgl64.Vec3
	var valid [3]bool
	count := 0
	for i := range 3 {
		col := b.HalfAxes.Col(i)
		if l := col.Len(); l > Epsilon7 {
			dirs[i] = col.Mul(1 / l)
			valid[i] = true
			count++
		}
	}

	switch count {
	case 3:
		return dirs
	case 0:
		return [3]mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	case 1:
		var a int
		for i := range 3 {
			if valid[i] {
				a = i
			}
		}
		ref := mgl64.Vec3{1, 0, 0}
		if math.Abs(dirs[a].X()) > 0.9 {
			ref = mgl64.Vec3{0, 1, 0}
		}
		p := dirs[a].Cross(ref).Normalize()
		q := dirs[a].Cross(p).Normalize()
		dirs[(a+1)%3] = p
		dirs[(a+2)%3] = q
		return dirs
	default:
		for i := range 3 {
			if !valid[i] {
				dirs[i] = dirs[(i+1)%3].Cross(dirs[(i+2)%3]).Normalize()
			}
		}
		return dirs
	}
}

// DistanceSquaredTo returns the squared distance from p to the closest point
// of the box, zero when p is inside.
func (b OrientedBoundingBox) DistanceSquaredTo(p mgl64.Vec3) float64 {
	offset := p.Sub(b.Center)
	extents := b.HalfExtents()
	dirs := b.basis()

	d := 0.0
	for i := range 3 {
		proj := offset.Dot(dirs[i])
		e := extents[i]
		if proj < -e {
			d += (proj + e) * (proj + e)
		} else if proj > e {
			d += (proj - e) * (proj - e)
		}
	}
	return d
}

// IntersectPlane reports which side of the plane the box lies on. The
// positive half space is inside.
func (b OrientedBoundingBox) IntersectPlane(pl Plane) Intersect {
	n := pl.Normal
	radius := math.Abs(n.Dot(b.HalfAxes.Col(0))) +
		math.Abs(n.Dot(b.HalfAxes.Col(1))) +
		math.Abs(n.Dot(b.HalfAxes.Col(2)))
	dist := n.Dot(b.Center) + pl.Distance

	if dist <= -radius {
		return IntersectOutside
	}
	if dist >= radius {
		return IntersectInside
	}
	return IntersectIntersecting
}

// Corners returns the eight corners of the box.
func (b OrientedBoundingBox) Corners() [8]mgl64.Vec3 {
	var out [8]mgl64.Vec3
	u, v, w := b.HalfAxes.Col(0), b.HalfAxes.Col(1), b.HalfAxes.Col(2)
	for i := range 8 {
		c := b.Center
		if i&1 == 0 {
			c = c.Sub(u)
		} else {
			c = c.Add(u)
		}
		if i&2 == 0 {
			c = c.Sub(v)
		} else {
			c = c.Add(v)
		}
		if i&4 == 0 {
			c = c.Sub(w)
		} else {
			c = c.Add(w)
		}
		out[i] = c
	}
	return out
}

// Contains reports whether p lies inside the box, allowing a tolerance of eps.
func (b OrientedBoundingBox) Contains(p mgl64.Vec3, eps float64) bool {
	return b.DistanceSquaredTo(p) <= eps*eps
}

// ApproxEqual compares center and half axes component-wise.
func (b OrientedBoundingBox) ApproxEqual(o OrientedBoundingBox, eps float64) bool {
	if !b.Center.ApproxEqualThreshold(o.Center, eps) {
		return false
	}
	for i := range 9 {
		if math.Abs(b.HalfAxes[i]-o.HalfAxes[i]) > eps {
			return false
		}
	}
	return true
}
