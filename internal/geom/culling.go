package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Plane is n·p + Distance = 0 with a unit normal pointing inside.
type Plane struct {
	Normal   mgl64.Vec3
	Distance float64
}

func normalizePlane(a, b, c, d float64) Plane {
	l := math.Sqrt(a*a + b*b + c*c)
	if l == 0 {
		return Plane{Normal: mgl64.Vec3{a, b, c}, Distance: d}
	}
	return Plane{Normal: mgl64.Vec3{a / l, b / l, c / l}, Distance: d / l}
}

// PlaneMask records which culling planes still have to be tested. Bit k set
// means the volume straddled plane k; a cleared bit means it is known to be
// fully inside plane k.
type PlaneMask uint32

const (
	// MaskOutside is returned once any plane rejects the volume.
	MaskOutside PlaneMask = 0xffffffff
	// MaskInside means the volume is inside every plane.
	MaskInside PlaneMask = 0
	// MaskIndeterminate forces every plane to be tested.
	MaskIndeterminate PlaneMask = 0x7fffffff
)

func (m PlaneMask) IsOutside() bool { return m == MaskOutside }
func (m PlaneMask) IsInside() bool  { return m == MaskInside }

func (m PlaneMask) String() string {
	switch m {
	case MaskOutside:
		return "outside"
	case MaskInside:
		return "inside"
	default:
		return "intersecting"
	}
}

// CullingVolume is a set of planes whose positive half spaces bound the
// visible region.
type CullingVolume struct {
	Planes []Plane
}

// VisibilityWithPlaneMask tests box against the planes not already proven
// inside by parentMask and returns the narrowed mask for children.
func (cv CullingVolume) VisibilityWithPlaneMask(box OrientedBoundingBox, parentMask PlaneMask) PlaneMask {
	if parentMask == MaskOutside || parentMask == MaskInside {
		return parentMask
	}

	mask := MaskInside
	for k, pl := range cv.Planes {
		var flag PlaneMask
		if k < 31 {
			flag = 1 << uint(k)
			if parentMask&flag == 0 {
				continue
			}
		}
		switch box.IntersectPlane(pl) {
		case IntersectOutside:
			return MaskOutside
		case IntersectIntersecting:
			mask |= flag
		}
	}
	return mask
}

// FrustumFromMatrix builds the six frustum planes from a combined
// projection*view matrix. Planes are left, right, bottom, top, near, far.
func FrustumFromMatrix(clip mgl64.Mat4) CullingVolume {
	// mgl64 matrices are column-major
	m00, m01, m02, m03 := clip[0], clip[4], clip[8], clip[12]
	m10, m11, m12, m13 := clip[1], clip[5], clip[9], clip[13]
	m20, m21, m22, m23 := clip[2], clip[6], clip[10], clip[14]
	m30, m31, m32, m33 := clip[3], clip[7], clip[11], clip[15]

	return CullingVolume{Planes: []Plane{
		normalizePlane(m30+m00, m31+m01, m32+m02, m33+m03),
		normalizePlane(m30-m00, m31-m01, m32-m02, m33-m03),
		normalizePlane(m30+m10, m31+m11, m32+m12, m33+m13),
		normalizePlane(m30-m10, m31-m11, m32-m12, m33-m13),
		normalizePlane(m30+m20, m31+m21, m32+m22, m33+m23),
		normalizePlane(m30-m20, m31-m21, m32-m22, m33-m23),
	}}
}
