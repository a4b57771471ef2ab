package geom

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
)

func TestDistanceSquaredTo(t *testing.T) {
	box := NewOrientedBoundingBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 2, 3})

	tests := []struct {
		name string
		p    mgl64.Vec3
		want float64
	}{
		{"inside", mgl64.Vec3{0.5, 0.5, 0.5}, 0},
		{"on face", mgl64.Vec3{1, 0, 0}, 0},
		{"along x", mgl64.Vec3{4, 0, 0}, 9},
		{"along -z", mgl64.Vec3{0, 0, -5}, 4},
		{"corner", mgl64.Vec3{2, 3, 4}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, box.DistanceSquaredTo(tt.p), 1e-12)
		})
	}
}

func TestDistanceSquaredToRotatedBox(t *testing.T) {
	rot := mgl64.Rotate3DZ(math.Pi / 4)
	box := OrientedBoundingBox{
		Center:   mgl64.Vec3{0, 0, 0},
		HalfAxes: rot.Mul3(mgl64.Diag3(mgl64.Vec3{1, 1, 1})),
	}
	// the corner of the rotated unit box sits at sqrt(2) on the x axis
	require.InDelta(t, 0, box.DistanceSquaredTo(mgl64.Vec3{math.Sqrt2 - 1e-9, 0, 0}), 1e-9)
	d := math.Sqrt(box.DistanceSquaredTo(mgl64.Vec3{3, 0, 0}))
	require.InDelta(t, 3-math.Sqrt2, d, 1e-9)
}

func TestDistanceSquaredToDegenerateBox(t *testing.T) {
	point := OrientedBoundingBox{Center: mgl64.Vec3{1, 1, 1}}
	require.InDelta(t, 12.0, point.DistanceSquaredTo(mgl64.Vec3{-1, -1, -1}), 1e-12)

	flat := NewOrientedBoundingBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 0})
	require.InDelta(t, 4.0, flat.DistanceSquaredTo(mgl64.Vec3{0, 0, 2}), 1e-12)
	require.InDelta(t, 5.0, flat.DistanceSquaredTo(mgl64.Vec3{2, 0, -2}), 1e-12)
}

func TestIntersectPlane(t *testing.T) {
	box := NewOrientedBoundingBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})

	require.Equal(t, IntersectInside, box.IntersectPlane(Plane{Normal: mgl64.Vec3{1, 0, 0}, Distance: 2}))
	require.Equal(t, IntersectOutside, box.IntersectPlane(Plane{Normal: mgl64.Vec3{1, 0, 0}, Distance: -2}))
	require.Equal(t, IntersectIntersecting, box.IntersectPlane(Plane{Normal: mgl64.Vec3{1, 0, 0}, Distance: 0}))
}

func TestCornersAreContained(t *testing.T) {
	box := OrientedBoundingBox{
		Center:   mgl64.Vec3{3, -1, 2},
		HalfAxes: mgl64.Rotate3DY(0.3).Mul3(mgl64.Diag3(mgl64.Vec3{1, 2, 0.5})),
	}
	for _, c := range box.Corners() {
		require.True(t, box.Contains(c, 1e-9))
	}
	require.False(t, box.Contains(mgl64.Vec3{10, 10, 10}, 1e-9))
}

func TestVisibilityWithPlaneMask(t *testing.T) {
	cv := CullingVolume{Planes: []Plane{
		{Normal: mgl64.Vec3{1, 0, 0}, Distance: 0},  // x >= 0
		{Normal: mgl64.Vec3{0, 1, 0}, Distance: 10}, // y >= -10
	}}

	straddling := NewOrientedBoundingBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	inside := NewOrientedBoundingBox(mgl64.Vec3{5, 0, 0}, mgl64.Vec3{1, 1, 1})
	outside := NewOrientedBoundingBox(mgl64.Vec3{-5, 0, 0}, mgl64.Vec3{1, 1, 1})

	require.Equal(t, PlaneMask(1), cv.VisibilityWithPlaneMask(straddling, MaskIndeterminate))
	require.Equal(t, MaskInside, cv.VisibilityWithPlaneMask(inside, MaskIndeterminate))
	require.Equal(t, MaskOutside, cv.VisibilityWithPlaneMask(outside, MaskIndeterminate))

	// planes already proven inside by the parent are not tested again
	require.Equal(t, MaskInside, cv.VisibilityWithPlaneMask(outside, PlaneMask(2)))
	require.Equal(t, MaskInside, cv.VisibilityWithPlaneMask(outside, MaskInside))
	require.Equal(t, MaskOutside, cv.VisibilityWithPlaneMask(inside, MaskOutside))
}

func TestCameraVisibility(t *testing.T) {
	box := NewOrientedBoundingBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	cam := NewCamera(mgl64.Vec3{-10, -10, -10}, mgl64.Vec3{1, 1, 1}, 1)
	cam.FovY = math.Pi / 2

	require.Equal(t, MaskInside, cam.CullingVolume().VisibilityWithPlaneMask(box, MaskIndeterminate))

	cam.Direction = mgl64.Vec3{-1, -1, -1}
	require.Equal(t, MaskOutside, cam.CullingVolume().VisibilityWithPlaneMask(box, MaskIndeterminate))
}

func TestSSEDenominator(t *testing.T) {
	cam := NewCamera(mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, 1)
	cam.FovY = math.Pi / 2
	require.InDelta(t, 2.0, cam.SSEDenominator(), 1e-12)
}
