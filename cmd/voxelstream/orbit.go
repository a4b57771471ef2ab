package main

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"voxstream/internal/config"
	"voxstream/internal/geom"
	"voxstream/internal/shape"
)

const aspectRatio = 16.0 / 9.0

// orbitCamera circles the box at radius, slightly above it, looking at its
// center.
func orbitCamera(box geom.OrientedBoundingBox, radius float64, period, elapsed time.Duration, aspect float64) geom.Camera {
	angle := 2 * math.Pi * elapsed.Seconds() / period.Seconds()
	offset := mgl64.Vec3{
		radius * math.Cos(angle),
		radius * math.Sin(angle),
		radius * 0.35,
	}
	pos := box.Center.Add(offset)
	return geom.NewCamera(pos, box.Center.Sub(pos), aspect)
}

func spin(model mgl64.Mat4, angle float64) mgl64.Mat4 {
	return model.Mul4(mgl64.HomogRotate3DZ(angle))
}

func boundsOf(d *config.Dataset) (mgl64.Vec3, mgl64.Vec3) {
	minBounds, maxBounds := shape.DefaultMinBounds, shape.DefaultMaxBounds
	if d.MinBounds != nil {
		minBounds = mgl64.Vec3(*d.MinBounds)
	}
	if d.MaxBounds != nil {
		maxBounds = mgl64.Vec3(*d.MaxBounds)
	}
	return minBounds, maxBounds
}
