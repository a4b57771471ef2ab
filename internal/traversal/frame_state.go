package traversal

import (
	"github.com/go-gl/mathgl/mgl64"

	"voxstream/internal/geom"
)

// FrameState is the per-frame camera input of Update.
type FrameState struct {
	FrameNumber                uint64
	CameraPosition             mgl64.Vec3
	CullingVolume              geom.CullingVolume
	ScreenSpaceErrorMultiplier float64
	PixelRatio                 float64
}

// NewFrameState derives the culling volume and the screen-space error
// multiplier from camera for a drawing buffer of the given pixel height.
func NewFrameState(camera geom.Camera, drawingBufferHeight int, pixelRatio float64, frameNumber uint64) *FrameState {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}
	return &FrameState{
		FrameNumber:                frameNumber,
		CameraPosition:             camera.Position,
		CullingVolume:              camera.CullingVolume(),
		ScreenSpaceErrorMultiplier: float64(drawingBufferHeight) / pixelRatio / camera.SSEDenominator(),
		PixelRatio:                 pixelRatio,
	}
}
