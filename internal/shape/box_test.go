package shape

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestBoxDefault(t *testing.T) {
	b := NewBox()
	obb := b.OrientedBoundingBox()
	require.True(t, obb.Center.ApproxEqual(mgl64.Vec3{0, 0, 0}))
	require.True(t, obb.HalfExtents().ApproxEqual(mgl64.Vec3{1, 1, 1}))
}

func TestBoxTranslation(t *testing.T) {
	b := NewBox()
	translation := mgl64.Vec3{1, 1, 1}
	require.NoError(t, b.Update(mgl64.Translate3D(1, 1, 1), DefaultMinBounds, DefaultMaxBounds))
	require.True(t, b.OrientedBoundingBox().Center.ApproxEqual(translation))
}

func TestBoxTilesPartitionParent(t *testing.T) {
	b := NewBox()
	model := mgl64.Translate3D(5, -2, 1).Mul4(mgl64.HomogRotate3DZ(0.4)).Mul4(mgl64.Scale3D(2, 3, 4))
	require.NoError(t, b.Update(model, mgl64.Vec3{-1, -0.5, 0}, mgl64.Vec3{1, 0.5, 1}))

	parent := b.TileBoundingBox(1, 1, 0, 1)
	for i := range 8 {
		child := b.TileBoundingBox(2, 2+i&1, (i>>1)&1, 2+(i>>2)&1)
		for _, c := range child.Corners() {
			require.True(t, parent.Contains(c, 1e-9), "child %d corner %v escapes parent", i, c)
		}
	}
}

func TestBoxRejectsInvalidBounds(t *testing.T) {
	b := NewBox()
	err := b.Update(mgl64.Ident4(), mgl64.Vec3{0.5, 0, 0}, mgl64.Vec3{0, 1, 1})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidBounds))

	err = b.Update(mgl64.Ident4(), mgl64.Vec3{-2, 0, 0}, mgl64.Vec3{0, 1, 1})
	require.True(t, errors.Is(err, ErrInvalidBounds))

	// the previous transform is kept
	require.True(t, b.OrientedBoundingBox().Center.ApproxEqual(mgl64.Vec3{0, 0, 0}))
}
