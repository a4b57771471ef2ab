package debugdump

import (
	"bytes"
	"context"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"voxstream/internal/geom"
	"voxstream/internal/megatexture"
	"voxstream/internal/shape"
	"voxstream/internal/streaming"
	"voxstream/internal/traversal"
)

func loadedTraversal(t *testing.T) *traversal.Traversal {
	log := logrus.New()
	log.Out = io.Discard

	provider := streaming.ProviderFunc(func(ctx context.Context, key streaming.TileKey) (*streaming.Tile, error) {
		return &streaming.Tile{Channels: []megatexture.ChannelData{
			megatexture.EncodeSamples(megatexture.Uint8, megatexture.Scalar, make([]uint8, 8)),
		}}, nil
	})
	s := streaming.NewStreamer(provider, streaming.Options{Logger: log})
	t.Cleanup(s.Close)

	tr, err := traversal.New(shape.NewBox(), s, traversal.Options{
		Dimensions:    [3]int{2, 2, 2},
		Channels:      []traversal.Channel{{Name: "density", MetadataType: megatexture.Scalar, ComponentType: megatexture.Uint8}},
		KeyframeCount: 1,
		TextureMemory: 70 * 8,
		Logger:        log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	cam := geom.NewCamera(mgl64.Vec3{-10, -10, -10}, mgl64.Vec3{1, 1, 1}, 1)
	cam.FovY = math.Pi / 2
	require.NoError(t, tr.Update(traversal.NewFrameState(cam, 1080, 1, 1), 0, false, false))
	return tr
}

func TestOccupancy(t *testing.T) {
	tr := loadedTraversal(t)
	require.Equal(t, 70, tr.Megatextures()[0].Capacity())

	img := Occupancy(tr, 3)
	// 70 slots wrap onto two rows plus the separator line
	require.Equal(t, SlotsPerRow*3, img.Bounds().Dx())
	require.Equal(t, 2*3+1, img.Bounds().Dy())

	require.Equal(t, RequiredColor, img.RGBAAt(0, 0))
	require.Equal(t, RequiredColor, img.RGBAAt(2, 2))
	require.Equal(t, FreeColor, img.RGBAAt(3, 0))
	require.Equal(t, FreeColor, img.RGBAAt(0, 3))
	require.Equal(t, separatorColor, img.RGBAAt(0, 6))
}

func TestWriteOccupancy(t *testing.T) {
	tr := loadedTraversal(t)

	var buf bytes.Buffer
	require.NoError(t, WriteOccupancy(&buf, tr, 2))
	decoded, err := bmp.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, Occupancy(tr, 2).Bounds(), decoded.Bounds())

	path := filepath.Join(t.TempDir(), "occupancy.bmp")
	require.NoError(t, WriteOccupancyFile(path, tr, 1))
}
