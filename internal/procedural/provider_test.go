package procedural

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"voxstream/internal/megatexture"
	"voxstream/internal/streaming"
)

var testChannels = []Channel{
	{ComponentType: megatexture.Float32, MetadataType: megatexture.Scalar},
	{ComponentType: megatexture.Uint8, MetadataType: megatexture.Vec4},
}

func TestFetchProducesOneChannelPerAttribute(t *testing.T) {
	p := New([3]int{4, 4, 4}, testChannels)
	tile, err := p.Fetch(context.Background(), streaming.TileKey{Level: 1, X: 1})
	require.NoError(t, err)
	require.Len(t, tile.Channels, 2)

	require.Equal(t, megatexture.Float32, tile.Channels[0].ComponentType)
	require.Equal(t, 64, tile.Channels[0].Voxels())
	require.Len(t, tile.Channels[0].Bytes, 64*4)

	require.Equal(t, megatexture.Vec4, tile.Channels[1].MetadataType)
	require.Len(t, tile.Channels[1].Bytes, 64*4)

	for i := range 64 {
		v := tile.Channels[0].DecodeFloat64(i)
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}
}

func TestFetchIsDeterministic(t *testing.T) {
	key := streaming.TileKey{Level: 2, X: 3, Y: 1, Z: 2, Keyframe: 1}
	var hashes [5][32]byte
	for i := range hashes {
		tile, err := New([3]int{8, 8, 8}, testChannels, WithSeed(99)).Fetch(context.Background(), key)
		require.NoError(t, err)
		hashes[i] = sha256.Sum256(tile.Channels[0].Bytes)
	}
	for i := 1; i < len(hashes); i++ {
		require.Equal(t, hashes[0], hashes[i])
	}
}

func TestKeyframesDiffer(t *testing.T) {
	p := New([3]int{8, 8, 8}, testChannels)
	a, err := p.Fetch(context.Background(), streaming.TileKey{Keyframe: 0})
	require.NoError(t, err)
	b, err := p.Fetch(context.Background(), streaming.TileKey{Keyframe: 3})
	require.NoError(t, err)
	require.NotEqual(t, a.Channels[0].Bytes, b.Channels[0].Bytes)
}

func TestFetchRejectsTilesOutsideLevel(t *testing.T) {
	p := New([3]int{2, 2, 2}, testChannels)
	_, err := p.Fetch(context.Background(), streaming.TileKey{Level: 1, X: 2})
	require.Error(t, err)
	_, err = p.Fetch(context.Background(), streaming.TileKey{Level: -1})
	require.Error(t, err)
}

func TestFetchHonoursCancellation(t *testing.T) {
	p := New([3]int{2, 2, 2}, testChannels, WithLatency(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Fetch(ctx, streaming.TileKey{})
	require.True(t, errors.Is(err, context.Canceled))
}

func TestValueNoiseContinuity(t *testing.T) {
	// lattice interpolation must agree on both sides of a cell boundary
	a := valueNoise3D(1-1e-9, 0.3, 0.7, 5)
	b := valueNoise3D(1+1e-9, 0.3, 0.7, 5)
	require.InDelta(t, a, b, 1e-6)
}
