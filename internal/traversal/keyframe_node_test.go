package traversal

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"voxstream/internal/megatexture"
	"voxstream/internal/streaming"
)

func TestKeyframeNodeLifecycle(t *testing.T) {
	kn := newKeyframeNode(newSpatialNode(NodeKey{Level: 2, X: 1, Y: 3, Z: 0}, nil), 4)
	require.Equal(t, Unloaded, kn.State())
	require.Equal(t, streaming.TileKey{Level: 2, X: 1, Y: 3, Z: 0, Keyframe: 4}, kn.TileKey())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, kn.request(1, cancel))
	require.Equal(t, Loading, kn.State())

	require.NoError(t, kn.dataArrived(&streaming.Tile{}))
	require.Equal(t, Received, kn.State())
	require.ErrorIs(t, ctx.Err(), context.Canceled)
	require.Nil(t, kn.Slots())

	slots := []megatexture.SlotToken{{Index: 3, Epoch: 1}}
	require.NoError(t, kn.copiedToMegatexture(slots))
	require.Equal(t, Loaded, kn.State())
	require.Equal(t, slots, kn.Slots())

	freed, err := kn.evict()
	require.NoError(t, err)
	require.Equal(t, slots, freed)
	require.Equal(t, Unloaded, kn.State())
	require.Nil(t, kn.Slots())
}

func TestKeyframeNodeFailureAndRetry(t *testing.T) {
	kn := newKeyframeNode(newSpatialNode(NodeKey{}, nil), 0)
	require.NoError(t, kn.request(1, nil))

	boom := errors.New("boom")
	require.NoError(t, kn.requestFailed(boom))
	require.Equal(t, Failed, kn.State())
	require.Equal(t, 1, kn.Failures())
	require.Equal(t, boom, kn.LastError())

	require.NoError(t, kn.retry(2, nil))
	require.Equal(t, Loading, kn.State())
	require.NoError(t, kn.requestFailed(boom))
	require.Equal(t, 2, kn.Failures())
}

func TestKeyframeNodeCancel(t *testing.T) {
	kn := newKeyframeNode(newSpatialNode(NodeKey{}, nil), 0)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, kn.request(1, cancel))
	require.NoError(t, kn.cancel())
	require.Equal(t, Unloaded, kn.State())
	require.ErrorIs(t, ctx.Err(), context.Canceled)

	require.NoError(t, kn.request(2, nil))
	require.Equal(t, Loading, kn.State())
}

func TestKeyframeNodeDiscard(t *testing.T) {
	kn := newKeyframeNode(newSpatialNode(NodeKey{}, nil), 0)
	require.NoError(t, kn.request(1, nil))
	require.NoError(t, kn.dataArrived(&streaming.Tile{}))
	require.NotNil(t, kn.tile)

	require.NoError(t, kn.discard())
	require.Equal(t, Unloaded, kn.State())
	require.Nil(t, kn.tile)
	require.Nil(t, kn.Slots())

	require.NoError(t, kn.request(2, nil))
	require.Equal(t, Loading, kn.State())
}

func TestKeyframeNodeIllegalTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*KeyframeNode)
		event func(*KeyframeNode) error
	}{
		{"dataArrived while unloaded", nil, func(k *KeyframeNode) error { return k.dataArrived(&streaming.Tile{}) }},
		{"requestFailed while unloaded", nil, func(k *KeyframeNode) error { return k.requestFailed(errors.New("x")) }},
		{"copy while unloaded", nil, func(k *KeyframeNode) error { return k.copiedToMegatexture(nil) }},
		{"evict while unloaded", nil, func(k *KeyframeNode) error { _, err := k.evict(); return err }},
		{"retry while unloaded", nil, func(k *KeyframeNode) error { return k.retry(1, nil) }},
		{"cancel while unloaded", nil, func(k *KeyframeNode) error { return k.cancel() }},
		{"discard while unloaded", nil, func(k *KeyframeNode) error { return k.discard() }},
		{
			"discard while loading",
			func(k *KeyframeNode) { _ = k.request(1, nil) },
			func(k *KeyframeNode) error { return k.discard() },
		},
		{
			"request while loading",
			func(k *KeyframeNode) { _ = k.request(1, nil) },
			func(k *KeyframeNode) error { return k.request(2, nil) },
		},
		{
			"evict while received",
			func(k *KeyframeNode) { _ = k.request(1, nil); _ = k.dataArrived(&streaming.Tile{}) },
			func(k *KeyframeNode) error { _, err := k.evict(); return err },
		},
		{
			"cancel while received",
			func(k *KeyframeNode) { _ = k.request(1, nil); _ = k.dataArrived(&streaming.Tile{}) },
			func(k *KeyframeNode) error { return k.cancel() },
		},
		{
			"request while failed",
			func(k *KeyframeNode) { _ = k.request(1, nil); _ = k.requestFailed(errors.New("x")) },
			func(k *KeyframeNode) error { return k.request(2, nil) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kn := newKeyframeNode(newSpatialNode(NodeKey{}, nil), 0)
			if tt.setup != nil {
				tt.setup(kn)
			}
			before := kn.State()
			err := tt.event(kn)
			require.ErrorIs(t, err, ErrIllegalTransition)
			require.Equal(t, before, kn.State())
		})
	}
}

func TestLoadStateString(t *testing.T) {
	require.Equal(t, "UNLOADED", Unloaded.String())
	require.Equal(t, "LOADED", Loaded.String())
	require.Equal(t, "UNKNOWN", LoadState(42).String())
}
