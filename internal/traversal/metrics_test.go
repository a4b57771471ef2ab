package traversal

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"voxstream/internal/megatexture"
)

func TestCloseDropsEngineSeries(t *testing.T) {
	occupied := testutil.CollectAndCount(megatextureOccupied)
	capacity := testutil.CollectAndCount(megatextureCapacity)
	requests := testutil.CollectAndCount(tileRequests)
	latency := testutil.CollectAndCount(updateLatency)

	opts := testOptions(2)
	opts.Channels = append(opts.Channels, Channel{Name: "color", MetadataType: megatexture.Vec4, ComponentType: megatexture.Uint8})
	tr, _ := newTestTraversal(t, inlineLoader(t, tileProvider(nil, nil)), opts)
	require.NoError(t, tr.Update(lookAt(1), 0, false, false))

	require.Equal(t, occupied+2, testutil.CollectAndCount(megatextureOccupied))
	require.Equal(t, capacity+2, testutil.CollectAndCount(megatextureCapacity))
	require.Equal(t, requests+1, testutil.CollectAndCount(tileRequests))
	require.Equal(t, latency+1, testutil.CollectAndCount(updateLatency))

	require.NoError(t, tr.Close())
	require.Equal(t, occupied, testutil.CollectAndCount(megatextureOccupied))
	require.Equal(t, capacity, testutil.CollectAndCount(megatextureCapacity))
	require.Equal(t, requests, testutil.CollectAndCount(tileRequests))
	require.Equal(t, latency, testutil.CollectAndCount(updateLatency))
}
