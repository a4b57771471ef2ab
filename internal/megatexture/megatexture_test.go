package megatexture

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestMegatexture(t *testing.T, capacity int) *Megatexture {
	t.Helper()
	opts := Options{
		Channel:       "density",
		ComponentType: Float32,
		MetadataType:  Scalar,
		VoxelsPerTile: 8,
	}
	opts.MemoryBytes = capacity * opts.TileBytes()
	m, err := New(opts)
	require.NoError(t, err)
	return m
}

func TestNewDerivesCapacityFromMemory(t *testing.T) {
	m, err := New(Options{
		Channel:       "color",
		ComponentType: Uint8,
		MetadataType:  Vec4,
		VoxelsPerTile: 16,
		MemoryBytes:   1000,
	})
	require.NoError(t, err)
	require.Equal(t, 64, m.TileBytes())
	require.Equal(t, 15, m.Capacity())
	require.Equal(t, Uint8, m.Datatype())
	require.Equal(t, 0, m.OccupiedCount())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no voxels", Options{ComponentType: Float32, MetadataType: Scalar, MemoryBytes: 100}},
		{"no memory", Options{ComponentType: Float32, MetadataType: Scalar, VoxelsPerTile: 1}},
		{"budget below one tile", Options{ComponentType: Float32, MetadataType: Scalar, VoxelsPerTile: 8, MemoryBytes: 31}},
		{"unknown type", Options{ComponentType: ComponentType(99), MetadataType: Scalar, VoxelsPerTile: 8, MemoryBytes: 1024}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestAllocateUntilFull(t *testing.T) {
	m := newTestMegatexture(t, 3)

	for i := range 3 {
		tok, err := m.Allocate()
		require.NoError(t, err)
		require.Equal(t, i, tok.Index)
	}
	require.True(t, m.IsFull())

	_, err := m.Allocate()
	require.True(t, errors.Is(err, ErrCapacityExceeded))
	require.Equal(t, 3, m.OccupiedCount())
}

func TestFreeUnallocatedSlot(t *testing.T) {
	m := newTestMegatexture(t, 2)
	require.True(t, errors.Is(m.Free(0), ErrSlotNotAllocated))
	require.True(t, errors.Is(m.Free(5), ErrSlotNotAllocated))

	tok, err := m.Allocate()
	require.NoError(t, err)
	require.NoError(t, m.Free(tok.Index))
	require.True(t, errors.Is(m.Free(tok.Index), ErrSlotNotAllocated))
}

func TestOccupancyInvariant(t *testing.T) {
	m := newTestMegatexture(t, 7)
	rng := rand.New(rand.NewSource(42))

	var held []int
	allocs, frees := 0, 0
	for range 2000 {
		if rng.Intn(2) == 0 {
			tok, err := m.Allocate()
			if err != nil {
				require.True(t, errors.Is(err, ErrCapacityExceeded))
				require.Len(t, held, m.Capacity())
			} else {
				held = append(held, tok.Index)
				allocs++
			}
		} else if len(held) > 0 {
			i := rng.Intn(len(held))
			require.NoError(t, m.Free(held[i]))
			held = append(held[:i], held[i+1:]...)
			frees++
		}
		require.LessOrEqual(t, m.OccupiedCount(), m.Capacity())
		require.Equal(t, allocs-frees, m.OccupiedCount())
	}
}

func TestStaleTokenIsRejected(t *testing.T) {
	m := newTestMegatexture(t, 1)
	data := EncodeSamples(Float32, Scalar, []float32{1, 2, 3, 4, 5, 6, 7, 8})

	old, err := m.Allocate()
	require.NoError(t, err)
	require.NoError(t, m.Free(old.Index))

	reused, err := m.Allocate()
	require.NoError(t, err)
	require.Equal(t, old.Index, reused.Index)
	require.NotEqual(t, old.Epoch, reused.Epoch)

	require.True(t, errors.Is(m.Write(old, data), ErrStaleSlot))
	require.NoError(t, m.Write(reused, data))
	require.Equal(t, data.Bytes, m.Slot(reused.Index))
}

func TestWriteRejectsMalformedData(t *testing.T) {
	m := newTestMegatexture(t, 1)
	tok, err := m.Allocate()
	require.NoError(t, err)

	wrongType := EncodeSamples(Uint8, Scalar, []uint8{1, 2, 3, 4, 5, 6, 7, 8})
	require.True(t, errors.Is(m.Write(tok, wrongType), ErrMalformedTile))

	short := EncodeSamples(Float32, Scalar, []float32{1, 2, 3})
	require.True(t, errors.Is(m.Write(tok, short), ErrMalformedTile))
}

func TestEncodeSamples(t *testing.T) {
	d := EncodeSamples(Int8, Vec2, []float64{-300, 12.4, 127, 0})
	require.Equal(t, 2, d.Voxels())
	require.Equal(t, -128.0, d.DecodeFloat64(0))
	require.Equal(t, 12.0, d.DecodeFloat64(1))
	require.Equal(t, 127.0, d.DecodeFloat64(2))

	f := EncodeSamples(Float32, Scalar, []float32{0.25, -1.5})
	require.Equal(t, -1.5, f.DecodeFloat64(1))

	u := EncodeSamples(Uint16, Scalar, []int{70000, -4})
	require.Equal(t, 65535.0, u.DecodeFloat64(0))
	require.Equal(t, 0.0, u.DecodeFloat64(1))
}

func TestParseTypes(t *testing.T) {
	ct, err := ParseComponentType(" float32 ")
	require.NoError(t, err)
	require.Equal(t, Float32, ct)

	mt, err := ParseMetadataType("VEC3")
	require.NoError(t, err)
	require.Equal(t, 3, mt.Components())

	_, err = ParseComponentType("half")
	require.Error(t, err)
}
