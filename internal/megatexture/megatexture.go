// Package megatexture implements fixed-capacity slot pools that hold decoded
// voxel tiles for one attribute channel.
package megatexture

import (
	"github.com/pkg/errors"
)

var (
	ErrCapacityExceeded = errors.New("megatexture capacity exceeded")
	ErrSlotNotAllocated = errors.New("megatexture slot not allocated")
	ErrStaleSlot        = errors.New("megatexture slot token is stale")
	ErrMalformedTile    = errors.New("malformed tile data")
	ErrInvalidConfig    = errors.New("invalid megatexture configuration")
)

// SlotToken names a slot together with the allocation epoch it was handed
// out in. A token stops being valid once its slot is freed.
type SlotToken struct {
	Index int
	Epoch uint64
}

// StoreFactory creates the backing store for a megatexture.
type StoreFactory func(capacity, tileBytes int) (Store, error)

// Options describes one channel's megatexture.
type Options struct {
	Channel       string
	ComponentType ComponentType
	MetadataType  MetadataType
	VoxelsPerTile int
	// MemoryBytes is the budget; capacity is MemoryBytes / tile size.
	MemoryBytes int
	// NewStore defaults to a MemoryStore.
	NewStore StoreFactory
}

// TileBytes returns the byte size of one tile for these options.
func (o Options) TileBytes() int {
	return o.VoxelsPerTile * o.MetadataType.Components() * o.ComponentType.Size()
}

// CapacityForMemory converts a byte budget to a slot count.
func CapacityForMemory(memoryBytes, tileBytes int) int {
	if tileBytes <= 0 || memoryBytes <= 0 {
		return 0
	}
	return memoryBytes / tileBytes
}

// Megatexture is a pool of equally sized slots. It is not safe for
// concurrent use.
type Megatexture struct {
	channel       string
	componentType ComponentType
	metadataType  MetadataType
	voxelsPerTile int
	tileBytes     int
	capacity      int

	occupied  int
	allocated []bool
	epochs    []uint64
	free      []int

	store Store
}

// New validates opts and allocates the backing store.
func New(opts Options) (*Megatexture, error) {
	if opts.VoxelsPerTile <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "channel %q: voxels per tile %d", opts.Channel, opts.VoxelsPerTile)
	}
	tileBytes := opts.TileBytes()
	if tileBytes <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "channel %q: unsupported type %v/%v", opts.Channel, opts.MetadataType, opts.ComponentType)
	}
	capacity := CapacityForMemory(opts.MemoryBytes, tileBytes)
	if capacity <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "channel %q: memory %d holds no %d byte tile", opts.Channel, opts.MemoryBytes, tileBytes)
	}

	newStore := opts.NewStore
	if newStore == nil {
		newStore = func(capacity, tileBytes int) (Store, error) {
			return NewMemoryStore(capacity, tileBytes), nil
		}
	}
	store, err := newStore(capacity, tileBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "channel %q: create store", opts.Channel)
	}

	m := &Megatexture{
		channel:       opts.Channel,
		componentType: opts.ComponentType,
		metadataType:  opts.MetadataType,
		voxelsPerTile: opts.VoxelsPerTile,
		tileBytes:     tileBytes,
		capacity:      capacity,
		allocated:     make([]bool, capacity),
		epochs:        make([]uint64, capacity),
		free:          make([]int, capacity),
		store:         store,
	}
	// popped from the end, so slot 0 goes first
	for i := range m.free {
		m.free[i] = capacity - 1 - i
	}
	return m, nil
}

func (m *Megatexture) Channel() string            { return m.channel }
func (m *Megatexture) Datatype() ComponentType    { return m.componentType }
func (m *Megatexture) MetadataType() MetadataType { return m.metadataType }
func (m *Megatexture) VoxelsPerTile() int         { return m.voxelsPerTile }
func (m *Megatexture) TileBytes() int             { return m.tileBytes }
func (m *Megatexture) Capacity() int              { return m.capacity }
func (m *Megatexture) OccupiedCount() int         { return m.occupied }
func (m *Megatexture) IsFull() bool               { return m.occupied == m.capacity }
func (m *Megatexture) IsAllocated(index int) bool {
	return index >= 0 && index < m.capacity && m.allocated[index]
}

// Allocate claims a free slot.
func (m *Megatexture) Allocate() (SlotToken, error) {
	if len(m.free) == 0 {
		return SlotToken{}, errors.Wrapf(ErrCapacityExceeded, "channel %q: %d/%d", m.channel, m.occupied, m.capacity)
	}
	idx := m.free[len(m.free)-1]
	m.free = m.free[:len(m.free)-1]
	m.allocated[idx] = true
	m.epochs[idx]++
	m.occupied++
	return SlotToken{Index: idx, Epoch: m.epochs[idx]}, nil
}

// Free releases a slot. Freeing a slot that is not allocated is an error.
func (m *Megatexture) Free(index int) error {
	if !m.IsAllocated(index) {
		return errors.Wrapf(ErrSlotNotAllocated, "channel %q: slot %d", m.channel, index)
	}
	m.allocated[index] = false
	m.free = append(m.free, index)
	m.occupied--
	return nil
}

// IsCurrent reports whether tok still owns its slot.
func (m *Megatexture) IsCurrent(tok SlotToken) bool {
	return m.IsAllocated(tok.Index) && m.epochs[tok.Index] == tok.Epoch
}

// Write copies data into the slot owned by tok.
func (m *Megatexture) Write(tok SlotToken, data ChannelData) error {
	if !m.IsCurrent(tok) {
		return errors.Wrapf(ErrStaleSlot, "channel %q: slot %d epoch %d", m.channel, tok.Index, tok.Epoch)
	}
	if data.ComponentType != m.componentType || data.MetadataType != m.metadataType {
		return errors.Wrapf(ErrMalformedTile, "channel %q: got %v/%v, want %v/%v",
			m.channel, data.MetadataType, data.ComponentType, m.metadataType, m.componentType)
	}
	if len(data.Bytes) != m.tileBytes {
		return errors.Wrapf(ErrMalformedTile, "channel %q: got %d bytes, want %d", m.channel, len(data.Bytes), m.tileBytes)
	}
	return m.store.Write(tok.Index, data.Bytes)
}

// Slot returns the stored bytes of an allocated slot, or nil.
func (m *Megatexture) Slot(index int) []byte {
	if !m.IsAllocated(index) {
		return nil
	}
	return m.store.Read(index)
}

// Close releases the backing store.
func (m *Megatexture) Close() error {
	return m.store.Close()
}
