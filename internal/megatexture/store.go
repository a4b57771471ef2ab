package megatexture

import "github.com/pkg/errors"

// Store holds the bytes of every slot of one megatexture. The GPU-backed
// implementation lives in package glstore.
type Store interface {
	// Write replaces the content of slot with data. len(data) equals the
	// tile byte size.
	Write(slot int, data []byte) error
	// Read returns the content of slot. Stores that cannot read back return nil.
	Read(slot int) []byte
	Close() error
}

// MemoryStore keeps every slot in one contiguous host buffer.
type MemoryStore struct {
	tileBytes int
	buf       []byte
}

func NewMemoryStore(capacity, tileBytes int) *MemoryStore {
	return &MemoryStore{
		tileBytes: tileBytes,
		buf:       make([]byte, capacity*tileBytes),
	}
}

func (s *MemoryStore) Write(slot int, data []byte) error {
	off := slot * s.tileBytes
	if slot < 0 || off+len(data) > len(s.buf) {
		return errors.Errorf("slot %d out of range", slot)
	}
	copy(s.buf[off:off+s.tileBytes], data)
	return nil
}

func (s *MemoryStore) Read(slot int) []byte {
	off := slot * s.tileBytes
	if slot < 0 || off+s.tileBytes > len(s.buf) {
		return nil
	}
	return s.buf[off : off+s.tileBytes]
}

func (s *MemoryStore) Close() error {
	s.buf = nil
	return nil
}
