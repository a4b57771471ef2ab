// Package glstore backs megatexture slots with an OpenGL texture buffer so
// shaders can sample resident tiles directly. A current GL context is
// required for every call.
package glstore

import (
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"voxstream/internal/logger"
	"voxstream/internal/megatexture"
)

// Store is a megatexture.Store living in one GL buffer object, exposed to
// shaders as an R8UI texture buffer.
type Store struct {
	tileBytes int
	capacity  int
	vbo       uint32
	tex       uint32
}

// Factory returns a megatexture.StoreFactory creating GL stores.
func Factory() megatexture.StoreFactory {
	return func(capacity, tileBytes int) (megatexture.Store, error) {
		return New(capacity, tileBytes)
	}
}

// New allocates capacity*tileBytes bytes of GPU memory.
func New(capacity, tileBytes int) (*Store, error) {
	s := &Store{tileBytes: tileBytes, capacity: capacity}
	size := capacity * tileBytes

	gl.GenBuffers(1, &s.vbo)
	gl.BindBuffer(gl.TEXTURE_BUFFER, s.vbo)
	gl.BufferData(gl.TEXTURE_BUFFER, size, nil, gl.DYNAMIC_DRAW)

	gl.GenTextures(1, &s.tex)
	gl.BindTexture(gl.TEXTURE_BUFFER, s.tex)
	gl.TexBuffer(gl.TEXTURE_BUFFER, gl.R8UI, s.vbo)

	gl.BindTexture(gl.TEXTURE_BUFFER, 0)
	gl.BindBuffer(gl.TEXTURE_BUFFER, 0)

	if err := glError("allocate"); err != nil {
		s.Close()
		return nil, err
	}
	logger.L.WithFields(logrus.Fields{
		"bytes": size,
		"slots": capacity,
	}).Debug("gl megatexture store allocated")
	return s, nil
}

// Texture returns the GL texture name shaders bind to sample the slots.
func (s *Store) Texture() uint32 {
	return s.tex
}

func (s *Store) Write(slot int, data []byte) error {
	if slot < 0 || slot >= s.capacity || len(data) > s.tileBytes {
		return errors.Errorf("slot %d out of range", slot)
	}
	if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(gl.TEXTURE_BUFFER, s.vbo)
	gl.BufferSubData(gl.TEXTURE_BUFFER, slot*s.tileBytes, len(data), gl.Ptr(data))
	gl.BindBuffer(gl.TEXTURE_BUFFER, 0)
	return glError("write")
}

// Read is not supported; slot data only lives on the GPU.
func (s *Store) Read(int) []byte {
	return nil
}

func (s *Store) Close() error {
	if s.tex != 0 {
		gl.DeleteTextures(1, &s.tex)
		s.tex = 0
	}
	if s.vbo != 0 {
		gl.DeleteBuffers(1, &s.vbo)
		s.vbo = 0
	}
	return nil
}

func glError(label string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return errors.Errorf("gl error %s: 0x%x", label, code)
	}
	return nil
}
