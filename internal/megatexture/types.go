package megatexture

import (
	"strings"

	"github.com/pkg/errors"
)

// ComponentType is the numeric type of one component of a voxel attribute.
type ComponentType int

const (
	Int8 ComponentType = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float32
	Float64
)

var componentTypeNames = map[ComponentType]string{
	Int8:    "INT8",
	Uint8:   "UINT8",
	Int16:   "INT16",
	Uint16:  "UINT16",
	Int32:   "INT32",
	Uint32:  "UINT32",
	Float32: "FLOAT32",
	Float64: "FLOAT64",
}

func (c ComponentType) String() string {
	if s, ok := componentTypeNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// Size returns the byte size of one component.
func (c ComponentType) Size() int {
	switch c {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

func ParseComponentType(s string) (ComponentType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for c, n := range componentTypeNames {
		if n == name {
			return c, nil
		}
	}
	return 0, errors.Errorf("unknown component type %q", s)
}

// MetadataType is the shape of a voxel attribute.
type MetadataType int

const (
	Scalar MetadataType = iota
	Vec2
	Vec3
	Vec4
)

var metadataTypeNames = map[MetadataType]string{
	Scalar: "SCALAR",
	Vec2:   "VEC2",
	Vec3:   "VEC3",
	Vec4:   "VEC4",
}

func (m MetadataType) String() string {
	if s, ok := metadataTypeNames[m]; ok {
		return s
	}
	return "UNKNOWN"
}

// Components returns the number of components per voxel.
func (m MetadataType) Components() int {
	switch m {
	case Scalar:
		return 1
	case Vec2:
		return 2
	case Vec3:
		return 3
	case Vec4:
		return 4
	}
	return 0
}

func ParseMetadataType(s string) (MetadataType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for m, n := range metadataTypeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, errors.Errorf("unknown metadata type %q", s)
}
