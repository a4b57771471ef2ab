package megatexture

import (
	"encoding/binary"
	"math"

	"golang.org/x/exp/constraints"
)

// ChannelData is the decoded content of one tile for one attribute channel,
// packed little-endian.
type ChannelData struct {
	ComponentType ComponentType
	MetadataType  MetadataType
	Bytes         []byte
}

// Voxels returns how many voxels the data holds, or -1 when the byte length
// is not a whole number of voxels.
func (d ChannelData) Voxels() int {
	stride := d.ComponentType.Size() * d.MetadataType.Components()
	if stride == 0 || len(d.Bytes)%stride != 0 {
		return -1
	}
	return len(d.Bytes) / stride
}

// EncodeSamples packs values as components of type ct. Values are clamped to
// the range of integer component types.
func EncodeSamples[T constraints.Integer | constraints.Float](ct ComponentType, mt MetadataType, values []T) ChannelData {
	size := ct.Size()
	buf := make([]byte, len(values)*size)
	for i, v := range values {
		f := float64(v)
		b := buf[i*size : (i+1)*size]
		switch ct {
		case Int8:
			b[0] = byte(int8(clamp(math.Round(f), math.MinInt8, math.MaxInt8)))
		case Uint8:
			b[0] = uint8(clamp(math.Round(f), 0, math.MaxUint8))
		case Int16:
			binary.LittleEndian.PutUint16(b, uint16(int16(clamp(math.Round(f), math.MinInt16, math.MaxInt16))))
		case Uint16:
			binary.LittleEndian.PutUint16(b, uint16(clamp(math.Round(f), 0, math.MaxUint16)))
		case Int32:
			binary.LittleEndian.PutUint32(b, uint32(int32(clamp(math.Round(f), math.MinInt32, math.MaxInt32))))
		case Uint32:
			binary.LittleEndian.PutUint32(b, uint32(clamp(math.Round(f), 0, math.MaxUint32)))
		case Float32:
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
		case Float64:
			binary.LittleEndian.PutUint64(b, math.Float64bits(f))
		}
	}
	return ChannelData{ComponentType: ct, MetadataType: mt, Bytes: buf}
}

// DecodeFloat64 unpacks component i of the data as a float64.
func (d ChannelData) DecodeFloat64(i int) float64 {
	size := d.ComponentType.Size()
	b := d.Bytes[i*size : (i+1)*size]
	switch d.ComponentType {
	case Int8:
		return float64(int8(b[0]))
	case Uint8:
		return float64(b[0])
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(b))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}
