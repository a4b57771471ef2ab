// Package config holds the dataset descriptor and the runtime streaming
// settings.
package config

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"

	"voxstream/internal/megatexture"
	"voxstream/internal/procedural"
	"voxstream/internal/shape"
	"voxstream/internal/traversal"
)

var ErrInvalidDataset = errors.New("invalid dataset descriptor")

// ChannelDescriptor is one attribute of the dataset.
type ChannelDescriptor struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	ComponentType string `json:"componentType"`
}

// Dataset describes a voxel dataset: its tiling, its attributes and where it
// sits in the world.
type Dataset struct {
	Dimensions [3]int              `json:"dimensions"`
	Channels   []ChannelDescriptor `json:"channels"`
	Keyframes  int                 `json:"keyframes"`
	// TextureMemory is the byte budget of each channel's megatexture.
	TextureMemory int `json:"textureMemory"`
	MaximumLevel  int `json:"maximumLevel"`

	MinBounds   *[3]float64 `json:"minBounds,omitempty"`
	MaxBounds   *[3]float64 `json:"maxBounds,omitempty"`
	Translation [3]float64  `json:"translation"`
	Scale       *[3]float64 `json:"scale,omitempty"`
}

// DefaultDataset is a small single-channel dataset used when no descriptor
// is given.
func DefaultDataset() *Dataset {
	return &Dataset{
		Dimensions: [3]int{16, 16, 16},
		Channels: []ChannelDescriptor{
			{Name: "density", Type: "SCALAR", ComponentType: "FLOAT32"},
		},
		Keyframes:     4,
		TextureMemory: 16 << 20,
		MaximumLevel:  4,
	}
}

// LoadDataset reads and validates a JSON descriptor.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read dataset %q", path)
	}
	return ParseDataset(data)
}

// ParseDataset decodes and validates a JSON descriptor.
func ParseDataset(data []byte) (*Dataset, error) {
	var d Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, "decode dataset")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Dataset) Validate() error {
	for axis, n := range d.Dimensions {
		if n <= 0 {
			return errors.Wrapf(ErrInvalidDataset, "dimension %d is %d", axis, n)
		}
	}
	if len(d.Channels) == 0 {
		return errors.Wrap(ErrInvalidDataset, "no channels")
	}
	seen := make(map[string]bool, len(d.Channels))
	for i, ch := range d.Channels {
		if ch.Name == "" {
			return errors.Wrapf(ErrInvalidDataset, "channel %d has no name", i)
		}
		if seen[ch.Name] {
			return errors.Wrapf(ErrInvalidDataset, "duplicate channel %q", ch.Name)
		}
		seen[ch.Name] = true
		if _, err := megatexture.ParseMetadataType(ch.Type); err != nil {
			return fmt.Errorf("%w: channel %q: %w", ErrInvalidDataset, ch.Name, err)
		}
		if _, err := megatexture.ParseComponentType(ch.ComponentType); err != nil {
			return fmt.Errorf("%w: channel %q: %w", ErrInvalidDataset, ch.Name, err)
		}
	}
	if d.Keyframes <= 0 {
		return errors.Wrapf(ErrInvalidDataset, "keyframes %d", d.Keyframes)
	}
	if d.TextureMemory <= 0 {
		return errors.Wrapf(ErrInvalidDataset, "texture memory %d", d.TextureMemory)
	}
	if d.MaximumLevel < 0 || d.MaximumLevel > 30 {
		return errors.Wrapf(ErrInvalidDataset, "maximum level %d", d.MaximumLevel)
	}
	if d.Scale != nil {
		for axis, s := range d.Scale {
			if s == 0 {
				return errors.Wrapf(ErrInvalidDataset, "scale %d is zero", axis)
			}
		}
	}
	if _, err := d.NewShape(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}
	return nil
}

// TraversalChannels converts the channel descriptors.
func (d *Dataset) TraversalChannels() ([]traversal.Channel, error) {
	out := make([]traversal.Channel, 0, len(d.Channels))
	for _, ch := range d.Channels {
		mt, err := megatexture.ParseMetadataType(ch.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "channel %q", ch.Name)
		}
		ct, err := megatexture.ParseComponentType(ch.ComponentType)
		if err != nil {
			return nil, errors.Wrapf(err, "channel %q", ch.Name)
		}
		out = append(out, traversal.Channel{Name: ch.Name, MetadataType: mt, ComponentType: ct})
	}
	return out, nil
}

// ProceduralChannels returns the channel layout for a procedural provider.
func (d *Dataset) ProceduralChannels() ([]procedural.Channel, error) {
	chans, err := d.TraversalChannels()
	if err != nil {
		return nil, err
	}
	out := make([]procedural.Channel, len(chans))
	for i, ch := range chans {
		out[i] = procedural.Channel{ComponentType: ch.ComponentType, MetadataType: ch.MetadataType}
	}
	return out, nil
}

// ModelMatrix places the dataset's unit box in the world.
func (d *Dataset) ModelMatrix() mgl64.Mat4 {
	scale := mgl64.Vec3{1, 1, 1}
	if d.Scale != nil {
		scale = mgl64.Vec3(*d.Scale)
	}
	t := d.Translation
	return mgl64.Translate3D(t[0], t[1], t[2]).Mul4(mgl64.Scale3D(scale[0], scale[1], scale[2]))
}

// NewShape returns the box shape of the dataset.
func (d *Dataset) NewShape() (*shape.Box, error) {
	minBounds, maxBounds := shape.DefaultMinBounds, shape.DefaultMaxBounds
	if d.MinBounds != nil {
		minBounds = mgl64.Vec3(*d.MinBounds)
	}
	if d.MaxBounds != nil {
		maxBounds = mgl64.Vec3(*d.MaxBounds)
	}
	box := shape.NewBox()
	if err := box.Update(d.ModelMatrix(), minBounds, maxBounds); err != nil {
		return nil, err
	}
	return box, nil
}

// TraversalOptions builds the traversal configuration of the dataset.
func (d *Dataset) TraversalOptions() (traversal.Options, error) {
	chans, err := d.TraversalChannels()
	if err != nil {
		return traversal.Options{}, err
	}
	return traversal.Options{
		Dimensions:    d.Dimensions,
		Channels:      chans,
		KeyframeCount: d.Keyframes,
		TextureMemory: d.TextureMemory,
		MaximumLevel:  d.MaximumLevel,
		Tuning:        Tuning(),
	}, nil
}
