// Package procedural generates voxel tiles from noise so the engine can be
// driven without a real dataset.
package procedural

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"voxstream/internal/megatexture"
	"voxstream/internal/streaming"
)

// Channel describes one generated attribute.
type Channel struct {
	ComponentType megatexture.ComponentType
	MetadataType  megatexture.MetadataType
}

// Provider is a streaming.Provider producing noise density. Each keyframe
// shifts the field along a time axis.
type Provider struct {
	dimensions  [3]int
	channels    []Channel
	seed        int64
	scale       float64
	timeStep    float64
	octaves     int
	persistence float64
	lacunarity  float64
	latency     time.Duration
}

// Option tweaks a Provider.
type Option func(*Provider)

func WithSeed(seed int64) Option               { return func(p *Provider) { p.seed = seed } }
func WithScale(scale float64) Option           { return func(p *Provider) { p.scale = scale } }
func WithLatency(latency time.Duration) Option { return func(p *Provider) { p.latency = latency } }

// New returns a provider for tiles of the given voxel dimensions.
func New(dimensions [3]int, channels []Channel, opts ...Option) *Provider {
	p := &Provider{
		dimensions:  dimensions,
		channels:    channels,
		seed:        1,
		scale:       8,
		timeStep:    0.25,
		octaves:     4,
		persistence: 0.5,
		lacunarity:  2.0,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sample evaluates the field at normalized dataset coordinates for one
// component of one keyframe. The result is in [0, 1].
func (p *Provider) Sample(u, v, w float64, keyframe, component int) float64 {
	return octaveNoise3D(
		u*p.scale,
		v*p.scale,
		w*p.scale+float64(keyframe)*p.timeStep,
		p.seed+int64(component)*7919,
		p.octaves, p.persistence, p.lacunarity,
	)
}

// Fetch implements streaming.Provider.
func (p *Provider) Fetch(ctx context.Context, key streaming.TileKey) (*streaming.Tile, error) {
	if key.Level < 0 || key.Level > 30 {
		return nil, errors.Errorf("level %d out of range", key.Level)
	}
	n := 1 << uint(key.Level)
	if key.X < 0 || key.Y < 0 || key.Z < 0 || key.X >= n || key.Y >= n || key.Z >= n {
		return nil, errors.Errorf("tile %v outside level %d", key, key.Level)
	}

	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	dx, dy, dz := p.dimensions[0], p.dimensions[1], p.dimensions[2]
	voxels := dx * dy * dz
	tileSize := 1 / float64(n)

	tile := &streaming.Tile{Channels: make([]megatexture.ChannelData, len(p.channels))}
	for ci, ch := range p.channels {
		comps := ch.MetadataType.Components()
		values := make([]float64, 0, voxels*comps)
		for k := range dz {
			w := (float64(key.Z) + (float64(k)+0.5)/float64(dz)) * tileSize
			for j := range dy {
				v := (float64(key.Y) + (float64(j)+0.5)/float64(dy)) * tileSize
				for i := range dx {
					u := (float64(key.X) + (float64(i)+0.5)/float64(dx)) * tileSize
					for c := range comps {
						values = append(values, scaleSample(p.Sample(u, v, w, key.Keyframe, ci*4+c), ch.ComponentType))
					}
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tile.Channels[ci] = megatexture.EncodeSamples(ch.ComponentType, ch.MetadataType, values)
	}
	return tile, nil
}

// scaleSample maps a [0, 1] sample onto the useful range of ct.
func scaleSample(s float64, ct megatexture.ComponentType) float64 {
	switch ct {
	case megatexture.Uint8:
		return s * 255
	case megatexture.Int8:
		return s*255 - 128
	case megatexture.Uint16, megatexture.Uint32:
		return s * 65535
	case megatexture.Int16, megatexture.Int32:
		return s*65535 - 32768
	}
	return s
}
