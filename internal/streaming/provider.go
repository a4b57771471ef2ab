// Package streaming fetches voxel tiles off the frame thread.
package streaming

import (
	"context"
	"fmt"

	"voxstream/internal/megatexture"
)

// TileKey identifies one tile of one keyframe.
type TileKey struct {
	Level, X, Y, Z int
	Keyframe       int
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d/%d@%d", k.Level, k.X, k.Y, k.Z, k.Keyframe)
}

// Tile is decoded tile content, one entry per attribute channel in channel
// order.
type Tile struct {
	Channels []megatexture.ChannelData
}

// Provider fetches and decodes tiles. Fetch may block and must honour ctx.
type Provider interface {
	Fetch(ctx context.Context, key TileKey) (*Tile, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, key TileKey) (*Tile, error)

func (f ProviderFunc) Fetch(ctx context.Context, key TileKey) (*Tile, error) {
	return f(ctx, key)
}
