package traversal

import (
	"context"

	"github.com/pkg/errors"

	"voxstream/internal/megatexture"
	"voxstream/internal/streaming"
)

// ErrIllegalTransition is returned when a KeyframeNode is asked to leave a
// state through an edge the load state machine does not have.
var ErrIllegalTransition = errors.New("illegal load state transition")

// LoadState is the load progress of one KeyframeNode.
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Received
	Loaded
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "UNLOADED"
	case Loading:
		return "LOADING"
	case Received:
		return "RECEIVED"
	case Loaded:
		return "LOADED"
	case Failed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// KeyframeNode is the data of one SpatialNode at one keyframe.
//
//	UNLOADED --request--> LOADING --dataArrived--> RECEIVED --copiedToMegatexture--> LOADED
//	LOADING --requestFailed--> FAILED --retry--> LOADING
//	LOADING --cancel--> UNLOADED
//	RECEIVED --discard--> UNLOADED
//	LOADED --evict--> UNLOADED
//
// Slots are held if and only if the state is LOADED.
type KeyframeNode struct {
	spatial  *SpatialNode
	keyframe int
	state    LoadState

	slots []megatexture.SlotToken
	tile  *streaming.Tile

	generation uint64
	cancelFn   context.CancelFunc
	failures   int
	lastErr    error

	priority      float64
	lastUsedFrame uint64
}

func newKeyframeNode(spatial *SpatialNode, keyframe int) *KeyframeNode {
	return &KeyframeNode{spatial: spatial, keyframe: keyframe}
}

func (k *KeyframeNode) SpatialNode() *SpatialNode { return k.spatial }
func (k *KeyframeNode) Keyframe() int             { return k.keyframe }
func (k *KeyframeNode) State() LoadState          { return k.state }
func (k *KeyframeNode) Failures() int             { return k.failures }
func (k *KeyframeNode) LastError() error          { return k.lastErr }
func (k *KeyframeNode) Priority() float64         { return k.priority }
func (k *KeyframeNode) LastUsedFrame() uint64     { return k.lastUsedFrame }

// Slots returns the megatexture slots, one per channel, while LOADED.
func (k *KeyframeNode) Slots() []megatexture.SlotToken {
	if k.state != Loaded {
		return nil
	}
	out := make([]megatexture.SlotToken, len(k.slots))
	copy(out, k.slots)
	return out
}

// TileKey is the provider identity of this node.
func (k *KeyframeNode) TileKey() streaming.TileKey {
	key := k.spatial.key
	return streaming.TileKey{Level: key.Level, X: key.X, Y: key.Y, Z: key.Z, Keyframe: k.keyframe}
}

func (k *KeyframeNode) illegal(event string) error {
	return errors.Wrapf(ErrIllegalTransition, "%s from %v (%v@%d)", event, k.state, k.spatial.key, k.keyframe)
}

func (k *KeyframeNode) request(generation uint64, cancel context.CancelFunc) error {
	if k.state != Unloaded {
		return k.illegal("request")
	}
	k.state = Loading
	k.generation = generation
	k.cancelFn = cancel
	return nil
}

func (k *KeyframeNode) retry(generation uint64, cancel context.CancelFunc) error {
	if k.state != Failed {
		return k.illegal("retry")
	}
	k.state = Loading
	k.generation = generation
	k.cancelFn = cancel
	return nil
}

func (k *KeyframeNode) dataArrived(tile *streaming.Tile) error {
	if k.state != Loading {
		return k.illegal("dataArrived")
	}
	k.state = Received
	k.tile = tile
	k.releaseRequest()
	return nil
}

func (k *KeyframeNode) requestFailed(err error) error {
	if k.state != Loading {
		return k.illegal("requestFailed")
	}
	k.state = Failed
	k.failures++
	k.lastErr = err
	k.releaseRequest()
	return nil
}

// cancel abandons an in-flight request. The eventual completion carries an
// outdated generation and is dropped.
func (k *KeyframeNode) cancel() error {
	if k.state != Loading {
		return k.illegal("cancel")
	}
	k.state = Unloaded
	k.releaseRequest()
	return nil
}

func (k *KeyframeNode) copiedToMegatexture(slots []megatexture.SlotToken) error {
	if k.state != Received {
		return k.illegal("copiedToMegatexture")
	}
	k.state = Loaded
	k.slots = slots
	k.tile = nil
	return nil
}

// discard drops a tile that found no slot.
func (k *KeyframeNode) discard() error {
	if k.state != Received {
		return k.illegal("discard")
	}
	k.state = Unloaded
	k.tile = nil
	return nil
}

// evict returns the slots the node held.
func (k *KeyframeNode) evict() ([]megatexture.SlotToken, error) {
	if k.state != Loaded {
		return nil, k.illegal("evict")
	}
	slots := k.slots
	k.slots = nil
	k.state = Unloaded
	return slots, nil
}

func (k *KeyframeNode) releaseRequest() {
	if k.cancelFn != nil {
		k.cancelFn()
		k.cancelFn = nil
	}
}
