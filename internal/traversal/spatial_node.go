package traversal

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"voxstream/internal/geom"
)

// NodeKey is the position of a node in the subdivision grid of its level.
type NodeKey struct {
	Level, X, Y, Z int
}

func (k NodeKey) String() string {
	return fmt.Sprintf("%d/%d/%d/%d", k.Level, k.X, k.Y, k.Z)
}

// child returns the key of child i, where bit 0 of i selects +x, bit 1 +y
// and bit 2 +z.
func (k NodeKey) child(i int) NodeKey {
	return NodeKey{
		Level: k.Level + 1,
		X:     k.X*2 + i&1,
		Y:     k.Y*2 + (i>>1)&1,
		Z:     k.Z*2 + (i>>2)&1,
	}
}

func (k NodeKey) less(o NodeKey) bool {
	if k.Level != o.Level {
		return k.Level < o.Level
	}
	if k.X != o.X {
		return k.X < o.X
	}
	if k.Y != o.Y {
		return k.Y < o.Y
	}
	return k.Z < o.Z
}

// SpatialNode is one region of the hierarchy. Nodes are created lazily when
// their parent refines and are kept for the life of the traversal.
type SpatialNode struct {
	key         NodeKey
	parent      *SpatialNode
	children    [8]*SpatialNode
	hasChildren bool

	orientedBoundingBox  geom.OrientedBoundingBox
	approximateVoxelSize float64

	screenSpaceError    float64
	visibilityPlaneMask geom.PlaneMask
	visitedFrame        uint64

	keyframes map[int]*KeyframeNode
}

func newSpatialNode(key NodeKey, parent *SpatialNode) *SpatialNode {
	return &SpatialNode{
		key:                 key,
		parent:              parent,
		visibilityPlaneMask: geom.MaskIndeterminate,
		keyframes:           make(map[int]*KeyframeNode),
	}
}

func (n *SpatialNode) Key() NodeKey                                  { return n.key }
func (n *SpatialNode) Level() int                                    { return n.key.Level }
func (n *SpatialNode) Parent() *SpatialNode                          { return n.parent }
func (n *SpatialNode) OrientedBoundingBox() geom.OrientedBoundingBox { return n.orientedBoundingBox }
func (n *SpatialNode) ApproximateVoxelSize() float64                 { return n.approximateVoxelSize }
func (n *SpatialNode) ScreenSpaceError() float64                     { return n.screenSpaceError }
func (n *SpatialNode) VisibilityPlaneMask() geom.PlaneMask           { return n.visibilityPlaneMask }

// IsLeaf reports whether the node has not been refined yet.
func (n *SpatialNode) IsLeaf() bool { return !n.hasChildren }

// Children returns the created children in child index order.
func (n *SpatialNode) Children() []*SpatialNode {
	out := make([]*SpatialNode, 0, 8)
	for _, c := range n.children {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// KeyframeNode returns the node's data for keyframe, or nil.
func (n *SpatialNode) KeyframeNode(keyframe int) *KeyframeNode {
	return n.keyframes[keyframe]
}

func (n *SpatialNode) ensureKeyframeNode(keyframe int) *KeyframeNode {
	kn, ok := n.keyframes[keyframe]
	if !ok {
		kn = newKeyframeNode(n, keyframe)
		n.keyframes[keyframe] = kn
	}
	return kn
}

// UpdateBoundingVolume recomputes the bounds from the shape's current
// transform. dimensions is the voxel count of one tile per axis.
func (n *SpatialNode) UpdateBoundingVolume(shape Shape, dimensions [3]int) {
	n.orientedBoundingBox = shape.TileBoundingBox(n.key.Level, n.key.X, n.key.Y, n.key.Z)

	extents := n.orientedBoundingBox.HalfExtents()
	maximumScale := 2 * math.Max(extents.X(), math.Max(extents.Y(), extents.Z()))
	minDim := min(dimensions[0], dimensions[1], dimensions[2])
	n.approximateVoxelSize = maximumScale / float64(minDim)
}

// ComputeScreenSpaceError estimates the on-screen size of one voxel of this
// node and caches it for the current frame.
func (n *SpatialNode) ComputeScreenSpaceError(cameraPosition mgl64.Vec3, screenSpaceErrorMultiplier float64) float64 {
	distance := math.Sqrt(n.orientedBoundingBox.DistanceSquaredTo(cameraPosition))
	distance = math.Max(distance, geom.Epsilon7)
	n.screenSpaceError = screenSpaceErrorMultiplier * (n.approximateVoxelSize / distance)
	return n.screenSpaceError
}

// Visibility tests the node against the frame's culling volume, skipping the
// planes parentPlaneMask already proved the parent to be inside.
func (n *SpatialNode) Visibility(frameState *FrameState, parentPlaneMask geom.PlaneMask) geom.PlaneMask {
	n.visibilityPlaneMask = frameState.CullingVolume.VisibilityWithPlaneMask(n.orientedBoundingBox, parentPlaneMask)
	return n.visibilityPlaneMask
}

// nodeArena owns every SpatialNode of a traversal, keyed by grid position.
type nodeArena struct {
	nodes map[NodeKey]*SpatialNode
}

func newNodeArena() *nodeArena {
	return &nodeArena{nodes: make(map[NodeKey]*SpatialNode)}
}

func (a *nodeArena) get(key NodeKey) *SpatialNode {
	return a.nodes[key]
}

func (a *nodeArena) getOrCreate(key NodeKey, parent *SpatialNode) (*SpatialNode, bool) {
	if n, ok := a.nodes[key]; ok {
		return n, false
	}
	n := newSpatialNode(key, parent)
	a.nodes[key] = n
	return n, true
}

func (a *nodeArena) len() int {
	return len(a.nodes)
}
