// Package traversal decides every frame which regions of a hierarchical voxel
// dataset to render at which level of detail, streams their tiles in and
// keeps them resident in fixed-capacity megatextures.
package traversal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"voxstream/internal/geom"
	"voxstream/internal/logger"
	"voxstream/internal/megatexture"
	"voxstream/internal/profiling"
	"voxstream/internal/streaming"
)

var (
	ErrInvalidConfig     = errors.New("invalid traversal configuration")
	ErrCapacityExhausted = errors.New("megatexture capacity exhausted")
	ErrClosed            = errors.New("traversal closed")
)

// Shape maps normalized tile coordinates to world-space bounds.
type Shape interface {
	OrientedBoundingBox() geom.OrientedBoundingBox
	TileBoundingBox(level, x, y, z int) geom.OrientedBoundingBox
}

// Loader runs tile fetches off the frame thread. *streaming.Streamer
// implements it.
type Loader interface {
	Submit(job streaming.Job) bool
	Results() <-chan streaming.Result
}

// Channel is one voxel attribute, stored in its own megatexture.
type Channel struct {
	Name          string
	MetadataType  megatexture.MetadataType
	ComponentType megatexture.ComponentType
}

// Tuning holds the knobs that may change between frames.
type Tuning struct {
	// MaximumScreenSpaceError is the SSE above which a node refines.
	MaximumScreenSpaceError float64
	MaxRequestsPerFrame     int
	// MaxRetries bounds how often a FAILED node is requested again. Zero
	// takes the default; a negative value disables retries.
	MaxRetries int
}

var DefaultTuning = Tuning{
	MaximumScreenSpaceError: 4,
	MaxRequestsPerFrame:     32,
	MaxRetries:              3,
}

func (tu Tuning) withDefaults() Tuning {
	if tu.MaximumScreenSpaceError <= 0 {
		tu.MaximumScreenSpaceError = DefaultTuning.MaximumScreenSpaceError
	}
	if tu.MaxRequestsPerFrame <= 0 {
		tu.MaxRequestsPerFrame = DefaultTuning.MaxRequestsPerFrame
	}
	if tu.MaxRetries == 0 {
		tu.MaxRetries = DefaultTuning.MaxRetries
	}
	return tu
}

// Options configures a Traversal.
type Options struct {
	// Dimensions is the voxel count of one tile per axis.
	Dimensions    [3]int
	Channels      []Channel
	KeyframeCount int
	// TextureMemory is the byte budget of each channel's megatexture.
	TextureMemory int
	// MaximumLevel is the deepest level refined to; 0 keeps only the root.
	MaximumLevel int
	Tuning       Tuning
	NewStore     megatexture.StoreFactory
	Logger       logrus.FieldLogger
	Profiler     *profiling.Profiler
}

func (o Options) validate() error {
	for axis, d := range o.Dimensions {
		if d <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "dimension %d is %d", axis, d)
		}
	}
	if len(o.Channels) == 0 {
		return errors.Wrap(ErrInvalidConfig, "no channels")
	}
	if o.KeyframeCount <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "keyframe count %d", o.KeyframeCount)
	}
	if o.TextureMemory <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "texture memory %d", o.TextureMemory)
	}
	if o.MaximumLevel < 0 || o.MaximumLevel > 30 {
		return errors.Wrapf(ErrInvalidConfig, "maximum level %d", o.MaximumLevel)
	}
	return nil
}

// FrameStats counts what the last Update did.
type FrameStats struct {
	FrameNumber uint64
	Visited     int
	Culled      int
	Candidates  int
	Refined     int
	Requested   int
	Received    int
	Failed      int
	Stale       int
	Cancelled   int
	Loaded      int
	Evicted     int
	Discarded   int
	Waiting     int
}

// Traversal owns the node hierarchy, the megatextures and the resident set.
// It is not safe for concurrent use; call Update from one goroutine.
type Traversal struct {
	id       string
	shape    Shape
	loader   Loader
	opts     Options
	tuning   Tuning
	log      logrus.FieldLogger
	profiler *profiling.Profiler

	arena        *nodeArena
	root         *SpatialNode
	megatextures []*megatexture.Megatexture

	// resident is ordered by ascending eviction priority.
	resident []*KeyframeNode
	received []*KeyframeNode
	inFlight map[*KeyframeNode]struct{}

	ctx        context.Context
	cancel     context.CancelFunc
	closed     bool
	frame      uint64
	generation uint64

	keyframeLow    int
	keyframeHigh   int
	keyframeWeight float64

	candidates []*SpatialNode
	refined    []*SpatialNode
	required   map[*KeyframeNode]struct{}
	wanted     map[*KeyframeNode]struct{}
	renderList []RenderCandidate

	stats       FrameStats
	transitions uint64
}

// New validates opts and creates one megatexture per channel.
func New(shape Shape, loader Loader, opts Options) (*Traversal, error) {
	if shape == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "no shape")
	}
	if loader == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "no loader")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logger.L
	}
	if opts.Profiler == nil {
		opts.Profiler = profiling.New()
	}

	id := uuid.NewString()
	voxels := opts.Dimensions[0] * opts.Dimensions[1] * opts.Dimensions[2]

	t := &Traversal{
		id:       id,
		shape:    shape,
		loader:   loader,
		opts:     opts,
		tuning:   opts.Tuning.withDefaults(),
		log:      opts.Logger.WithField("engine", id),
		profiler: opts.Profiler,
		arena:    newNodeArena(),
		inFlight: make(map[*KeyframeNode]struct{}),
		required: make(map[*KeyframeNode]struct{}),
		wanted:   make(map[*KeyframeNode]struct{}),
	}

	for _, ch := range opts.Channels {
		mt, err := megatexture.New(megatexture.Options{
			Channel:       ch.Name,
			ComponentType: ch.ComponentType,
			MetadataType:  ch.MetadataType,
			VoxelsPerTile: voxels,
			MemoryBytes:   opts.TextureMemory,
			NewStore:      opts.NewStore,
		})
		if err != nil {
			t.closeMegatextures()
			uninstrument(id)
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		t.megatextures = append(t.megatextures, mt)
		instrumentOccupancy(id, ch.Name, 0, mt.Capacity())
	}

	t.root, _ = t.arena.getOrCreate(NodeKey{}, nil)
	t.root.UpdateBoundingVolume(shape, opts.Dimensions)
	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.log.WithFields(logrus.Fields{
		"channels":  len(t.megatextures),
		"capacity":  t.megatextures[0].Capacity(),
		"keyframes": opts.KeyframeCount,
	}).Info("traversal created")
	return t, nil
}

// Update runs one frame: bounds, visibility and LOD selection, requests,
// completions, megatexture uploads and the render list. With pauseUpdate set
// nothing changes.
func (t *Traversal) Update(frameState *FrameState, keyframeLocation float64, recomputeBoundingVolumes, pauseUpdate bool) error {
	if pauseUpdate {
		return nil
	}
	if t.closed {
		return ErrClosed
	}
	if frameState == nil {
		return errors.New("nil frame state")
	}
	start := time.Now()
	defer instrumentUpdateLatency(t.id, start)
	defer t.profiler.Track("traversal.Update")()

	t.frame++
	t.stats = FrameStats{FrameNumber: frameState.FrameNumber}

	if recomputeBoundingVolumes {
		stop := t.profiler.Track("traversal.bounds")
		t.recomputeBoundingVolumes(t.root)
		stop()
	}

	t.selectKeyframes(keyframeLocation)

	stop := t.profiler.Track("traversal.visit")
	t.candidates = t.candidates[:0]
	t.refined = t.refined[:0]
	t.visit(t.root, frameState, geom.MaskIndeterminate)
	t.markWanted()
	stop()

	stop = t.profiler.Track("traversal.load")
	t.cancelUnwanted()
	t.requestTiles()
	t.drainResults()
	err := t.copyReceived()
	stop()

	t.buildRenderList()
	t.instrument()

	if t.stats.Requested > 0 || t.stats.Loaded > 0 || t.stats.Evicted > 0 {
		t.log.WithFields(logrus.Fields{
			"frame":      frameState.FrameNumber,
			"candidates": t.stats.Candidates,
			"requested":  t.stats.Requested,
			"loaded":     t.stats.Loaded,
			"evicted":    t.stats.Evicted,
		}).Debug("traversal update")
	}
	return err
}

// SetTuning replaces the per-frame knobs. Zero fields take their defaults.
func (t *Traversal) SetTuning(tu Tuning) {
	t.tuning = tu.withDefaults()
}

func (t *Traversal) Tuning() Tuning { return t.tuning }

func (t *Traversal) recomputeBoundingVolumes(n *SpatialNode) {
	n.UpdateBoundingVolume(t.shape, t.opts.Dimensions)
	for _, c := range n.children {
		if c != nil {
			t.recomputeBoundingVolumes(c)
		}
	}
}

// selectKeyframes brackets the fractional keyframe location.
func (t *Traversal) selectKeyframes(location float64) {
	last := float64(t.opts.KeyframeCount - 1)
	if math.IsNaN(location) || location < 0 {
		location = 0
	}
	location = math.Min(location, last)

	t.keyframeLow = int(math.Floor(location))
	t.keyframeHigh = int(math.Ceil(location))
	t.keyframeWeight = location - float64(t.keyframeLow)
}

func (t *Traversal) visit(n *SpatialNode, frameState *FrameState, parentMask geom.PlaneMask) {
	t.stats.Visited++
	mask := n.Visibility(frameState, parentMask)
	if mask.IsOutside() {
		t.stats.Culled++
		return
	}
	n.visitedFrame = t.frame

	sse := n.ComputeScreenSpaceError(frameState.CameraPosition, frameState.ScreenSpaceErrorMultiplier)
	if sse > t.tuning.MaximumScreenSpaceError && n.key.Level < t.opts.MaximumLevel {
		t.refine(n)
		t.refined = append(t.refined, n)
		t.stats.Refined++
		for _, c := range n.children {
			t.visit(c, frameState, mask)
		}
		return
	}
	t.candidates = append(t.candidates, n)
	t.stats.Candidates++
}

func (t *Traversal) refine(n *SpatialNode) {
	if n.hasChildren {
		return
	}
	for i := range n.children {
		child, created := t.arena.getOrCreate(n.key.child(i), n)
		if created {
			child.UpdateBoundingVolume(t.shape, t.opts.Dimensions)
		}
		n.children[i] = child
	}
	n.hasChildren = true
}

func (t *Traversal) isVisible(n *SpatialNode) bool {
	return n.visitedFrame == t.frame
}

func (t *Traversal) inBracket(keyframe int) bool {
	return keyframe == t.keyframeLow || keyframe == t.keyframeHigh
}

func (t *Traversal) bracket() []int {
	if t.keyframeLow == t.keyframeHigh {
		return []int{t.keyframeLow}
	}
	return []int{t.keyframeLow, t.keyframeHigh}
}

// ID identifies this engine in logs and metrics.
func (t *Traversal) ID() string { return t.id }

func (t *Traversal) RootNode() *SpatialNode { return t.root }

// Node returns a created node, or nil.
func (t *Traversal) Node(key NodeKey) *SpatialNode { return t.arena.get(key) }

func (t *Traversal) NodeCount() int { return t.arena.len() }

func (t *Traversal) KeyframeCount() int { return t.opts.KeyframeCount }

// Megatextures returns one megatexture per channel in channel order.
func (t *Traversal) Megatextures() []*megatexture.Megatexture {
	out := make([]*megatexture.Megatexture, len(t.megatextures))
	copy(out, t.megatextures)
	return out
}

// ResidentKeyframeNodes returns the LOADED nodes, lowest eviction priority
// first.
func (t *Traversal) ResidentKeyframeNodes() []*KeyframeNode {
	out := make([]*KeyframeNode, len(t.resident))
	copy(out, t.resident)
	return out
}

// KeyframeBracket returns the keyframes of the last Update and the weight of
// the upper one.
func (t *Traversal) KeyframeBracket() (low, high int, weight float64) {
	return t.keyframeLow, t.keyframeHigh, t.keyframeWeight
}

// IsRequired reports whether the last Update needed kn for a render
// candidate.
func (t *Traversal) IsRequired(kn *KeyframeNode) bool {
	_, ok := t.required[kn]
	return ok
}

// Evictable reports whether kn holds slots another node may claim.
func (t *Traversal) Evictable(kn *KeyframeNode) bool {
	return kn.state == Loaded && !t.IsRequired(kn)
}

func (t *Traversal) Stats() FrameStats { return t.stats }

// Transitions counts load state changes since creation.
func (t *Traversal) Transitions() uint64 { return t.transitions }

func (t *Traversal) Profiler() *profiling.Profiler { return t.profiler }

// Close cancels in-flight requests and releases the megatextures. The loader
// is not closed.
func (t *Traversal) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	for kn := range t.inFlight {
		if err := kn.cancel(); err == nil {
			t.transitions++
		}
		delete(t.inFlight, kn)
	}
	t.cancel()
	uninstrument(t.id)
	return t.closeMegatextures()
}

func (t *Traversal) closeMegatextures() error {
	var first error
	for _, mt := range t.megatextures {
		if err := mt.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close megatexture %q", mt.Channel())
		}
	}
	return first
}

func (t *Traversal) instrument() {
	for _, mt := range t.megatextures {
		instrumentOccupancy(t.id, mt.Channel(), mt.OccupiedCount(), mt.Capacity())
	}
}
