package traversal

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"voxstream/internal/megatexture"
	"voxstream/internal/streaming"
)

// markWanted collects the keyframe nodes of this frame: required ones for the
// render candidates, optional ones for refined ancestors.
func (t *Traversal) markWanted() {
	clear(t.required)
	clear(t.wanted)

	sort.SliceStable(t.candidates, func(i, j int) bool {
		a, b := t.candidates[i], t.candidates[j]
		if a.screenSpaceError != b.screenSpaceError {
			return a.screenSpaceError > b.screenSpaceError
		}
		return a.key.less(b.key)
	})
	sort.SliceStable(t.refined, func(i, j int) bool {
		return t.refined[i].key.less(t.refined[j].key)
	})

	for _, n := range t.candidates {
		for _, kf := range t.bracket() {
			kn := n.ensureKeyframeNode(kf)
			t.required[kn] = struct{}{}
			t.wanted[kn] = struct{}{}
		}
	}
	for _, n := range t.refined {
		for _, kf := range t.bracket() {
			t.wanted[n.ensureKeyframeNode(kf)] = struct{}{}
		}
	}
}

// cancelUnwanted abandons requests nothing needs any more.
func (t *Traversal) cancelUnwanted() {
	for kn := range t.inFlight {
		if _, ok := t.wanted[kn]; ok {
			continue
		}
		if kn.state == Loading {
			if err := kn.cancel(); err != nil {
				t.log.WithError(err).Error("cancel request")
				continue
			}
			t.transitions++
			t.stats.Cancelled++
			instrumentCancellation(t.id)
			t.log.WithFields(logrus.Fields{
				"node":     kn.spatial.key,
				"keyframe": kn.keyframe,
			}).Debug("request cancelled")
		}
		delete(t.inFlight, kn)
	}
}

// requestTiles submits loads in priority order: required nodes by
// descending SSE, then optional ancestors from the root down while free
// slots remain.
func (t *Traversal) requestTiles() {
	budget := t.tuning.MaxRequestsPerFrame

	try := func(kn *KeyframeNode) bool {
		if budget <= 0 {
			return false
		}
		switch {
		case kn.state == Unloaded:
		case kn.state == Failed && kn.failures <= t.tuning.MaxRetries:
		default:
			return true
		}
		if t.submit(kn) {
			budget--
		}
		return true
	}

	for _, n := range t.candidates {
		for _, kf := range t.bracket() {
			if !try(n.keyframes[kf]) {
				return
			}
		}
	}
	// optional nodes never evict, so a full megatexture has no room for them
	if t.full() {
		return
	}
	for _, n := range t.refined {
		for _, kf := range t.bracket() {
			if !try(n.keyframes[kf]) {
				return
			}
		}
	}
}

func (t *Traversal) submit(kn *KeyframeNode) bool {
	t.generation++
	gen := t.generation
	ctx, cancel := context.WithCancel(t.ctx)

	retry := kn.state == Failed
	if !t.loader.Submit(streaming.Job{Key: kn.TileKey(), Generation: gen, Ctx: ctx}) {
		cancel()
		return false
	}

	var err error
	if retry {
		err = kn.retry(gen, cancel)
	} else {
		err = kn.request(gen, cancel)
	}
	if err != nil {
		cancel()
		t.log.WithError(err).Error("request tile")
		return false
	}
	t.transitions++
	t.inFlight[kn] = struct{}{}
	t.stats.Requested++
	instrumentRequest(t.id)
	t.log.WithFields(logrus.Fields{
		"node":     kn.spatial.key,
		"keyframe": kn.keyframe,
		"retry":    retry,
	}).Debug("tile requested")
	return true
}

// drainResults handles the completions already delivered without waiting
// for more.
func (t *Traversal) drainResults() {
	results := t.loader.Results()
	for n := len(results); n > 0; n-- {
		select {
		case res := <-results:
			t.handleResult(res)
		default:
			return
		}
	}
}

func (t *Traversal) handleResult(res streaming.Result) {
	var kn *KeyframeNode
	if n := t.arena.get(NodeKey{Level: res.Key.Level, X: res.Key.X, Y: res.Key.Y, Z: res.Key.Z}); n != nil {
		kn = n.keyframes[res.Key.Keyframe]
	}
	if kn == nil || kn.state != Loading || kn.generation != res.Generation {
		t.stats.Stale++
		instrumentStale(t.id)
		return
	}
	delete(t.inFlight, kn)

	fields := logrus.Fields{"node": kn.spatial.key, "keyframe": kn.keyframe}
	if res.Err != nil {
		if err := kn.requestFailed(res.Err); err != nil {
			t.log.WithError(err).Error("request failed")
			return
		}
		t.transitions++
		t.stats.Failed++
		instrumentFailure(t.id)
		t.log.WithFields(fields).WithError(res.Err).WithField("failures", kn.failures).Warn("tile load failed")
		return
	}
	if err := kn.dataArrived(res.Tile); err != nil {
		t.log.WithError(err).Error("data arrived")
		return
	}
	t.transitions++
	t.stats.Received++
	t.received = append(t.received, kn)
}

// evictionPriority is the node's SSE this frame if its region was visible
// and its keyframe is in the bracket, 0 otherwise.
func (t *Traversal) evictionPriority(kn *KeyframeNode) float64 {
	if !t.isVisible(kn.spatial) || !t.inBracket(kn.keyframe) {
		return 0
	}
	return kn.spatial.screenSpaceError
}

// lessEvictable orders by priority, then least recently used, then key.
func lessEvictable(a, b *KeyframeNode) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	if a.lastUsedFrame != b.lastUsedFrame {
		return a.lastUsedFrame < b.lastUsedFrame
	}
	if a.spatial.key != b.spatial.key {
		return a.spatial.key.less(b.spatial.key)
	}
	return a.keyframe < b.keyframe
}

func (t *Traversal) sortResident() {
	for _, kn := range t.resident {
		kn.priority = t.evictionPriority(kn)
	}
	sort.Slice(t.resident, func(i, j int) bool {
		return lessEvictable(t.resident[i], t.resident[j])
	})
}

func (t *Traversal) insertResident(kn *KeyframeNode) {
	i := sort.Search(len(t.resident), func(i int) bool {
		return lessEvictable(kn, t.resident[i])
	})
	t.resident = append(t.resident, nil)
	copy(t.resident[i+1:], t.resident[i:])
	t.resident[i] = kn
}

// evictOne frees the lowest-priority resident node that is not required.
func (t *Traversal) evictOne() bool {
	for i, kn := range t.resident {
		if t.IsRequired(kn) {
			continue
		}
		slots, err := kn.evict()
		if err != nil {
			t.log.WithError(err).Error("evict")
			return false
		}
		t.releaseSlots(slots)
		t.resident = append(t.resident[:i], t.resident[i+1:]...)
		t.transitions++
		t.stats.Evicted++
		instrumentEviction(t.id)
		t.log.WithFields(logrus.Fields{
			"node":     kn.spatial.key,
			"keyframe": kn.keyframe,
			"priority": kn.priority,
		}).Debug("tile evicted")
		return true
	}
	return false
}

func (t *Traversal) full() bool {
	for _, mt := range t.megatextures {
		if mt.IsFull() {
			return true
		}
	}
	return false
}

func (t *Traversal) releaseSlots(slots []megatexture.SlotToken) {
	for ch, tok := range slots {
		mt := t.megatextures[ch]
		if !mt.IsCurrent(tok) {
			continue
		}
		if err := mt.Free(tok.Index); err != nil {
			t.log.WithError(err).WithField("channel", mt.Channel()).Error("free slot")
		}
	}
}

// allocate claims one slot per channel. Required nodes may evict; others
// only take free slots. On failure nothing stays allocated.
func (t *Traversal) allocate(required bool) ([]megatexture.SlotToken, bool) {
	slots := make([]megatexture.SlotToken, 0, len(t.megatextures))
	for _, mt := range t.megatextures {
		tok, err := mt.Allocate()
		for err != nil && required && t.evictOne() {
			tok, err = mt.Allocate()
		}
		if err != nil {
			t.releaseSlots(slots)
			return nil, false
		}
		slots = append(slots, tok)
	}
	return slots, true
}

// copyReceived moves RECEIVED tiles into the megatextures, highest priority
// first. Required tiles that get no slot stay RECEIVED; any other tile
// without a slot is discarded, so host memory holds at most the tiles of
// the current render candidates.
func (t *Traversal) copyReceived() error {
	t.sortResident()
	if len(t.received) == 0 {
		return nil
	}

	for _, kn := range t.received {
		kn.priority = t.evictionPriority(kn)
	}
	sort.SliceStable(t.received, func(i, j int) bool {
		a, b := t.received[i], t.received[j]
		ra, rb := t.IsRequired(a), t.IsRequired(b)
		if ra != rb {
			return ra
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.spatial.key != b.spatial.key {
			return a.spatial.key.less(b.spatial.key)
		}
		return a.keyframe < b.keyframe
	})

	var (
		waiting  []*KeyframeNode
		starved  int
		firstErr error
	)
	for _, kn := range t.received {
		if len(kn.tile.Channels) != len(t.megatextures) {
			panic(errors.Wrapf(megatexture.ErrMalformedTile, "tile %v: %d channels, want %d",
				kn.TileKey(), len(kn.tile.Channels), len(t.megatextures)))
		}

		required := t.IsRequired(kn)
		slots, ok := t.allocate(required)
		if !ok {
			if required {
				starved++
				waiting = append(waiting, kn)
			} else {
				t.discard(kn)
			}
			continue
		}

		if err := t.write(kn, slots); err != nil {
			t.releaseSlots(slots)
			if firstErr == nil {
				firstErr = err
			}
			if required {
				waiting = append(waiting, kn)
			} else {
				t.discard(kn)
			}
			continue
		}
		if err := kn.copiedToMegatexture(slots); err != nil {
			t.releaseSlots(slots)
			t.log.WithError(err).Error("copy to megatexture")
			continue
		}
		t.transitions++
		t.stats.Loaded++
		kn.lastUsedFrame = t.frame
		t.insertResident(kn)
	}

	clear(t.received[len(waiting):])
	t.received = append(t.received[:0], waiting...)
	t.stats.Waiting = len(waiting)

	if firstErr != nil {
		return firstErr
	}
	if starved > 0 {
		t.log.WithFields(logrus.Fields{
			"starved":  starved,
			"capacity": t.megatextures[0].Capacity(),
		}).Warn("megatexture capacity exhausted")
		return errors.Wrapf(ErrCapacityExhausted, "%d required tiles without a slot", starved)
	}
	return nil
}

func (t *Traversal) discard(kn *KeyframeNode) {
	if err := kn.discard(); err != nil {
		t.log.WithError(err).Error("discard tile")
		return
	}
	t.transitions++
	t.stats.Discarded++
	instrumentDiscard(t.id)
	t.log.WithFields(logrus.Fields{
		"node":     kn.spatial.key,
		"keyframe": kn.keyframe,
	}).Debug("tile discarded")
}

func (t *Traversal) write(kn *KeyframeNode, slots []megatexture.SlotToken) error {
	for ch, tok := range slots {
		err := t.megatextures[ch].Write(tok, kn.tile.Channels[ch])
		if errors.Is(err, megatexture.ErrMalformedTile) {
			panic(errors.Wrapf(err, "tile %v", kn.TileKey()))
		}
		if err != nil {
			return errors.Wrapf(err, "write tile %v", kn.TileKey())
		}
	}
	return nil
}
