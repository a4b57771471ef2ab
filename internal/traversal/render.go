package traversal

// RenderCandidate is one entry of the render list: a node chosen by the LOD
// pass, the keyframe to sample and the data to sample it from.
type RenderCandidate struct {
	Node     *SpatialNode
	Keyframe int
	// Source is the node's own LOADED data or that of its nearest LOADED
	// ancestor at the same keyframe. Nil when nothing is resident yet.
	Source *KeyframeNode
	// Weight is the temporal interpolation weight of Keyframe.
	Weight float64
}

// Fallback reports whether the candidate renders coarser ancestor data.
func (c RenderCandidate) Fallback() bool {
	return c.Source != nil && c.Source.spatial != c.Node
}

func (t *Traversal) buildRenderList() {
	t.renderList = t.renderList[:0]

	weights := map[int]float64{t.keyframeLow: 1 - t.keyframeWeight}
	if t.keyframeHigh != t.keyframeLow {
		weights[t.keyframeHigh] = t.keyframeWeight
	}

	for _, n := range t.candidates {
		for _, kf := range t.bracket() {
			src := nearestLoaded(n, kf)
			if src != nil {
				src.lastUsedFrame = t.frame
			}
			t.renderList = append(t.renderList, RenderCandidate{
				Node:     n,
				Keyframe: kf,
				Source:   src,
				Weight:   weights[kf],
			})
		}
	}
}

func nearestLoaded(n *SpatialNode, keyframe int) *KeyframeNode {
	for ; n != nil; n = n.parent {
		if kn := n.keyframes[keyframe]; kn != nil && kn.state == Loaded {
			return kn
		}
	}
	return nil
}

// RenderCandidates returns the render list of the last Update.
func (t *Traversal) RenderCandidates() []RenderCandidate {
	out := make([]RenderCandidate, len(t.renderList))
	copy(out, t.renderList)
	return out
}
