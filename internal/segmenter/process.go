package segmenter

import (
	"github.com/subtitlefast/subtitlefast/internal/comparator"
	"github.com/subtitlefast/subtitlefast/internal/detector"
	"github.com/subtitlefast/subtitlefast/internal/geom"
	"github.com/subtitlefast/subtitlefast/internal/sampler"
)

// candidate is one detection region with its extracted feature, ready to be
// matched against trackers. Regions whose extraction is degenerate are
// dropped before matching begins.
type candidate struct {
	region  detector.Region
	feature *comparator.FeatureBlob
	used    bool
}

// Process handles one arriving sample, advancing the tracker state machine
// per spec.md §4.4.1 and returning any intervals closed as a side effect.
func (s *Segmenter) Process(sample *sampler.Sampled, det detector.Result) []SubtitleInterval {
	s.latestHistory = sample.History
	s.latestEstimatedFPS = sample.Context.EstimatedFPS

	candidates := s.extractCandidates(sample, det)

	var closed []SubtitleInterval

	// Step 2: match existing actives, in order, against unused regions.
	remaining := s.actives[:0]
	for _, a := range s.actives {
		if idx, ok := bestMatch(candidates, a.roi, s.cmp, a.searchAnchor()); ok {
			c := candidates[idx]
			c.used = true
			a.roi = c.region.Rect
			a.prevLastTime = a.lastTime
			a.hasPrevLast = true
			a.lastFrame = sample.FrameIndex
			a.lastTime = resolveTime(sample.Frame, sample.Context.EstimatedFPS)
			a.anchor = c.feature
			a.consecutiveMissing = 0
			remaining = append(remaining, a)
			continue
		}
		a.consecutiveMissing++
		if a.consecutiveMissing > s.wOff {
			if interval := s.closeActive(a); interval != nil {
				closed = append(closed, *interval)
			}
			continue
		}
		remaining = append(remaining, a)
	}
	s.actives = remaining

	// Step 3: update pending tracks against unused regions.
	stillPending := s.pendings[:0]
	for _, p := range s.pendings {
		idx, ok := bestMatch(candidates, p.roi, s.cmp, p.searchAnchor())
		if !ok {
			continue // dropped immediately on any miss
		}
		c := candidates[idx]
		c.used = true
		p.roi = c.region.Rect
		p.anchor = c.feature
		p.hitCount++
		if p.hitCount >= s.wOn {
			s.actives = append(s.actives, s.promote(p))
			continue
		}
		stillPending = append(stillPending, p)
	}
	s.pendings = stillPending

	// Step 4: open new pending tracks from whatever regions remain unused.
	for _, c := range candidates {
		if c.used {
			continue
		}
		p := &pendingTrack{
			roi:        c.region.Rect,
			template:   c.feature,
			hitCount:   1,
			firstFrame: sample.FrameIndex,
			firstTime:  resolveTime(sample.Frame, sample.Context.EstimatedFPS),
			history:    sample.History,
			source:     sample.Frame,
		}
		// A single hit can already satisfy W_on=1; promote right away rather
		// than waiting on a confirming sample that may never come.
		if p.hitCount >= s.wOn {
			s.actives = append(s.actives, s.promote(p))
			continue
		}
		s.pendings = append(s.pendings, p)
	}

	return closed
}

// extractCandidates extracts a feature for every detected region, silently
// dropping regions the comparator considers degenerate.
func (s *Segmenter) extractCandidates(sample *sampler.Sampled, det detector.Result) []*candidate {
	var out []*candidate
	for _, region := range det.Regions {
		roi := region.Rect.Roi(sample.Frame.Width, sample.Frame.Height)
		feat, ok := s.cmp.Extract(sample.Frame, roi)
		if !ok {
			continue
		}
		out = append(out, &candidate{region: region, feature: feat})
	}
	return out
}

// bestMatch finds the unused candidate with the greatest detection score
// that vertically overlaps roi and compares same_segment against anchor,
// breaking ties by input order (spec.md §9's deterministic reduction rule).
func bestMatch(candidates []*candidate, roi geom.PixelRect, cmp comparator.Comparator, anchor *comparator.FeatureBlob) (int, bool) {
	best := -1
	var bestScore float32
	for i, c := range candidates {
		if c.used {
			continue
		}
		if !roi.VerticalOverlap(c.region.Rect) {
			continue
		}
		report := cmp.Compare(anchor, c.feature)
		if !report.SameSegment {
			continue
		}
		if best == -1 || c.region.Score > bestScore {
			best = i
			bestScore = c.region.Score
		}
	}
	return best, best != -1
}
