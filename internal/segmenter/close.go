package segmenter

import (
	"time"

	"github.com/subtitlefast/subtitlefast/internal/frame"
)

// closeActive finalizes an activeTrack by scanning the most recent sampler
// history forward from last_frame (spec.md §4.4.3) and returns the emitted
// interval.
func (s *Segmenter) closeActive(a *activeTrack) *SubtitleInterval {
	return s.closeWith(a, s.latestHistory)
}

// closeWith performs the forward refinement scan against an explicit
// history snapshot, used both by per-sample closure and shutdown flush.
func (s *Segmenter) closeWith(a *activeTrack, history frame.History) *SubtitleInterval {
	lastFrame := a.lastFrame
	lastTime := a.lastTime
	prevTime := a.prevLastTime
	hasPrev := a.hasPrevLast
	anchor := a.searchAnchor()

	var boundary *time.Duration

	for _, rec := range history.Records() {
		if rec.FrameIndex <= lastFrame {
			continue
		}
		roi := a.roi.Roi(rec.Frame.Width, rec.Frame.Height)
		feat, ok := s.cmp.Extract(rec.Frame, roi)
		if !ok {
			t := resolveTime(rec.Frame, s.latestEstimatedFPS)
			boundary = &t
			break
		}
		report := s.cmp.Compare(anchor, feat)
		if !report.SameSegment {
			t := resolveTime(rec.Frame, s.latestEstimatedFPS)
			boundary = &t
			break
		}
		prevTime = lastTime
		hasPrev = true
		lastFrame = rec.FrameIndex
		lastTime = resolveTime(rec.Frame, s.latestEstimatedFPS)
		anchor = feat
	}

	var endTime time.Duration
	switch {
	case boundary != nil:
		endTime = *boundary
	case hasPrev:
		endTime = lastTime + (lastTime - prevTime)
	default:
		endTime = lastTime
	}

	return &SubtitleInterval{
		StartTime:           a.startTime,
		EndTime:             endTime,
		StartFrame:          a.startFrame,
		Roi:                 a.roi,
		RepresentativeFrame: representativeFrame(a),
	}
}

// representativeFrame returns the frame the track's template feature was
// originally extracted from; OCR crops this frame to the interval's ROI.
func representativeFrame(a *activeTrack) *frame.Decoded {
	return a.representative
}
