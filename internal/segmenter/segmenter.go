// Package segmenter implements S4 of the pipeline (spec.md §4.4): it turns
// a stream of (SampledFrame, DetectionResult) pairs into a stream of closed
// SubtitleIntervals, one per on-screen subtitle occurrence, using a
// feature comparator to decide whether consecutive positive samples belong
// to the same subtitle.
package segmenter

import (
	"time"

	"github.com/subtitlefast/subtitlefast/internal/comparator"
	"github.com/subtitlefast/subtitlefast/internal/detector"
	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
	"github.com/subtitlefast/subtitlefast/internal/sampler"
)

// SubtitleInterval is one closed on-screen subtitle occurrence, ready for
// OCR (spec.md §3).
type SubtitleInterval struct {
	StartTime            time.Duration
	EndTime              time.Duration
	StartFrame           uint64
	Roi                  geom.PixelRect
	RepresentativeFrame  *frame.Decoded
}

// Input is one sample paired with its detection outcome, in sampler order.
type Input struct {
	Sample    *sampler.Sampled
	Detection detector.Result
}

// Result carries either a newly closed interval or a propagated error.
type Result struct {
	Interval *SubtitleInterval
	Err      error
}

// Segmenter holds the tracker list state machine described in spec.md §4.4.
// It is not safe for concurrent use; Run drives it from a single goroutine.
type Segmenter struct {
	cmp  comparator.Comparator
	wOn  int
	wOff int

	pendings []*pendingTrack
	actives  []*activeTrack

	latestHistory     frame.History
	latestEstimatedFPS *float64
}

// New builds a Segmenter. samplesPerSecond must match the sampler's rate:
// W_on = W_off = max(1, ceil(samplesPerSecond/5)).
func New(cmp comparator.Comparator, samplesPerSecond uint32) *Segmenter {
	w := int(samplesPerSecond) / 5
	if int(samplesPerSecond)%5 != 0 {
		w++
	}
	if w < 1 {
		w = 1
	}
	return &Segmenter{cmp: cmp, wOn: w, wOff: w}
}
