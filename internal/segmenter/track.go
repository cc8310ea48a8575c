package segmenter

import (
	"time"

	"github.com/subtitlefast/subtitlefast/internal/comparator"
	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
)

// pendingTrack is the `Pending { hit_count }` tracker variant (spec.md §9):
// a candidate subtitle that hasn't yet accumulated enough consecutive hits
// to be trusted.
type pendingTrack struct {
	roi        geom.PixelRect
	template   *comparator.FeatureBlob
	anchor     *comparator.FeatureBlob // latest matched feature; nil until the first confirming hit
	hitCount   int
	firstFrame uint64
	firstTime  time.Duration
	history    frame.History  // pool snapshot captured when this track was opened
	source     *frame.Decoded // frame the template feature was extracted from
}

// activeTrack is the `Active { consecutive_missing }` tracker variant: a
// confirmed, currently on-screen subtitle.
type activeTrack struct {
	roi      geom.PixelRect
	template *comparator.FeatureBlob
	anchor   *comparator.FeatureBlob

	startFrame uint64
	startTime  time.Duration

	lastFrame    uint64
	lastTime     time.Duration
	prevLastTime time.Duration
	hasPrevLast  bool

	consecutiveMissing int
	representative      *frame.Decoded
}

// searchAnchor returns the feature blob a match should be compared
// against: the anchor when set, otherwise the template.
func (a *activeTrack) searchAnchor() *comparator.FeatureBlob {
	if a.anchor != nil {
		return a.anchor
	}
	return a.template
}

func (p *pendingTrack) searchAnchor() *comparator.FeatureBlob {
	if p.anchor != nil {
		return p.anchor
	}
	return p.template
}

// resolveTime returns a frame's wall-clock timestamp, falling back to
// frame_index/estimated_fps, and finally to zero (spec.md §9's open
// question on timestamp-less sources).
func resolveTime(f *frame.Decoded, estimatedFPS *float64) time.Duration {
	if f.Timestamp != nil {
		return *f.Timestamp
	}
	if estimatedFPS != nil && *estimatedFPS > 0 {
		secs := float64(f.FrameIndex) / *estimatedFPS
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}
