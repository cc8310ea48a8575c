package segmenter

import (
	"testing"
	"time"

	"github.com/subtitlefast/subtitlefast/internal/comparator"
	"github.com/subtitlefast/subtitlefast/internal/detector"
	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
	"github.com/subtitlefast/subtitlefast/internal/sampler"
)

const (
	testWidth  = 640
	testHeight = 480
)

func paintedFrame(t *testing.T, rect geom.PixelRect, idx uint64, ts time.Duration) *frame.Decoded {
	t.Helper()
	y := make([]byte, testWidth*testHeight)
	for i := range y {
		y[i] = 16
	}
	for row := rect.Y; row < rect.Y+rect.Height; row++ {
		for col := rect.X; col < rect.X+rect.Width; col++ {
			y[row*testWidth+col] = 230
		}
	}
	tsCopy := ts
	f, err := frame.New(testWidth, testHeight, testWidth, idx, &tsCopy, y, nil)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

func detResult(rect geom.PixelRect, score float32) detector.Result {
	return detector.Result{
		HasSubtitle: true,
		MaxScore:    score,
		Regions:     []detector.Region{{Rect: rect, Score: score}},
	}
}

func noDetection() detector.Result {
	return detector.Empty()
}

func sampleAt(f *frame.Decoded, idx uint64) *sampler.Sampled {
	return &sampler.Sampled{Frame: f, History: frame.History{}, Context: sampler.Context{}, FrameIndex: idx}
}

// Scenario 1 (spec.md §8): 10 steady positive samples at 0.2s spacing
// produce one interval ending one extrapolated gap past the last frame.
func TestSingleSteadyCue(t *testing.T) {
	cmp := comparator.NewBitsetCover(230, 12)
	s := New(cmp, 5) // W_on = W_off = 1
	rect := geom.PixelRect{X: 100, Y: 380, Width: 300, Height: 40}

	var closed []SubtitleInterval
	for i := uint64(0); i < 10; i++ {
		ts := time.Duration(float64(i) * 0.2 * float64(time.Second))
		f := paintedFrame(t, rect, i, ts)
		closed = append(closed, s.Process(sampleAt(f, i), detResult(rect, 0.9))...)
	}
	closed = append(closed, s.Flush()...)

	if len(closed) != 1 {
		t.Fatalf("expected exactly one interval, got %d", len(closed))
	}
	iv := closed[0]
	if iv.StartTime != 0 {
		t.Fatalf("expected start_time 0, got %v", iv.StartTime)
	}
	minEnd := time.Duration(2.0 * float64(time.Second))
	maxEnd := time.Duration(2.2 * float64(time.Second))
	if iv.EndTime < minEnd || iv.EndTime > maxEnd {
		t.Fatalf("expected end_time in [%v,%v], got %v", minEnd, maxEnd, iv.EndTime)
	}
}

// Scenario 3 (spec.md §8): a one-sample miss within W_off tolerance does not
// split the interval.
func TestFlickerWithinTolerance(t *testing.T) {
	cmp := comparator.NewBitsetCover(230, 12)
	s := New(cmp, 10) // W_on = W_off = 2
	rect := geom.PixelRect{X: 100, Y: 380, Width: 300, Height: 40}

	positive := map[uint64]bool{0: true, 1: true, 2: true, 3: true, 4: true, 6: true, 7: true, 8: true, 9: true}

	var closed []SubtitleInterval
	for i := uint64(0); i < 10; i++ {
		ts := time.Duration(float64(i) * 0.1 * float64(time.Second))
		var det detector.Result
		var f *frame.Decoded
		if positive[i] {
			f = paintedFrame(t, rect, i, ts)
			det = detResult(rect, 0.9)
		} else {
			f = paintedFrame(t, geom.PixelRect{}, i, ts)
			det = noDetection()
		}
		closed = append(closed, s.Process(sampleAt(f, i), det)...)
	}
	closed = append(closed, s.Flush()...)

	if len(closed) != 1 {
		t.Fatalf("expected one interval spanning the flicker, got %d", len(closed))
	}
}

// Scenario 4 (spec.md §8): a miss streak exceeding W_off splits the track
// into two intervals.
func TestGapExceedsTolerance(t *testing.T) {
	cmp := comparator.NewBitsetCover(230, 12)
	s := New(cmp, 5) // W_on = W_off = 1
	rect := geom.PixelRect{X: 100, Y: 380, Width: 300, Height: 40}

	positive := map[uint64]bool{0: true, 1: true, 2: true, 3: true, 4: true, 8: true, 9: true, 10: true, 11: true, 12: true}

	var closed []SubtitleInterval
	for i := uint64(0); i < 13; i++ {
		ts := time.Duration(float64(i) * 0.2 * float64(time.Second))
		var f *frame.Decoded
		var det detector.Result
		if positive[i] {
			f = paintedFrame(t, rect, i, ts)
			det = detResult(rect, 0.9)
		} else {
			f = paintedFrame(t, geom.PixelRect{}, i, ts)
			det = noDetection()
		}
		closed = append(closed, s.Process(sampleAt(f, i), det)...)
	}
	closed = append(closed, s.Flush()...)

	if len(closed) != 2 {
		t.Fatalf("expected two intervals across the gap, got %d", len(closed))
	}
	if closed[0].StartFrame != 0 {
		t.Fatalf("expected first interval to start at frame 0, got %d", closed[0].StartFrame)
	}
}

// Segment validity (spec.md §8): every emitted interval has end >= start.
func TestSegmentValidityInvariant(t *testing.T) {
	cmp := comparator.NewBitsetCover(230, 12)
	s := New(cmp, 5)
	rect := geom.PixelRect{X: 100, Y: 380, Width: 300, Height: 40}

	var closed []SubtitleInterval
	for i := uint64(0); i < 5; i++ {
		ts := time.Duration(float64(i) * 0.2 * float64(time.Second))
		f := paintedFrame(t, rect, i, ts)
		closed = append(closed, s.Process(sampleAt(f, i), detResult(rect, 0.9))...)
	}
	closed = append(closed, s.Flush()...)

	for _, iv := range closed {
		if iv.EndTime < iv.StartTime {
			t.Fatalf("invariant violated: end_time %v < start_time %v", iv.EndTime, iv.StartTime)
		}
	}
}

// Degenerate regions, exercised through the segmenter: a region whose
// feature can't be extracted never contributes a match and is silently
// skipped, so it opens no pending track.
func TestDegenerateRegionNeverMatches(t *testing.T) {
	cmp := comparator.NewBitsetCover(230, 12)
	s := New(cmp, 5)
	darkRect := geom.PixelRect{X: 100, Y: 380, Width: 300, Height: 40}

	f := paintedFrame(t, geom.PixelRect{}, 0, 0)
	closed := s.Process(sampleAt(f, 0), detResult(darkRect, 0.9))
	if len(closed) != 0 {
		t.Fatalf("expected no closures yet")
	}
	if len(s.pendings) != 0 {
		t.Fatalf("expected degenerate region to open no pending track, got %d", len(s.pendings))
	}
}
