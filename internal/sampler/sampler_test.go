package sampler

import (
	"context"
	"testing"
	"time"

	"github.com/subtitlefast/subtitlefast/internal/decode"
	"github.com/subtitlefast/subtitlefast/internal/frame"
)

func mustFrame(t *testing.T, idx uint64, ts *time.Duration) *frame.Decoded {
	t.Helper()
	f, err := frame.New(4, 4, 4, idx, ts, make([]byte, 16), nil)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

func dur(secs float64) *time.Duration {
	d := time.Duration(secs * float64(time.Second))
	return &d
}

// Sampler spacing: for a one-second window with at least one source frame,
// the number of emitted samples equals min(N, frames_in_window).
func TestSamplerSpacingWithinOneSecond(t *testing.T) {
	in := make(chan decode.FrameOrError, 100)
	const fps = 30
	const samplesPerSecond = 7
	for i := uint64(0); i < fps; i++ {
		ts := dur(float64(i) / float64(fps))
		in <- decode.FrameOrError{Frame: mustFrame(t, i, ts)}
	}
	close(in)

	s := New(samplesPerSecond)
	out := s.Run(context.Background(), in)

	var samples int
	for r := range out {
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
		samples++
		r.Sample.Finish()
	}
	if samples != samplesPerSecond {
		t.Fatalf("want %d samples, got %d", samplesPerSecond, samples)
	}
}

// History monotonicity: every HistoryRecord index is < the sample's index
// and indices increase strictly.
func TestHistoryMonotonicity(t *testing.T) {
	in := make(chan decode.FrameOrError, 100)
	const fps = 10
	const samplesPerSecond = 2
	for i := uint64(0); i < fps; i++ {
		ts := dur(float64(i) / float64(fps))
		in <- decode.FrameOrError{Frame: mustFrame(t, i, ts)}
	}
	close(in)

	s := New(samplesPerSecond)
	out := s.Run(context.Background(), in)

	for r := range out {
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
		records := r.Sample.History.Records()
		var prev uint64
		for i, rec := range records {
			if rec.FrameIndex >= r.Sample.FrameIndex {
				t.Fatalf("history record %d has index %d >= sample index %d", i, rec.FrameIndex, r.Sample.FrameIndex)
			}
			if i > 0 && rec.FrameIndex <= prev {
				t.Fatalf("history indices not strictly increasing at %d: %d <= %d", i, rec.FrameIndex, prev)
			}
			prev = rec.FrameIndex
		}
		r.Sample.Finish()
	}
}

// Pool bound: |pool| <= pool_capacity after every push, checked directly on
// a pool of capacity 3 fed ten frames.
func TestPoolBound(t *testing.T) {
	p := newPool(3)
	for i := uint64(0); i < 10; i++ {
		p.push(i, mustFrame(t, i, nil))
		if p.len() > 3 {
			t.Fatalf("pool exceeded capacity: %d", p.len())
		}
	}
}

func TestPoolReclaimKeepsOrder(t *testing.T) {
	p := newPool(5)
	p.push(1, mustFrame(t, 1, nil))
	p.push(3, mustFrame(t, 3, nil))
	p.push(4, mustFrame(t, 4, nil))
	// Frame 2 completes late (it was sampled, now reclaimed).
	p.push(2, mustFrame(t, 2, nil))

	records := p.snapshot().Records()
	for i := 1; i < len(records); i++ {
		if records[i].FrameIndex <= records[i-1].FrameIndex {
			t.Fatalf("records out of order: %+v", records)
		}
	}
}

func TestFPSEstimatorSeedsThenAverages(t *testing.T) {
	e := newFPSEstimator()
	_, changed := e.observe(0, dur(0))
	if changed {
		t.Fatal("first observation should not report a change")
	}
	fps, changed := e.observe(1, dur(1.0/30))
	if !changed {
		t.Fatal("second observation should seed the estimate")
	}
	if fps < 29 || fps > 31 {
		t.Fatalf("unexpected fps estimate: %v", fps)
	}
}

func TestScheduleMultipleTargetsFromOneGap(t *testing.T) {
	s := newSchedule(4)
	// A big gap landing at 0.9s should fire every target up to and
	// including 0.75.
	fired := s.shouldSample(dur(0.9), 1)
	if !fired {
		t.Fatal("expected a fire on large gap")
	}
	if s.nextTargetIdx != 4 {
		t.Fatalf("expected all 4 targets consumed, got %d", s.nextTargetIdx)
	}
}
