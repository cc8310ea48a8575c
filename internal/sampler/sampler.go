// Package sampler implements S2 of the pipeline (spec.md §4.1): it thins a
// decoded-frame stream to N samples/sec while retaining a bounded rolling
// pool of the frames it skips, snapshotting that pool onto every sample it
// emits.
package sampler

import (
	"context"
	"log/slog"
	"math"

	"github.com/subtitlefast/subtitlefast/internal/decode"
	"github.com/subtitlefast/subtitlefast/internal/frame"
)

const (
	outputChannelCapacity = 1 // Sampler→Detector backpressures the decoder promptly (spec.md §5).
	defaultPoolCapacity   = 24
	maxPoolCapacity       = 240
	epsilon               = 1e-6
	fpsEMAAlpha           = 0.2
)

// Context carries sampler-derived metadata that rides along with every
// sample (currently just the FPS estimate used for timestamp fallback).
type Context struct {
	EstimatedFPS *float64
}

// Sampled wraps one emitted DecodedFrame with the pool snapshot captured at
// selection time, plus a Finish hook that returns the frame to the pool once
// downstream stages are done with it (spec.md §4.1's completion callback).
type Sampled struct {
	Frame      *frame.Decoded
	History    frame.History
	Context    Context
	FrameIndex uint64

	finish func()
}

// Finish must be called exactly once a consumer is done referencing the
// frame, allowing the sampler to reclaim it into the pool without
// duplicating memory.
func (s *Sampled) Finish() {
	if s.finish != nil {
		s.finish()
	}
}

// Result is one sampler output item: either a Sampled frame or a terminal
// error.
type Result struct {
	Sample *Sampled
	Err    error
}

// Sampler thins an upstream decode.Frames stream to SamplesPerSecond
// samples/sec.
type Sampler struct {
	SamplesPerSecond uint32
	log              *slog.Logger
}

// New constructs a Sampler. samplesPerSecond must be positive.
func New(samplesPerSecond uint32) *Sampler {
	if samplesPerSecond == 0 {
		samplesPerSecond = 1
	}
	return &Sampler{SamplesPerSecond: samplesPerSecond, log: slog.With("component", "sampler")}
}

type completion struct {
	frameIndex uint64
	frame      *frame.Decoded
}

// Run starts the sampler goroutine and returns the output stream. The
// stream closes when upstream closes, upstream reports an error, or ctx is
// cancelled (spec.md §4.1 failure modes). While the consumer is not
// reading, the sampler blocks on its send.
func (s *Sampler) Run(ctx context.Context, in decode.Frames) <-chan Result {
	out := make(chan Result, outputChannelCapacity)
	feedback := make(chan completion, maxPoolCapacity)

	go s.loop(ctx, in, out, feedback)
	return out
}

func (s *Sampler) loop(ctx context.Context, in decode.Frames, out chan<- Result, feedback chan completion) {
	defer close(out)

	pool := newPool(defaultPoolCapacity)
	schedule := newSchedule(s.SamplesPerSecond)
	estimator := newFPSEstimator()
	sctx := Context{}

	var processed uint64

	send := func(r Result) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	drainFeedback := func() {
		for {
			select {
			case c := <-feedback:
				pool.push(c.frameIndex, c.frame)
			default:
				return
			}
		}
	}

	for {
		drainFeedback()

		select {
		case <-ctx.Done():
			return
		case c := <-feedback:
			pool.push(c.frameIndex, c.frame)
			continue
		case item, ok := <-in:
			if !ok {
				return
			}
			if item.Err != nil {
				send(Result{Err: item.Err})
				return
			}

			processed++
			f := item.Frame
			frameIndex := f.FrameIndex

			if fps, changed := estimator.observe(frameIndex, f.Timestamp); changed {
				capacity := poolCapacityFor(fps)
				pool.setCapacity(capacity)
				v := fps
				sctx = Context{EstimatedFPS: &v}
			}

			fires := schedule.shouldSample(f.Timestamp, processed)
			if !fires {
				pool.push(frameIndex, f)
				continue
			}

			history := pool.snapshot()
			sampled := &Sampled{
				Frame:      f,
				History:    history,
				Context:    sctx,
				FrameIndex: frameIndex,
			}
			sampled.finish = func() {
				select {
				case feedback <- completion{frameIndex: frameIndex, frame: f}:
				default:
					// Pool already saturated with in-flight completions; drop silently,
					// the pool is a best-effort retention window, not a queue of record.
				}
			}
			if !send(Result{Sample: sampled}) {
				return
			}
		}
	}
}

func poolCapacityFor(fps float64) int {
	capacity := defaultPoolCapacity
	if !math.IsNaN(fps) && !math.IsInf(fps, 0) && fps > 0 {
		capacity = int(math.Ceil(fps))
		if capacity < 1 {
			capacity = 1
		}
	}
	if capacity > maxPoolCapacity {
		capacity = maxPoolCapacity
	}
	return capacity
}
