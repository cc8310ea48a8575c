// Package progress reports pipeline run health: a debounced event stream
// for the CLI plus the same counters exported as Prometheus gauges and
// counters (spec.md §6's optional progress events).
package progress

import (
	"sync"
	"time"
)

// debounceInterval bounds how often Report actually forwards an event to
// subscribers — "at most a few updates per second" (spec.md §6).
const debounceInterval = 200 * time.Millisecond

// Event is one point-in-time snapshot of run health.
type Event struct {
	SamplesSeen      uint64
	LatestFrameIndex uint64
	TotalFrames      *uint64
	FPS              *float64
	StageAverageMs   map[string]float64
	Cues             int
	Merged           int
	OcrEmpty         int
	Progress         float64
	Completed        bool
	Err              error
}

// Reporter fans Events out to subscribers, debounced, and mirrors the same
// counters into the package's Prometheus collectors (see metrics.go).
type Reporter struct {
	mu        sync.Mutex
	listeners []chan Event
	lastSent  time.Time
}

// NewReporter builds an idle Reporter; call Subscribe before the first
// Report to receive events.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Subscribe returns a channel that receives every debounced event. The
// channel is buffered so a slow subscriber never blocks the pipeline;
// Report drops the oldest pending event rather than stalling.
func (r *Reporter) Subscribe() <-chan Event {
	ch := make(chan Event, 8)
	r.mu.Lock()
	r.listeners = append(r.listeners, ch)
	r.mu.Unlock()
	return ch
}

// Report records ev into the Prometheus collectors unconditionally, and
// forwards it to subscribers only if debounceInterval has elapsed since
// the last forwarded event, or ev is terminal (Completed or Err set).
func (r *Reporter) Report(ev Event) {
	observe(ev)

	r.mu.Lock()
	defer r.mu.Unlock()

	force := ev.Completed || ev.Err != nil
	now := time.Now()
	if !force && now.Sub(r.lastSent) < debounceInterval {
		return
	}
	r.lastSent = now

	for _, ch := range r.listeners {
		select {
		case ch <- ev:
		default:
			// Drain one stale event to make room rather than block the
			// pipeline on a slow subscriber.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Close closes every subscriber channel. Call once after the final Report.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.listeners {
		close(ch)
	}
	r.listeners = nil
}
