package sampler

import "github.com/subtitlefast/subtitlefast/internal/frame"

// pool is a FIFO of retained non-sampled (and reclaimed) frames, bounded by
// capacity. Every entry is released (dropped from the slice, eligible for
// GC) as soon as it falls off the front.
type pool struct {
	entries  []frame.HistoryRecord
	capacity int
}

func newPool(capacity int) *pool {
	if capacity < 1 {
		capacity = 1
	}
	return &pool{capacity: capacity}
}

func (p *pool) setCapacity(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > maxPoolCapacity {
		capacity = maxPoolCapacity
	}
	p.capacity = capacity
	p.trim()
}

// push inserts a retained frame, keeping entries sorted ascending by
// FrameIndex. Frames normally arrive in order from the decoder, but a
// reclaimed (previously-sampled) frame can complete out of order relative
// to frames skipped after it, so an insertion point is located rather than
// always appending — this keeps the history-monotonicity invariant
// (spec.md §8) intact regardless of completion timing.
func (p *pool) push(frameIndex uint64, f *frame.Decoded) {
	entry := frame.HistoryRecord{FrameIndex: frameIndex, Frame: f}
	i := len(p.entries)
	for i > 0 && p.entries[i-1].FrameIndex > frameIndex {
		i--
	}
	if i > 0 && p.entries[i-1].FrameIndex == frameIndex {
		p.entries[i-1] = entry
	} else {
		p.entries = append(p.entries, frame.HistoryRecord{})
		copy(p.entries[i+1:], p.entries[i:])
		p.entries[i] = entry
	}
	p.trim()
}

func (p *pool) trim() {
	if excess := len(p.entries) - p.capacity; excess > 0 {
		for i := 0; i < excess; i++ {
			p.entries[i] = frame.HistoryRecord{}
		}
		p.entries = p.entries[excess:]
	}
}

func (p *pool) snapshot() frame.History {
	return frame.NewHistory(p.entries)
}

func (p *pool) len() int {
	return len(p.entries)
}
