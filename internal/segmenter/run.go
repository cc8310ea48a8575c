package segmenter

import "context"

// Run drives the segmenter from a single goroutine: one Input in, zero or
// more closed SubtitleIntervals out, in arrival order. On upstream
// completion it flushes all active tracks (spec.md §4.4.4) before closing
// the output channel.
func (s *Segmenter) Run(ctx context.Context, in <-chan Input) <-chan Result {
	out := make(chan Result, 4)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case item, ok := <-in:
				if !ok {
					for _, interval := range s.Flush() {
						interval := interval
						select {
						case out <- Result{Interval: &interval}:
						case <-ctx.Done():
							return
						}
					}
					return
				}
				for _, interval := range s.Process(item.Sample, item.Detection) {
					interval := interval
					select {
					case out <- Result{Interval: &interval}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}

// Flush closes every remaining active track using the last observed
// history, discarding pending tracks (spec.md §4.4.4). Called automatically
// by Run on upstream completion; exposed directly for callers driving the
// segmenter without the channel-based Run loop.
func (s *Segmenter) Flush() []SubtitleInterval {
	s.pendings = nil
	var closed []SubtitleInterval
	for _, a := range s.actives {
		closed = append(closed, *s.closeWith(a, s.latestHistory))
	}
	s.actives = nil
	return closed
}
