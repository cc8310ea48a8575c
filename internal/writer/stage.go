package writer

import (
	"context"
	"log/slog"

	"github.com/subtitlefast/subtitlefast/internal/geom"
	"github.com/subtitlefast/subtitlefast/internal/ocr"
)

// Event reports one step of writer activity: either a buffered cue or,
// exactly once at shutdown, the finished, written document.
type Event struct {
	Buffered *SubtitleCue
	Done     *Done
	Err      error
}

// Done carries the outcome of the final Finish/write call.
type Done struct {
	Path   string
	Merged []MergedSubtitle
}

// Stage drains an OCR result stream into a Writer and writes the final SRT
// document once the stream closes (spec.md §5's shutdown ordering: the
// writer is the only stage that reorders, and only at shutdown).
type Stage struct {
	w   *Writer
	log *slog.Logger
}

// NewStage builds a Stage that writes to path.
func NewStage(path string) *Stage {
	return &Stage{w: New(path), log: slog.With("component", "writer")}
}

// Writer exposes the underlying Writer for progress reporting (cues,
// ocr_empty, merged counts).
func (s *Stage) Writer() *Writer { return s.w }

// Run drains in until it closes (or ctx is cancelled), buffering every
// non-empty subtitle, then flushes to disk and emits one final Event.
// Per spec.md §7, the writer still attempts this flush even if an
// upstream error arrives, so any cues buffered before the failure are not
// lost.
func (s *Stage) Run(ctx context.Context, in <-chan ocr.Result) <-chan Event {
	out := make(chan Event, 1)
	go func() {
		defer close(out)
		var upstreamErr error

	drain:
		for {
			select {
			case <-ctx.Done():
				upstreamErr = ctx.Err()
				break drain
			case item, ok := <-in:
				if !ok {
					break drain
				}
				if item.Err != nil {
					upstreamErr = item.Err
					break drain
				}
				if item.Subtitle == nil {
					continue
				}
				cue := SubtitleCue{
					StartTime:  item.Subtitle.Interval.StartTime,
					EndTime:    item.Subtitle.Interval.EndTime,
					StartFrame: item.Subtitle.Interval.StartFrame,
					Text:       item.Subtitle.Text,
					CenterY:    centerY(item.Subtitle.Region),
				}
				s.w.Add(cue)
				select {
				case out <- Event{Buffered: &cue}:
				case <-ctx.Done():
					return
				}
			}
		}

		merged, err := s.w.Finish()
		if err != nil {
			s.log.Error("write failed", "error", err)
			select {
			case out <- Event{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		done := Event{Done: &Done{Path: s.w.path, Merged: merged}}
		select {
		case out <- done:
		case <-ctx.Done():
		}

		if upstreamErr != nil {
			select {
			case out <- Event{Err: upstreamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

func centerY(r geom.PixelRect) float32 {
	return float32(r.Y) + float32(r.Height)/2
}
