package ocr

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
	"github.com/subtitlefast/subtitlefast/internal/segmenter"
)

const (
	outputChannelCapacity = 4 // OCR→Writer (spec.md §5).
	lineMergeGapPx        = 12
)

// Subtitle is one interval with its assembled OCR text, ready for the
// writer to buffer (spec.md §4.6).
type Subtitle struct {
	Interval   segmenter.SubtitleInterval
	Region     geom.PixelRect
	Text       string
	Confidence *float32
}

// Result carries either a produced Subtitle or a propagated error. An
// interval whose recognition is empty yields no Result at all; it is only
// counted in EmptyCount (spec.md §4.6's ocr_empty bookkeeping).
type Result struct {
	Subtitle *Subtitle
	Err      error
}

// Stage runs S5: one blocking recognize call per interval, serialized by a
// single-flight guard so the underlying engine never sees concurrent
// calls from this pipeline instance (spec.md §5).
type Stage struct {
	engine Engine
	sf     singleflight.Group
	log    *slog.Logger

	emptyCount atomic.Int64
}

// NewStage builds a Stage around engine.
func NewStage(engine Engine) *Stage {
	return &Stage{engine: engine, log: slog.With("component", "ocr")}
}

// EmptyCount returns how many intervals produced no recognized text so
// far, for the progress reporter's ocr_empty counter.
func (s *Stage) EmptyCount() int64 { return s.emptyCount.Load() }

// Run drives the stage from a single goroutine: one closed interval in,
// zero or one Result out per interval, in arrival order.
func (s *Stage) Run(ctx context.Context, in <-chan segmenter.Result) <-chan Result {
	out := make(chan Result, outputChannelCapacity)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case item, ok := <-in:
				if !ok {
					return
				}
				if item.Err != nil {
					select {
					case out <- Result{Err: item.Err}:
					case <-ctx.Done():
					}
					return
				}
				res, terminate := s.process(ctx, *item.Interval)
				if res != nil {
					select {
					case out <- *res:
					case <-ctx.Done():
						return
					}
				}
				if terminate {
					return
				}
			}
		}
	}()
	return out
}

// process recognizes one interval's region and assembles its text. It
// returns (nil, false) for an empty recognition — counted but not emitted.
func (s *Stage) process(ctx context.Context, interval segmenter.SubtitleInterval) (*Result, bool) {
	f := interval.RepresentativeFrame
	if f == nil {
		return nil, false
	}
	region := deriveRegion(interval.Roi, f.Width, f.Height)
	plane := planeOf(f)

	v, err, _ := s.sf.Do("recognize", func() (interface{}, error) {
		return s.engine.Recognize(ctx, plane, []OcrRegion{region})
	})
	if err != nil {
		s.log.Error("recognize failed", "error", err)
		return &Result{Err: err}, true
	}
	response := v.(OcrResponse)

	text, confidence := assembleText(response.Texts)
	if text == "" {
		s.emptyCount.Add(1)
		return nil, false
	}

	return &Result{Subtitle: &Subtitle{
		Interval:   interval,
		Region:     region,
		Text:       text,
		Confidence: confidence,
	}}, false
}

func planeOf(f *frame.Decoded) LumaPlane {
	return LumaPlane{Width: f.Width, Height: f.Height, Stride: f.LumaStride, Data: f.Y}
}

// deriveRegion clamps roi to the frame's pixel bounds and expands it to a
// minimum 1x1 rectangle; a still-zero-area result falls back to the full
// frame (spec.md §4.5).
func deriveRegion(roi geom.PixelRect, width, height int) OcrRegion {
	x0 := clampInt(roi.X, 0, width)
	y0 := clampInt(roi.Y, 0, height)
	x1 := clampInt(roi.X+roi.Width, 0, width)
	y1 := clampInt(roi.Y+roi.Height, 0, height)
	if x1 <= x0 {
		x1 = minInt(x0+1, width)
	}
	if y1 <= y0 {
		y1 = minInt(y0+1, height)
	}
	if x1-x0 <= 0 || y1-y0 <= 0 {
		return OcrRegion{X: 0, Y: 0, Width: width, Height: height}
	}
	return OcrRegion{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// assembleText sorts recognized texts by (y, x) ascending, greedily merges
// consecutive texts within lineMergeGapPx of each other's y into one line,
// and joins lines with a newline. Confidence is the mean of all present
// per-text confidences (spec.md §4.5).
func assembleText(texts []RecognizedText) (string, *float32) {
	if len(texts) == 0 {
		return "", nil
	}
	sorted := append([]RecognizedText(nil), texts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Region.Y != sorted[j].Region.Y {
			return sorted[i].Region.Y < sorted[j].Region.Y
		}
		return sorted[i].Region.X < sorted[j].Region.X
	})

	var lines []string
	var currentWords []string
	lastY := sorted[0].Region.Y

	flush := func() {
		if len(currentWords) > 0 {
			lines = append(lines, strings.Join(currentWords, " "))
		}
	}

	var confidenceSum float32
	var confidenceCount int

	for i, t := range sorted {
		if i > 0 && absInt(t.Region.Y-lastY) > lineMergeGapPx {
			flush()
			currentWords = nil
		}
		if strings.TrimSpace(t.Text) != "" {
			currentWords = append(currentWords, t.Text)
		}
		if t.Confidence != nil {
			confidenceSum += *t.Confidence
			confidenceCount++
		}
		lastY = t.Region.Y
	}
	flush()

	text := strings.Join(lines, "\n")
	if text == "" {
		return "", nil
	}
	if confidenceCount == 0 {
		return text, nil
	}
	v := confidenceSum / float32(confidenceCount)
	return text, &v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
