package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/subtitlefast/subtitlefast/internal/comparator"
	"github.com/subtitlefast/subtitlefast/internal/decode"
	"github.com/subtitlefast/subtitlefast/internal/detector"
	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
	"github.com/subtitlefast/subtitlefast/internal/ocr"
)

// fakeSource emits a fixed number of solid frames, painting a bright band
// on every other frame to simulate an on/off subtitle.
type fakeSource struct {
	width, height int
	count         int
	fps           float64
}

func (s *fakeSource) Metadata(ctx context.Context) (decode.Metadata, error) {
	return decode.Metadata{Width: s.width, Height: s.height, FPS: s.fps}, nil
}

func (s *fakeSource) Open(ctx context.Context) (decode.Controller, decode.Frames, error) {
	out := make(chan decode.FrameOrError, 1)
	go func() {
		defer close(out)
		for i := 0; i < s.count; i++ {
			y := make([]byte, s.width*s.height)
			for j := range y {
				y[j] = 16
			}
			if i%2 == 0 {
				for row := 40; row < 50; row++ {
					for col := 20; col < 180; col++ {
						y[row*s.width+col] = 230
					}
				}
			}
			ts := time.Duration(i) * time.Second / time.Duration(s.fps)
			f, err := frame.New(s.width, s.height, s.width, uint64(i), &ts, y, nil)
			if err != nil {
				out <- decode.FrameOrError{Err: err}
				return
			}
			select {
			case out <- decode.FrameOrError{Frame: f}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return fakeController{}, out, nil
}

type fakeController struct{}

func (fakeController) Seek(ctx context.Context, info decode.SeekInfo) error { return nil }
func (fakeController) Close() error                                        { return nil }

// fakeEngine always reports one recognized word covering the whole region.
type fakeEngine struct{}

func (fakeEngine) Name() string { return "fake" }
func (fakeEngine) Recognize(ctx context.Context, plane ocr.LumaPlane, regions []ocr.OcrRegion) (ocr.OcrResponse, error) {
	var texts []ocr.RecognizedText
	for _, r := range regions {
		texts = append(texts, ocr.RecognizedText{Region: r, Text: "hello"})
	}
	return ocr.OcrResponse{Texts: texts}, nil
}

func TestPipelineRunProducesWrittenDocument(t *testing.T) {
	dir := t.TempDir()
	outPath := dir + "/out.srt"

	cmp := comparator.NewBitsetCover(230, 12)
	cfg := Config{
		Source:           &fakeSource{width: 200, height: 60, count: 20, fps: 10},
		OutputPath:       outPath,
		SamplesPerSecond: 10,
		Roi:              geom.Roi{X: 0, Y: 0, Width: 1, Height: 1},
		Detector:         detector.NewLumaBand(230, 12),
		Comparator:       cmp,
		OCR:              fakeEngine{},
	}
	p := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if done == nil {
		t.Fatal("expected a Done summary")
	}
	if done.Path != outPath {
		t.Fatalf("expected path %q, got %q", outPath, done.Path)
	}
}

func TestPipelineDefaultsRoiToFullFrame(t *testing.T) {
	cfg := Config{
		Source:           &fakeSource{width: 100, height: 40, count: 2, fps: 5},
		OutputPath:       t.TempDir() + "/out.srt",
		SamplesPerSecond: 5,
		Detector:         detector.NewLumaBand(230, 12),
		Comparator:       comparator.NewBitsetCover(230, 12),
		OCR:              fakeEngine{},
	}
	p := New(cfg)
	if p.cfg.Roi.Width != 1 || p.cfg.Roi.Height != 1 {
		t.Fatalf("expected default full-frame roi, got %+v", p.cfg.Roi)
	}
}
