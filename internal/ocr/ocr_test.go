package ocr

import (
	"context"
	"testing"
	"time"

	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
	"github.com/subtitlefast/subtitlefast/internal/segmenter"
)

func confPtr(v float32) *float32 { return &v }

func TestAssembleTextMergesLinesByYGap(t *testing.T) {
	texts := []RecognizedText{
		{Region: OcrRegion{X: 50, Y: 100}, Text: "world", Confidence: confPtr(0.8)},
		{Region: OcrRegion{X: 0, Y: 100}, Text: "hello", Confidence: confPtr(0.9)},
		{Region: OcrRegion{X: 0, Y: 140}, Text: "second", Confidence: confPtr(0.7)},
	}
	text, confidence := assembleText(texts)
	if text != "hello world\nsecond" {
		t.Fatalf("unexpected assembled text: %q", text)
	}
	if confidence == nil {
		t.Fatal("expected non-nil confidence")
	}
	want := float32(0.8)
	if diff := *confidence - want; diff > 0.01 || diff < -0.01 {
		t.Fatalf("expected confidence ~%v, got %v", want, *confidence)
	}
}

func TestAssembleTextEmptyInput(t *testing.T) {
	text, confidence := assembleText(nil)
	if text != "" || confidence != nil {
		t.Fatalf("expected empty result for no texts, got %q %v", text, confidence)
	}
}

func TestAssembleTextDropsBlankSpans(t *testing.T) {
	texts := []RecognizedText{{Region: OcrRegion{X: 0, Y: 0}, Text: "   "}}
	text, confidence := assembleText(texts)
	if text != "" || confidence != nil {
		t.Fatalf("expected blank span to assemble to nothing, got %q %v", text, confidence)
	}
}

func TestDeriveRegionFallsBackToFullFrame(t *testing.T) {
	region := deriveRegion(geom.PixelRect{X: 900, Y: 900, Width: 10, Height: 10}, 640, 480)
	if region != (OcrRegion{X: 0, Y: 0, Width: 640, Height: 480}) {
		t.Fatalf("expected full-frame fallback, got %+v", region)
	}
}

func TestDeriveRegionClampsAndExpands(t *testing.T) {
	region := deriveRegion(geom.PixelRect{X: 630, Y: 470, Width: 50, Height: 50}, 640, 480)
	if region.X+region.Width > 640 || region.Y+region.Height > 480 {
		t.Fatalf("region exceeds frame bounds: %+v", region)
	}
	if region.Width <= 0 || region.Height <= 0 {
		t.Fatalf("expected non-degenerate region, got %+v", region)
	}
}

type fakeEngine struct {
	response OcrResponse
	err      error
	calls    int
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(ctx context.Context, plane LumaPlane, regions []OcrRegion) (OcrResponse, error) {
	f.calls++
	return f.response, f.err
}

func testFrame(t *testing.T) *frame.Decoded {
	t.Helper()
	y := make([]byte, 640*480)
	f, err := frame.New(640, 480, 640, 0, nil, y, nil)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

func TestStageEmitsSubtitleForNonEmptyRecognition(t *testing.T) {
	engine := &fakeEngine{response: OcrResponse{Texts: []RecognizedText{
		{Region: OcrRegion{X: 0, Y: 0}, Text: "hello", Confidence: confPtr(0.9)},
	}}}
	stage := NewStage(engine)

	in := make(chan segmenter.Result, 1)
	interval := segmenter.SubtitleInterval{
		StartTime:           0,
		EndTime:             time.Second,
		Roi:                 geom.PixelRect{X: 10, Y: 10, Width: 100, Height: 20},
		RepresentativeFrame: testFrame(t),
	}
	in <- segmenter.Result{Interval: &interval}
	close(in)

	out := stage.Run(context.Background(), in)
	res, ok := <-out
	if !ok {
		t.Fatal("expected one result")
	}
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Subtitle == nil || res.Subtitle.Text != "hello" {
		t.Fatalf("expected subtitle with text hello, got %+v", res.Subtitle)
	}
	if _, ok := <-out; ok {
		t.Fatal("expected channel to close after one item")
	}
}

func TestStageCountsEmptyRecognitionWithoutEmitting(t *testing.T) {
	engine := &fakeEngine{response: OcrResponse{}}
	stage := NewStage(engine)

	in := make(chan segmenter.Result, 1)
	interval := segmenter.SubtitleInterval{RepresentativeFrame: testFrame(t)}
	in <- segmenter.Result{Interval: &interval}
	close(in)

	out := stage.Run(context.Background(), in)
	if _, ok := <-out; ok {
		t.Fatal("expected no result for empty recognition")
	}
	if stage.EmptyCount() != 1 {
		t.Fatalf("expected empty count 1, got %d", stage.EmptyCount())
	}
}

func TestStagePropagatesUpstreamError(t *testing.T) {
	stage := NewStage(&fakeEngine{})
	in := make(chan segmenter.Result, 1)
	in <- segmenter.Result{Err: context.DeadlineExceeded}
	close(in)

	out := stage.Run(context.Background(), in)
	res, ok := <-out
	if !ok || res.Err == nil {
		t.Fatal("expected propagated error result")
	}
}

func TestResolveLocatorPassesThroughLocalPath(t *testing.T) {
	got, err := resolveLocator(context.Background(), "/models/recognizer.onnx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/models/recognizer.onnx" {
		t.Fatalf("expected local path unchanged, got %q", got)
	}
}

func TestPlatformEngineReportsUnsupported(t *testing.T) {
	e := NewPlatformEngine()
	_, err := e.Recognize(context.Background(), LumaPlane{}, nil)
	var ocrErr *Error
	if err == nil {
		t.Fatal("expected an error")
	}
	if !asOcrError(err, &ocrErr) || ocrErr.Kind != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func asOcrError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
