package detector

import (
	"testing"

	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
)

func solidFrame(width, height int, fill uint8) *frame.Decoded {
	y := make([]byte, width*height)
	for i := range y {
		y[i] = fill
	}
	f, err := frame.New(width, height, width, 0, nil, y, nil)
	if err != nil {
		panic(err)
	}
	return f
}

func fullRoi() geom.Roi {
	return geom.Roi{X: 0, Y: 0, Width: 1, Height: 1}
}

func TestLumaBandNoSubtitleOnDarkFrame(t *testing.T) {
	f := solidFrame(200, 60, 16)
	d := NewLumaBand(230, 12)

	res, err := d.Detect(f, fullRoi())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.HasSubtitle {
		t.Fatalf("expected no subtitle on uniformly dark frame, got %+v", res)
	}
	if len(res.Regions) != 0 {
		t.Fatalf("expected no regions, got %d", len(res.Regions))
	}
}

func TestLumaBandDetectsBrightBand(t *testing.T) {
	width, height := 200, 60
	f := solidFrame(width, height, 16)
	// Paint a wide, short band of bright pixels: plausible subtitle text row.
	for row := 20; row < 30; row++ {
		for col := 20; col < 180; col++ {
			f.Y[row*width+col] = 230
		}
	}

	d := NewLumaBand(230, 12)
	res, err := d.Detect(f, fullRoi())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.HasSubtitle {
		t.Fatalf("expected a subtitle band to be detected")
	}
	if len(res.Regions) == 0 {
		t.Fatal("expected at least one region")
	}

	r := res.Regions[0].Rect
	if r.Y > 20 || r.Y+r.Height < 30 {
		t.Fatalf("region %+v does not cover painted band rows [20,30)", r)
	}
	if r.X > 20 || r.X+r.Width < 180 {
		t.Fatalf("region %+v does not cover painted band cols [20,180)", r)
	}
}

func TestLumaBandRejectsTinyNoise(t *testing.T) {
	width, height := 200, 60
	f := solidFrame(width, height, 16)
	// A handful of isolated bright pixels below minArea/min population floor.
	f.Y[10*width+10] = 230
	f.Y[10*width+11] = 230

	d := NewLumaBand(230, 12)
	res, err := d.Detect(f, fullRoi())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.HasSubtitle {
		t.Fatalf("expected noise-sized mask to be rejected, got %+v", res)
	}
}

func TestLumaBandEmptyROI(t *testing.T) {
	f := solidFrame(200, 60, 16)
	d := NewLumaBand(230, 12)

	res, err := d.Detect(f, geom.Roi{X: 0, Y: 0, Width: 0, Height: 0})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.HasSubtitle || len(res.Regions) != 0 {
		t.Fatalf("expected empty result for empty ROI, got %+v", res)
	}
}
