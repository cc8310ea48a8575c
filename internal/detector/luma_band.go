package detector

import (
	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
)

// Tunables named directly after spec.md §4.2's canonical luma-band
// detector. Kept as package constants rather than a config struct because
// nothing in this pipeline needs to vary them per call.
const (
	minArea             = 300
	maxAreaRatio        = 0.35
	minAspectRatio      = 2.0
	vmrGrid             = 4
	yMergeTolerancePx   = 10
	yOverlapRatio       = 0.30
	iouMergeThreshold   = 0.15
	nearGapPx           = 16
	maxOutputRegions    = 4
	maskDensityFloor    = 0.0015
	maskPopulationRatio = 0.0004
	minMaskPopulation   = 128
	rowDensityThreshold = 0.2
	minBandRows         = 1
	minRowBandPx        = 12
	horizontalGapPx     = 100
	verticalGapPx       = 10
)

// LumaBand is the spec's canonical fast presence detector: threshold the
// ROI to a bright-text mask, bridge small gaps, project rows into bands (or
// fall back to connected components), then filter/score/merge candidate
// rectangles.
type LumaBand struct {
	TargetLuma uint8
	Delta      uint8
}

// NewLumaBand constructs the detector with the given threshold parameters.
func NewLumaBand(targetLuma, delta uint8) *LumaBand {
	return &LumaBand{TargetLuma: targetLuma, Delta: delta}
}

// Detect implements Detector.
func (d *LumaBand) Detect(f *frame.Decoded, roi geom.Roi) (Result, error) {
	rect := roi.Pixels(f.Width, f.Height)
	if rect.Empty() {
		return Empty(), nil
	}

	mask, population := d.buildMask(f, rect)
	area := rect.Width * rect.Height

	densityFloor := int(maskDensityFloor * float64(area))
	absFloor := int(maskPopulationRatio * float64(area))
	if absFloor < minMaskPopulation {
		absFloor = minMaskPopulation
	}
	if population < densityFloor && population < absFloor {
		return Empty(), nil
	}

	bridged := bridgeGaps(mask, rect.Width, rect.Height)

	candidates := rowProjectionBands(bridged, rect.Width, rect.Height)
	if len(candidates) == 0 {
		candidates = connectedComponents(bridged, rect.Width, rect.Height)
	}

	integral := buildIntegral(bridged, rect.Width, rect.Height)

	frameArea := f.Width * f.Height
	var scored []Region
	for _, c := range candidates {
		rw, rh := c.width, c.height
		if rw <= 0 || rh <= 0 {
			continue
		}
		carea := rw * rh
		if carea < minArea {
			continue
		}
		if frameArea > 0 && float64(carea) > maxAreaRatio*float64(frameArea) {
			continue
		}
		aspect := float32(rw) / float32(maxInt(rh, 1))
		if aspect < minAspectRatio {
			continue
		}

		fill := integralFill(integral, rect.Width, c.x, c.y, rw, rh)
		vmr := varianceToMeanRatio(integral, rect.Width, c.x, c.y, rw, rh)
		score := fill - 0.1*vmr

		scored = append(scored, Region{
			Rect: geom.PixelRect{
				X:      rect.X + c.x,
				Y:      rect.Y + c.y,
				Width:  rw,
				Height: rh,
			},
			Score: score,
		})
	}

	merged := mergeRegions(scored)
	if len(merged) > maxOutputRegions {
		merged = topByScore(merged, maxOutputRegions)
	}

	if len(merged) == 0 {
		return Empty(), nil
	}
	maxScore := merged[0].Score
	for _, r := range merged[1:] {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	return Result{HasSubtitle: true, MaxScore: maxScore, Regions: merged}, nil
}

// buildMask thresholds the ROI to {0,1} using target_luma ± delta. The mask
// is scalar row-by-row; SIMD vector paths are an optional implementation
// choice the spec doesn't mandate.
func (d *LumaBand) buildMask(f *frame.Decoded, rect geom.PixelRect) ([]uint8, int) {
	mask := make([]uint8, rect.Width*rect.Height)
	lo := int(d.TargetLuma) - int(d.Delta)
	hi := int(d.TargetLuma) + int(d.Delta)
	population := 0
	for row := 0; row < rect.Height; row++ {
		srcOffset := f.RowOffset(rect.Y+row) + rect.X
		dstOffset := row * rect.Width
		for col := 0; col < rect.Width; col++ {
			v := int(f.Y[srcOffset+col])
			if v >= lo && v <= hi {
				mask[dstOffset+col] = 1
				population++
			}
		}
	}
	return mask, population
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
