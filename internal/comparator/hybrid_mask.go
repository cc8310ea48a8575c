package comparator

import (
	"math"

	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
)

const (
	hybridShiftSearchPx  = 3
	hybridSameSegmentMin = 0.78
	hybridWeightIoU      = 0.45
	hybridWeightSSIM     = 0.25
	hybridWeightEdge     = 0.20
	hybridWeightBg       = 0.10
	hybridLogisticScale  = 6.0
)

type hybridData struct {
	rect    geom.PixelRect
	width   int
	height  int
	mask    []float32 // soft membership in [0,1], row-major
	pixels  []float32 // blurred, normalized luma, row-major
	edges   []float32 // Sobel magnitude, normalized, row-major
	bgMean  float32
}

// HybridMask builds a soft logistic mask plus blurred pixel and Sobel-edge
// patches, and compares them with a small local shift search (spec.md
// §4.3).
type HybridMask struct {
	TargetLuma uint8
	Delta      uint8
}

func NewHybridMask(targetLuma, delta uint8) *HybridMask {
	return &HybridMask{TargetLuma: targetLuma, Delta: delta}
}

func (c *HybridMask) Name() string { return string(KindHybridMask) }

func (c *HybridMask) Extract(f *frame.Decoded, roi geom.Roi) (*FeatureBlob, bool) {
	rect := roi.Pixels(f.Width, f.Height)
	if rect.Empty() {
		return nil, false
	}

	w, h := rect.Width, rect.Height
	raw := make([]float32, w*h)
	for row := 0; row < h; row++ {
		offset := f.RowOffset(rect.Y+row) + rect.X
		for col := 0; col < w; col++ {
			raw[row*w+col] = float32(f.Y[offset+col]) / 255
		}
	}

	mask := make([]float32, w*h)
	target := float32(c.TargetLuma) / 255
	delta := float32(c.Delta) / 255
	var maskSum float32
	for i, v := range raw {
		dist := absf32(v-target) - delta
		soft := 1 / (1 + float32(math.Exp(float64(dist*hybridLogisticScale))))
		mask[i] = soft
		maskSum += soft
	}
	if maskSum < 1 {
		return nil, false
	}

	blurred := boxBlur3(raw, w, h)
	edges := sobelMagnitude(blurred, w, h)
	normalize(edges)

	var bgSum float32
	var bgCount float32
	for i, m := range mask {
		if m < 0.5 {
			bgSum += raw[i]
			bgCount++
		}
	}
	var bgMean float32
	if bgCount > 0 {
		bgMean = bgSum / bgCount
	}

	return &FeatureBlob{
		Tag: string(KindHybridMask),
		data: &hybridData{
			rect:   rect,
			width:  w,
			height: h,
			mask:   mask,
			pixels: blurred,
			edges:  edges,
			bgMean: bgMean,
		},
	}, true
}

func (c *HybridMask) Compare(ref, cand *FeatureBlob) Report {
	if ref == nil || cand == nil || ref.Tag != cand.Tag || ref.Tag != string(KindHybridMask) {
		return Report{}
	}
	a := ref.data.(*hybridData)
	b := cand.data.(*hybridData)

	var best Report
	found := false
	for dy := -hybridShiftSearchPx; dy <= hybridShiftSearchPx; dy++ {
		for dx := -hybridShiftSearchPx; dx <= hybridShiftSearchPx; dx++ {
			report, ok := scoreShift(a, b, dx, dy)
			if !ok {
				continue
			}
			if !found || report.Similarity > best.Similarity {
				best = report
				found = true
			}
		}
	}
	if !found {
		return Report{}
	}
	return best
}

// scoreShift evaluates one candidate (dx,dy) offset of b's rect relative to
// a's, computing the weighted metric over their overlapping region.
func scoreShift(a, b *hybridData, dx, dy int) (Report, bool) {
	bx := b.rect.X + dx
	by := b.rect.Y + dy

	x0 := maxInt(a.rect.X, bx)
	y0 := maxInt(a.rect.Y, by)
	x1 := minInt(a.rect.X+a.width, bx+b.width)
	y1 := minInt(a.rect.Y+a.height, by+b.height)
	if x1 <= x0 || y1 <= y0 {
		return Report{}, false
	}
	ow, oh := x1-x0, y1-y0
	n := ow * oh
	if n == 0 {
		return Report{}, false
	}

	var interSum, unionSum float64
	aPix := make([]float64, 0, n)
	bPix := make([]float64, 0, n)
	var edgeDot, edgeNormA, edgeNormB float64

	for row := 0; row < oh; row++ {
		aRow := (y0 - a.rect.Y + row) * a.width
		bRow := (y0 - by + row) * b.width
		for col := 0; col < ow; col++ {
			ai := aRow + (x0 - a.rect.X + col)
			bi := bRow + (x0 - bx + col)

			am, bm := float64(a.mask[ai]), float64(b.mask[bi])
			interSum += math.Min(am, bm)
			unionSum += math.Max(am, bm)

			aPix = append(aPix, float64(a.pixels[ai]))
			bPix = append(bPix, float64(b.pixels[bi]))

			ae, be := float64(a.edges[ai]), float64(b.edges[bi])
			edgeDot += ae * be
			edgeNormA += ae * ae
			edgeNormB += be * be
		}
	}

	iou := float32(1.0)
	if unionSum > 0 {
		iou = float32(interSum / unionSum)
	}

	ssim := float32(ssimGlobal(aPix, bPix))

	var edgeSim float32
	if edgeNormA > 0 && edgeNormB > 0 {
		edgeSim = float32(edgeDot / (math.Sqrt(edgeNormA) * math.Sqrt(edgeNormB)))
	}

	bgGap := float32(1) - absf32(a.bgMean-b.bgMean)

	score := hybridWeightIoU*iou + hybridWeightSSIM*ssim + hybridWeightEdge*maxf32(edgeSim, 0) + hybridWeightBg*bgGap

	return Report{
		Similarity:  score,
		SameSegment: score >= hybridSameSegmentMin,
		Metrics: map[string]float32{
			"iou":   iou,
			"ssim":  ssim,
			"edge":  edgeSim,
			"bg":    bgGap,
			"score": score,
		},
	}, true
}

func boxBlur3(src []float32, w, h int) []float32 {
	out := make([]float32, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float32
			var count float32
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					sum += src[ny*w+nx]
					count++
				}
			}
			out[y*w+x] = sum / count
		}
	}
	return out
}

func sobelMagnitude(src []float32, w, h int) []float32 {
	out := make([]float32, len(src))
	at := func(x, y int) float32 {
		if x < 0 || x >= w || y < 0 || y >= h {
			return 0
		}
		return src[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) + at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) + at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			out[y*w+x] = float32(math.Hypot(float64(gx), float64(gy)))
		}
	}
	return out
}

func normalize(vals []float32) {
	var max float32
	for _, v := range vals {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return
	}
	for i := range vals {
		vals[i] /= max
	}
}

// ssimGlobal is a simplified single-window SSIM over the entire overlap
// region, sufficient to rank candidate shifts rather than reproduce a
// reference SSIM implementation exactly.
func ssimGlobal(a, b []float64) float64 {
	n := float64(len(a))
	if n == 0 {
		return 0
	}
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= n
	meanB /= n

	var varA, varB, covar float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		varA += da * da
		varB += db * db
		covar += da * db
	}
	varA /= n
	varB /= n
	covar /= n

	const c1 = 0.0001
	const c2 = 0.0009
	num := (2*meanA*meanB + c1) * (2*covar + c2)
	den := (meanA*meanA + meanB*meanB + c1) * (varA + varB + c2)
	if den == 0 {
		return 0
	}
	return num / den
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func maxf32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
