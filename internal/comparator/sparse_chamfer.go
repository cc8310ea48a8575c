package comparator

import (
	"math"
	"sort"

	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
)

const (
	chamferMaxSamples     = 800
	chamferStride         = 2
	chamferShiftSearchPx  = 3
	chamferTruncationPx   = 8.0
	chamferMatchRadiusPx  = 3.0
	chamferSimilarityMin  = 0.60
	chamferMatchFractionM = 0.55
	chamferEdgeThreshold  = 0.15
)

type chamferPoint struct {
	x, y int
}

type chamferData struct {
	rect        geom.PixelRect
	width       int
	height      int
	points      []chamferPoint
	distance    []float32 // chamfer distance transform, row-major over width*height
	strokeWidth float32
}

// SparseChamfer samples edge points inside a morphologically opened mask
// and compares two blobs by a shift-searched truncated chamfer distance,
// penalized by stroke-width mismatch (spec.md §4.3).
type SparseChamfer struct {
	TargetLuma uint8
	Delta      uint8
}

func NewSparseChamfer(targetLuma, delta uint8) *SparseChamfer {
	return &SparseChamfer{TargetLuma: targetLuma, Delta: delta}
}

func (c *SparseChamfer) Name() string { return string(KindSparseChamfer) }

func (c *SparseChamfer) Extract(f *frame.Decoded, roi geom.Roi) (*FeatureBlob, bool) {
	rect := roi.Pixels(f.Width, f.Height)
	if rect.Empty() {
		return nil, false
	}
	w, h := rect.Width, rect.Height

	mask := make([]bool, w*h)
	lo := int(c.TargetLuma) - int(c.Delta)
	hi := int(c.TargetLuma) + int(c.Delta)
	raw := make([]float32, w*h)
	for row := 0; row < h; row++ {
		offset := f.RowOffset(rect.Y+row) + rect.X
		for col := 0; col < w; col++ {
			v := f.Y[offset+col]
			raw[row*w+col] = float32(v) / 255
			if int(v) >= lo && int(v) <= hi {
				mask[row*w+col] = true
			}
		}
	}

	opened := morphOpen(mask, w, h)

	edges := sobelMagnitude(raw, w, h)
	normalize(edges)

	var points []chamferPoint
	for y := 0; y < h; y += chamferStride {
		for x := 0; x < w; x += chamferStride {
			idx := y*w + x
			if !opened[idx] || edges[idx] < chamferEdgeThreshold {
				continue
			}
			points = append(points, chamferPoint{x: x, y: y})
			if len(points) >= chamferMaxSamples {
				break
			}
		}
		if len(points) >= chamferMaxSamples {
			break
		}
	}
	if len(points) == 0 {
		return nil, false
	}

	distance := chamferTransform(points, w, h)
	stroke := strokeWidth(opened, w, h)

	return &FeatureBlob{
		Tag: string(KindSparseChamfer),
		data: &chamferData{
			rect:        rect,
			width:       w,
			height:      h,
			points:      points,
			distance:    distance,
			strokeWidth: stroke,
		},
	}, true
}

func (c *SparseChamfer) Compare(ref, cand *FeatureBlob) Report {
	if ref == nil || cand == nil || ref.Tag != cand.Tag || ref.Tag != string(KindSparseChamfer) {
		return Report{}
	}
	a := ref.data.(*chamferData)
	b := cand.data.(*chamferData)

	var best Report
	found := false
	for dy := -chamferShiftSearchPx; dy <= chamferShiftSearchPx; dy++ {
		for dx := -chamferShiftSearchPx; dx <= chamferShiftSearchPx; dx++ {
			report, ok := chamferScoreShift(a, b, dx, dy)
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

// chamferScoreShift translates b's points by (dx,dy) in a's absolute frame
// of reference (accounting for each blob's own rect origin), then measures
// the bidirectional truncated chamfer distance using each side's
// precomputed distance transform.
func chamferScoreShift(a, b *chamferData, dx, dy int) (Report, bool) {
	offsetX := (b.rect.X + dx) - a.rect.X
	offsetY := (b.rect.Y + dy) - a.rect.Y

	var sumAB, sumBA float64
	var matched int
	total := len(a.points) + len(b.points)
	if total == 0 {
		return Report{}, false
	}

	for _, p := range a.points {
		bx, by := p.x-offsetX, p.y-offsetY
		d := float64(sampleDistance(b.distance, b.width, b.height, bx, by))
		d = math.Min(d, chamferTruncationPx)
		sumAB += d
		if d <= chamferMatchRadiusPx {
			matched++
		}
	}
	for _, p := range b.points {
		ax, ay := p.x+offsetX, p.y+offsetY
		d := float64(sampleDistance(a.distance, a.width, a.height, ax, ay))
		d = math.Min(d, chamferTruncationPx)
		sumBA += d
		if d <= chamferMatchRadiusPx {
			matched++
		}
	}

	avgDist := (sumAB + sumBA) / float64(total)
	similarity := float32(1 - avgDist/chamferTruncationPx)
	matchFraction := float32(matched) / float32(total)

	penalty := strokePenalty(a.strokeWidth, b.strokeWidth)
	similarity *= penalty

	return Report{
		Similarity:  similarity,
		SameSegment: similarity >= chamferSimilarityMin && matchFraction >= chamferMatchFractionM,
		Metrics: map[string]float32{
			"match_fraction": matchFraction,
			"stroke_penalty": penalty,
		},
	}, true
}

func sampleDistance(dist []float32, width, height, x, y int) float32 {
	if x < 0 || x >= width || y < 0 || y >= height {
		return chamferTruncationPx
	}
	return dist[y*width+x]
}

func strokePenalty(a, b float32) float32 {
	diff := absf32(a - b)
	denom := maxf32(a, b)
	if denom <= 0 {
		return 1
	}
	ratio := diff / denom
	penalty := 1 - ratio
	if penalty < 0 {
		penalty = 0
	}
	return penalty
}

// morphOpen performs binary erosion then dilation with a 3x3 structuring
// element, removing isolated speckle before edge sampling.
func morphOpen(mask []bool, w, h int) []bool {
	eroded := make([]bool, len(mask))
	at := func(x, y int) bool {
		if x < 0 || x >= w || y < 0 || y >= h {
			return false
		}
		return mask[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			all := true
			for dy := -1; dy <= 1 && all; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if !at(x+dx, y+dy) {
						all = false
						break
					}
				}
			}
			eroded[y*w+x] = all
		}
	}

	dilated := make([]bool, len(mask))
	atE := func(x, y int) bool {
		if x < 0 || x >= w || y < 0 || y >= h {
			return false
		}
		return eroded[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			any := false
			for dy := -1; dy <= 1 && !any; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if atE(x+dx, y+dy) {
						any = true
						break
					}
				}
			}
			dilated[y*w+x] = any
		}
	}
	return dilated
}

// chamferTransform builds a two-pass (forward/backward) approximate
// Euclidean distance transform from the given seed points, with weight 1
// for straight steps and sqrt(2) for diagonal steps.
func chamferTransform(points []chamferPoint, w, h int) []float32 {
	const inf = float32(1 << 20)
	dist := make([]float32, w*h)
	for i := range dist {
		dist[i] = inf
	}
	for _, p := range points {
		dist[p.y*w+p.x] = 0
	}

	at := func(x, y int) float32 {
		if x < 0 || x >= w || y < 0 || y >= h {
			return inf
		}
		return dist[y*w+x]
	}
	set := func(x, y int, val float32) {
		if val < dist[y*w+x] {
			dist[y*w+x] = val
		}
	}

	const straight = 1.0
	const diagonal = 1.41421356

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := dist[y*w+x]
			best = minf32(best, at(x-1, y)+straight)
			best = minf32(best, at(x, y-1)+straight)
			best = minf32(best, at(x-1, y-1)+diagonal)
			best = minf32(best, at(x+1, y-1)+diagonal)
			set(x, y, best)
		}
	}
	for y := h - 1; y >= 0; y-- {
		for x := w - 1; x >= 0; x-- {
			best := dist[y*w+x]
			best = minf32(best, at(x+1, y)+straight)
			best = minf32(best, at(x, y+1)+straight)
			best = minf32(best, at(x+1, y+1)+diagonal)
			best = minf32(best, at(x-1, y+1)+diagonal)
			set(x, y, best)
		}
	}
	return dist
}

// strokeWidth estimates glyph stroke thickness as the median horizontal
// run-length of foreground pixels, a cheap stand-in for a skeleton-medians
// computation.
func strokeWidth(mask []bool, w, h int) float32 {
	var runs []int
	for y := 0; y < h; y++ {
		runLen := 0
		for x := 0; x < w; x++ {
			if mask[y*w+x] {
				runLen++
				continue
			}
			if runLen > 0 {
				runs = append(runs, runLen)
			}
			runLen = 0
		}
		if runLen > 0 {
			runs = append(runs, runLen)
		}
	}
	if len(runs) == 0 {
		return 0
	}
	sort.Ints(runs)
	return float32(runs[len(runs)/2])
}

func minf32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
