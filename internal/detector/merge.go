package detector

import (
	"sort"

	"github.com/subtitlefast/subtitlefast/internal/geom"
)

// mergeRegions groups scored candidates into text lines by vertical
// proximity, then merges horizontally overlapping or near-adjacent
// candidates within each line into a single rectangle.
func mergeRegions(regions []Region) []Region {
	if len(regions) == 0 {
		return nil
	}

	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool {
		return centerY(sorted[i].Rect) < centerY(sorted[j].Rect)
	})

	var lines [][]Region
	for _, r := range sorted {
		placed := false
		for i, line := range lines {
			if sameLine(line[0].Rect, r.Rect) {
				lines[i] = append(lines[i], r)
				placed = true
				break
			}
		}
		if !placed {
			lines = append(lines, []Region{r})
		}
	}

	var out []Region
	for _, line := range lines {
		out = append(out, mergeLine(line)...)
	}
	return out
}

func centerY(r geom.PixelRect) float32 {
	return float32(r.Y) + float32(r.Height)/2
}

func sameLine(a, b geom.PixelRect) bool {
	if abs32(centerY(a)-centerY(b)) <= yMergeTolerancePx {
		return true
	}
	return a.VerticalOverlap(b) && overlapRatio(a, b) >= yOverlapRatio
}

func overlapRatio(a, b geom.PixelRect) float32 {
	aTop, aBottom := a.Y, a.Y+a.Height
	bTop, bBottom := b.Y, b.Y+b.Height
	top := maxInt(aTop, bTop)
	bottom := minInt(aBottom, bBottom)
	if bottom <= top {
		return 0
	}
	overlap := float32(bottom - top)
	shorter := float32(minInt(a.Height, b.Height))
	if shorter <= 0 {
		return 0
	}
	return overlap / shorter
}

// mergeLine sorts a line's candidates left-to-right and unions consecutive
// ones whose boxes overlap (IoU >= iouMergeThreshold) or sit within
// nearGapPx of each other horizontally.
func mergeLine(line []Region) []Region {
	sort.Slice(line, func(i, j int) bool { return line[i].Rect.X < line[j].Rect.X })

	var merged []Region
	cur := line[0]
	for _, next := range line[1:] {
		if shouldJoin(cur.Rect, next.Rect) {
			cur = Region{Rect: union(cur.Rect, next.Rect), Score: maxf32(cur.Score, next.Score)}
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	merged = append(merged, cur)
	return merged
}

func shouldJoin(a, b geom.PixelRect) bool {
	if a.IoU(b) >= iouMergeThreshold {
		return true
	}
	gap := b.X - (a.X + a.Width)
	return gap <= nearGapPx
}

func union(a, b geom.PixelRect) geom.PixelRect {
	x0 := minInt(a.X, b.X)
	y0 := minInt(a.Y, b.Y)
	x1 := maxInt(a.X+a.Width, b.X+b.Width)
	y1 := maxInt(a.Y+a.Height, b.Y+b.Height)
	return geom.PixelRect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

func topByScore(regions []Region, n int) []Region {
	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func abs32(v float32) float32 {
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
