package detector

// buildIntegral builds a summed-area table over the bridged mask so that
// rectangle fill ratios and sub-grid sums can be computed in O(1) each.
func buildIntegral(mask []uint8, width, height int) []int32 {
	integral := make([]int32, (width+1)*(height+1))
	stride := width + 1
	for y := 0; y < height; y++ {
		var rowSum int32
		for x := 0; x < width; x++ {
			rowSum += int32(mask[y*width+x])
			integral[(y+1)*stride+(x+1)] = integral[y*stride+(x+1)] + rowSum
		}
	}
	return integral
}

func integralSum(integral []int32, width, x, y, w, h int) int32 {
	stride := width + 1
	x0, y0 := x, y
	x1, y1 := x+w, y+h
	return integral[y1*stride+x1] - integral[y0*stride+x1] - integral[y1*stride+x0] + integral[y0*stride+x0]
}

// integralFill returns the fraction of bright pixels within the rectangle.
func integralFill(integral []int32, width, x, y, w, h int) float32 {
	area := w * h
	if area <= 0 {
		return 0
	}
	return float32(integralSum(integral, width, x, y, w, h)) / float32(area)
}

// varianceToMeanRatio splits the rectangle into a vmrGrid x vmrGrid cell
// grid, computes each cell's fill ratio, and returns variance/mean across
// cells. A subtitle glyph run fills unevenly cell-to-cell (high VMR); a
// uniform bright patch (sky, whites) fills evenly (low VMR), which is why
// the detector subtracts a VMR penalty from the raw fill score.
func varianceToMeanRatio(integral []int32, width, x, y, w, h int) float32 {
	if w < vmrGrid || h < vmrGrid {
		return 0
	}
	cellW := w / vmrGrid
	cellH := h / vmrGrid
	if cellW == 0 || cellH == 0 {
		return 0
	}

	var values []float32
	for gy := 0; gy < vmrGrid; gy++ {
		for gx := 0; gx < vmrGrid; gx++ {
			cx := x + gx*cellW
			cy := y + gy*cellH
			cw := cellW
			ch := cellH
			if gx == vmrGrid-1 {
				cw = w - gx*cellW
			}
			if gy == vmrGrid-1 {
				ch = h - gy*cellH
			}
			values = append(values, integralFill(integral, width, cx, cy, cw, ch))
		}
	}

	var sum float32
	for _, v := range values {
		sum += v
	}
	mean := sum / float32(len(values))
	if mean <= 0 {
		return 0
	}
	var variance float32
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float32(len(values))
	return variance / mean
}
