package detector

// rect is a candidate rectangle in ROI-local pixel coordinates, before it is
// translated back into absolute frame coordinates by the caller.
type rect struct {
	x, y, width, height int
}

// bridgeGaps performs 1-D morphological closing along rows then columns:
// a run of zero pixels no longer than the gap threshold, flanked by set
// pixels on both sides, is filled in. This is the min/max sliding-window
// alternative to a distance transform the spec allows either of.
func bridgeGaps(mask []uint8, width, height int) []uint8 {
	out := make([]uint8, len(mask))
	copy(out, mask)

	for row := 0; row < height; row++ {
		offset := row * width
		closeRun(out[offset:offset+width], horizontalGapPx)
	}

	col := make([]uint8, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = out[y*width+x]
		}
		closeRun(col, verticalGapPx)
		for y := 0; y < height; y++ {
			out[y*width+x] = col[y]
		}
	}
	return out
}

// closeRun fills interior zero-runs of length <= maxGap that have a set
// pixel immediately before and after them.
func closeRun(line []uint8, maxGap int) {
	n := len(line)
	i := 0
	for i < n {
		if line[i] != 0 {
			i++
			continue
		}
		start := i
		for i < n && line[i] == 0 {
			i++
		}
		gapLen := i - start
		if start > 0 && i < n && gapLen <= maxGap {
			for j := start; j < i; j++ {
				line[j] = 1
			}
		}
	}
}

// rowProjectionBands finds maximal runs of rows whose set-pixel density
// clears rowDensityThreshold, each becoming one candidate rectangle spanning
// the union of per-row set-pixel extents. Bands shorter than minBandRows are
// dropped; bands narrower than minRowBandPx are widened symmetrically.
func rowProjectionBands(mask []uint8, width, height int) []rect {
	dense := make([]bool, height)
	left := make([]int, height)
	right := make([]int, height)
	for y := 0; y < height; y++ {
		offset := y * width
		count := 0
		l, r := -1, -1
		for x := 0; x < width; x++ {
			if mask[offset+x] != 0 {
				count++
				if l == -1 {
					l = x
				}
				r = x
			}
		}
		left[y], right[y] = l, r
		dense[y] = float64(count)/float64(maxInt(width, 1)) >= rowDensityThreshold
	}

	var bands []rect
	y := 0
	for y < height {
		if !dense[y] {
			y++
			continue
		}
		start := y
		l, r := left[y], right[y]
		for y < height && dense[y] {
			if left[y] != -1 && (l == -1 || left[y] < l) {
				l = left[y]
			}
			if right[y] > r {
				r = right[y]
			}
			y++
		}
		rows := y - start
		if rows < minBandRows || l == -1 {
			continue
		}
		w := r - l + 1
		if w < minRowBandPx {
			pad := (minRowBandPx - w + 1) / 2
			l = maxInt(0, l-pad)
			r = minInt(width-1, r+pad)
			w = r - l + 1
		}
		bands = append(bands, rect{x: l, y: start, width: w, height: rows})
	}
	return bands
}

// connectedComponents is the fallback path when row projection finds no
// bands: label 8-connected components of set pixels and return their
// bounding boxes.
func connectedComponents(mask []uint8, width, height int) []rect {
	visited := make([]bool, len(mask))
	var out []rect
	stack := make([]int, 0, 64)

	for start := 0; start < len(mask); start++ {
		if mask[start] == 0 || visited[start] {
			continue
		}
		visited[start] = true
		stack = stack[:0]
		stack = append(stack, start)

		minX, minY := start%width, start/width
		maxX, maxY := minX, minY

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			px, py := idx%width, idx/width
			if px < minX {
				minX = px
			}
			if px > maxX {
				maxX = px
			}
			if py < minY {
				minY = py
			}
			if py > maxY {
				maxY = py
			}

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := px+dx, py+dy
					if nx < 0 || nx >= width || ny < 0 || ny >= height {
						continue
					}
					nidx := ny*width + nx
					if mask[nidx] == 0 || visited[nidx] {
						continue
					}
					visited[nidx] = true
					stack = append(stack, nidx)
				}
			}
		}
		out = append(out, rect{x: minX, y: minY, width: maxX - minX + 1, height: maxY - minY + 1})
	}
	return out
}
