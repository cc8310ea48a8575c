// Package geom holds the small rectangle types shared by the detector,
// comparator and segmenter stages: a normalized region of interest and its
// pixel-space counterpart.
package geom

import "fmt"

// Roi is a normalized rectangle in [0,1] relative to frame dimensions.
type Roi struct {
	X, Y, Width, Height float32
}

// Validate checks the invariants spec.md §3 requires of a RoiConfig.
func (r Roi) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("geom: roi must have positive width/height, got %+v", r)
	}
	if r.X+r.Width > 1.0001 || r.Y+r.Height > 1.0001 {
		return fmt.Errorf("geom: roi exceeds unit square: %+v", r)
	}
	if r.X < 0 || r.Y < 0 {
		return fmt.Errorf("geom: roi has negative origin: %+v", r)
	}
	return nil
}

// Pixels converts the normalized rectangle to absolute pixel coordinates,
// clamped to the frame bounds.
func (r Roi) Pixels(frameWidth, frameHeight int) PixelRect {
	x0 := clampInt(int(r.X*float32(frameWidth)), 0, frameWidth)
	y0 := clampInt(int(r.Y*float32(frameHeight)), 0, frameHeight)
	x1 := clampInt(int((r.X+r.Width)*float32(frameWidth)), x0, frameWidth)
	y1 := clampInt(int((r.Y+r.Height)*float32(frameHeight)), y0, frameHeight)
	return PixelRect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// PixelRect is an absolute-pixel rectangle, axis-aligned.
type PixelRect struct {
	X, Y, Width, Height int
}

// Empty reports whether the rectangle has zero area.
func (p PixelRect) Empty() bool {
	return p.Width <= 0 || p.Height <= 0
}

// Area returns width*height.
func (p PixelRect) Area() int {
	if p.Empty() {
		return 0
	}
	return p.Width * p.Height
}

// Roi converts a pixel rectangle back to normalized coordinates relative to
// the given frame size.
func (p PixelRect) Roi(frameWidth, frameHeight int) Roi {
	fw := float32(frameWidth)
	fh := float32(frameHeight)
	if fw <= 0 {
		fw = 1
	}
	if fh <= 0 {
		fh = 1
	}
	x0 := clamp32(float32(p.X)/fw, 0, 1)
	y0 := clamp32(float32(p.Y)/fh, 0, 1)
	x1 := clamp32(float32(p.X+p.Width)/fw, x0, 1)
	y1 := clamp32(float32(p.Y+p.Height)/fh, y0, 1)
	return Roi{X: x0, Y: y0, Width: maxf(x1-x0, 0), Height: maxf(y1-y0, 0)}
}

// VerticalOverlap reports whether two pixel rectangles' vertical extents
// intersect at all — used by the segmenter to gate region/tracker matches.
func (p PixelRect) VerticalOverlap(other PixelRect) bool {
	aTop, aBottom := p.Y, p.Y+p.Height
	bTop, bBottom := other.Y, other.Y+other.Height
	return aTop < bBottom && bTop < aBottom
}

// IoU computes intersection-over-union of two pixel rectangles.
func (p PixelRect) IoU(other PixelRect) float32 {
	ix0 := maxInt(p.X, other.X)
	iy0 := maxInt(p.Y, other.Y)
	ix1 := minInt(p.X+p.Width, other.X+other.Width)
	iy1 := minInt(p.Y+p.Height, other.Y+other.Height)
	if ix1 <= ix0 || iy1 <= iy0 {
		return 0
	}
	inter := float32((ix1 - ix0) * (iy1 - iy0))
	union := float32(p.Area() + other.Area())
	if union <= 0 {
		return 0
	}
	return inter / (union - inter)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
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
