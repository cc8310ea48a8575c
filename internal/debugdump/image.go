package debugdump

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/subtitlefast/subtitlefast/internal/frame"
)

var overlayColor = color.RGBA{R: 255, G: 64, B: 64, A: 255}

// writeFrame extracts f's luma plane into a tightly packed buffer, overlays
// rec's regions, and encodes the result per d.format. A minimal WebP encoder
// is not part of the standard library and no such dependency appears
// elsewhere in this module's stack, so WebP dumps are out of scope (see
// DESIGN.md).
func (d *Dumper) writeFrame(f *frame.Decoded, rec Record) error {
	if f.Width <= 0 || f.Height <= 0 {
		return nil
	}

	luma := make([]byte, f.Width*f.Height)
	for row := 0; row < f.Height; row++ {
		src := f.RowOffset(row)
		copy(luma[row*f.Width:(row+1)*f.Width], f.Y[src:src+f.Width])
	}

	rects := regionsToRects(rec.Regions, f.Width, f.Height)
	path := filepath.Join(d.imageDir, frameFilename(f.FrameIndex, d.format))

	switch d.format {
	case ImageYUV:
		if len(rects) > 0 {
			drawRectanglesLuma(luma, f.Width, f.Height, rects)
		}
		if err := os.WriteFile(path, luma, 0o644); err != nil {
			return &Error{Msg: "write yuv frame dump", Err: err}
		}
		return nil
	case ImagePNG, ImageJPEG:
		img := lumaToRGBA(luma, f.Width, f.Height)
		if len(rects) > 0 {
			drawRectanglesRGBA(img, rects)
		}
		out, err := os.Create(path)
		if err != nil {
			return &Error{Msg: "create image frame dump", Err: err}
		}
		defer out.Close()
		if d.format == ImageJPEG {
			err = jpeg.Encode(out, img, &jpeg.Options{Quality: d.quality})
		} else {
			err = png.Encode(out, img)
		}
		if err != nil {
			return &Error{Msg: "encode image frame dump", Err: err}
		}
		return nil
	default:
		return nil
	}
}

type rect struct {
	x0, y0, x1, y1 int
}

// regionsToRects clamps Region rectangles to the frame bounds, dropping any
// that fall entirely outside it.
func regionsToRects(regions []Region, width, height int) []rect {
	var rects []rect
	if width <= 0 || height <= 0 {
		return rects
	}
	for _, r := range regions {
		x0, y0 := r.X, r.Y
		x1, y1 := r.X+r.Width, r.Y+r.Height
		if x1 <= 0 || y1 <= 0 {
			continue
		}
		if x0 < 0 {
			x0 = 0
		}
		if y0 < 0 {
			y0 = 0
		}
		if x1 > width {
			x1 = width
		}
		if y1 > height {
			y1 = height
		}
		if x0 >= width || y0 >= height || x1 <= x0 || y1 <= y0 {
			continue
		}
		rects = append(rects, rect{x0: x0, y0: y0, x1: x1 - 1, y1: y1 - 1})
	}
	return rects
}

func rectThickness(r rect) int {
	span := r.x1 - r.x0
	if dy := r.y1 - r.y0; dy < span {
		span = dy
	}
	if span < 1 {
		span = 1
	}
	if span > 2 {
		span = 2
	}
	return span
}

func drawRectanglesLuma(buf []byte, width, height int, rects []rect) {
	for _, r := range rects {
		thickness := rectThickness(r)
		for offset := 0; offset < thickness; offset++ {
			top := r.y0 + offset
			bottom := r.y1 - offset
			if top > r.y1 {
				break
			}
			for x := r.x0; x <= r.x1; x++ {
				if top < height {
					buf[top*width+x] = 255
				}
				if bottom >= 0 && bottom < height {
					buf[bottom*width+x] = 255
				}
			}

			left := r.x0 + offset
			right := r.x1 - offset
			if left > r.x1 {
				break
			}
			for y := r.y0; y <= r.y1; y++ {
				if y < height {
					buf[y*width+left] = 255
					if right < width {
						buf[y*width+right] = 255
					}
				}
			}
		}
	}
}

func lumaToRGBA(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := buf[y*width+x]
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func drawRectanglesRGBA(img *image.RGBA, rects []rect) {
	bounds := img.Bounds()
	for _, r := range rects {
		thickness := rectThickness(r)
		for offset := 0; offset < thickness; offset++ {
			top := r.y0 + offset
			bottom := r.y1 - offset
			if top > r.y1 {
				break
			}
			for x := r.x0; x <= r.x1; x++ {
				if bounds.Min.Y <= top && top < bounds.Max.Y {
					img.SetRGBA(x, top, overlayColor)
				}
				if bottom >= 0 && bottom < bounds.Max.Y {
					img.SetRGBA(x, bottom, overlayColor)
				}
			}

			left := r.x0 + offset
			right := r.x1 - offset
			if left > r.x1 {
				break
			}
			for y := r.y0; y <= r.y1; y++ {
				if y < bounds.Max.Y {
					img.SetRGBA(left, y, overlayColor)
					if right < bounds.Max.X {
						img.SetRGBA(right, y, overlayColor)
					}
				}
			}
		}
	}
}
