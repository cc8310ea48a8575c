package comparator

import (
	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
)

const (
	bitsetTolerancePx   = 2
	bitsetMissThreshold = 0.035
)

type bitsetData struct {
	frameWidth int
	originY    int
	rows       []bitRow
	dilated    []bitRow
}

// BitsetCover packs a threshold mask into row-wise 64-bit words and compares
// two masks by dilated-bit coverage (spec.md §4.3).
type BitsetCover struct {
	TargetLuma uint8
	Delta      uint8
}

func NewBitsetCover(targetLuma, delta uint8) *BitsetCover {
	return &BitsetCover{TargetLuma: targetLuma, Delta: delta}
}

func (c *BitsetCover) Name() string { return string(KindBitsetCover) }

func (c *BitsetCover) Extract(f *frame.Decoded, roi geom.Roi) (*FeatureBlob, bool) {
	rect := roi.Pixels(f.Width, f.Height)
	if rect.Empty() {
		return nil, false
	}

	top := maxInt(0, rect.Y-bitsetTolerancePx)
	bottom := minInt(f.Height, rect.Y+rect.Height+bitsetTolerancePx)
	if bottom <= top {
		return nil, false
	}

	lo := int(c.TargetLuma) - int(c.Delta)
	hi := int(c.TargetLuma) + int(c.Delta)

	rows := make([]bitRow, bottom-top)
	population := 0
	for y := top; y < bottom; y++ {
		row := newBitRow(f.Width)
		offset := f.RowOffset(y)
		for x := rect.X; x < rect.X+rect.Width; x++ {
			v := int(f.Y[offset+x])
			if v >= lo && v <= hi {
				row.set(x)
				if y >= rect.Y && y < rect.Y+rect.Height {
					population++
				}
			}
		}
		rows[y-top] = row
	}

	if population == 0 {
		return nil, false
	}

	dilated := dilateRows(rows, bitsetTolerancePx)

	return &FeatureBlob{
		Tag: string(KindBitsetCover),
		data: &bitsetData{
			frameWidth: f.Width,
			originY:    top,
			rows:       rows,
			dilated:    dilated,
		},
	}, true
}

func (c *BitsetCover) Compare(ref, cand *FeatureBlob) Report {
	if ref == nil || cand == nil || ref.Tag != cand.Tag || ref.Tag != string(KindBitsetCover) {
		return Report{}
	}
	a := ref.data.(*bitsetData)
	b := cand.data.(*bitsetData)

	words := (a.frameWidth + 63) / 64
	yStart := minInt(a.originY, b.originY)
	yEnd := maxInt(a.originY+len(a.rows), b.originY+len(b.rows))

	var miss, union uint64
	for y := yStart; y < yEnd; y++ {
		aBits := rowAt(a.rows, a.originY, y, words)
		aDil := rowAt(a.dilated, a.originY, y, words)
		bBits := rowAt(b.rows, b.originY, y, words)
		bDil := rowAt(b.dilated, b.originY, y, words)

		for w := 0; w < len(aBits); w++ {
			miss += popcount(aBits[w] &^ bDil[w])
			miss += popcount(bBits[w] &^ aDil[w])
			union += popcount(aBits[w] | bBits[w])
		}
	}

	if union == 0 {
		return Report{Similarity: 1, SameSegment: true, Metrics: map[string]float32{"miss_ratio": 0}}
	}
	ratio := float32(miss) / float32(union)
	return Report{
		Similarity:  1 - ratio,
		SameSegment: ratio <= bitsetMissThreshold,
		Metrics:     map[string]float32{"miss_ratio": ratio},
	}
}
