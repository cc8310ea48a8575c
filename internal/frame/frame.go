// Package frame defines the immutable decoded-frame type that flows through
// the subtitle-mining pipeline, from the decoder through sampling, detection,
// segmentation and OCR. Frames are shared read-only by pointer; the garbage
// collector reclaims them once the last stage holding a reference drops it,
// mirroring how the teacher pipeline shares its media.VideoFrame structs.
package frame

import (
	"fmt"
	"time"
)

// Decoded is a single decoded video frame, immutable once constructed. Only
// the Y (luma) plane is consumed by this pipeline; chroma planes are carried
// for completeness but never read.
type Decoded struct {
	Width      int
	Height     int
	LumaStride int
	FrameIndex uint64
	Timestamp  *time.Duration // nil when the source has no wall-clock timestamp

	Y      []byte // luma plane, length >= LumaStride*(Height-1)+Width
	Chroma []byte // optional, opaque to this pipeline
}

// New validates and constructs a Decoded frame. The Y slice is retained by
// reference, not copied; callers must not mutate it afterward.
func New(width, height, lumaStride int, frameIndex uint64, timestamp *time.Duration, y []byte, chroma []byte) (*Decoded, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frame: invalid dimensions %dx%d", width, height)
	}
	if lumaStride < width {
		return nil, fmt.Errorf("frame: luma stride %d smaller than width %d", lumaStride, width)
	}
	required := lumaStride * (height - 1) + width
	if len(y) < required {
		return nil, fmt.Errorf("frame: luma plane too short: have %d, need %d", len(y), required)
	}
	return &Decoded{
		Width:      width,
		Height:     height,
		LumaStride: lumaStride,
		FrameIndex: frameIndex,
		Timestamp:  timestamp,
		Y:          y,
		Chroma:     chroma,
	}, nil
}

// RowOffset returns the byte offset of row r within Y.
func (d *Decoded) RowOffset(r int) int {
	return r * d.LumaStride
}

// HistoryRecord pins one retained non-sampled frame inside a FrameHistory
// snapshot.
type HistoryRecord struct {
	FrameIndex uint64
	Frame      *Decoded
}

// History is an immutable, strictly-increasing-by-index ordered snapshot of
// recently retained non-sampled frames, captured at the moment a sample was
// emitted. Every index is strictly less than the owning sample's index.
type History struct {
	records []HistoryRecord
}

// NewHistory builds a History from records already known to be sorted
// ascending by FrameIndex with no duplicates; callers (the sampler pool) are
// responsible for that invariant.
func NewHistory(records []HistoryRecord) History {
	cp := make([]HistoryRecord, len(records))
	copy(cp, records)
	return History{records: cp}
}

// Records returns the ordered (ascending FrameIndex) snapshot contents.
func (h History) Records() []HistoryRecord {
	return h.records
}

// Len reports the number of retained frames in the snapshot.
func (h History) Len() int {
	return len(h.records)
}
