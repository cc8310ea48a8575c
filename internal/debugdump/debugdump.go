// Package debugdump writes the optional per-run debug artifacts spec.md §6
// describes: a JSON array of per-frame detection records, and optionally one
// image file per frame with detected regions overlaid.
package debugdump

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/subtitlefast/subtitlefast/internal/detector"
	"github.com/subtitlefast/subtitlefast/internal/frame"
)

// ImageFormat selects how (or whether) per-frame images are written
// alongside the JSON record array.
type ImageFormat int

const (
	// ImageNone disables image dumps; only the JSON record array is written.
	ImageNone ImageFormat = iota
	ImageYUV
	ImagePNG
	ImageJPEG
)

// Region is one detected rectangle, recorded in pixel space.
type Region struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Score  float32 `json:"score"`
}

// Record is one frame's detection outcome, shaped for JSON export.
type Record struct {
	FrameIndex     uint64   `json:"frame_index"`
	TimestampSecs  *float64 `json:"timestamp_secs,omitempty"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	HasSubtitle    bool     `json:"has_subtitle"`
	MaxScore       float32  `json:"max_score"`
	Regions        []Region `json:"regions,omitempty"`
}

// Error reports a dump I/O or encoding failure.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "debugdump: " + e.Msg + ": " + e.Err.Error()
	}
	return "debugdump: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Dumper accumulates per-frame Records and, if an image directory is
// configured, writes one annotated image per frame as it is recorded.
type Dumper struct {
	jsonPath string
	imageDir string
	format   ImageFormat
	quality  int

	records []Record
}

// New builds a Dumper. jsonPath is required; imageDir may be empty to skip
// image dumps entirely, in which case format and quality are ignored.
func New(jsonPath, imageDir string, format ImageFormat, quality int) (*Dumper, error) {
	if jsonPath == "" {
		return nil, &Error{Msg: "json output path is required"}
	}
	if imageDir != "" {
		if err := os.MkdirAll(imageDir, 0o755); err != nil {
			return nil, &Error{Msg: "create image dump directory", Err: err}
		}
	}
	if quality <= 0 {
		quality = 85
	}
	return &Dumper{jsonPath: jsonPath, imageDir: imageDir, format: format, quality: quality}, nil
}

// Record appends f's detection outcome to the in-memory record set and, if
// image dumps are enabled, writes the annotated frame to disk.
func (d *Dumper) Record(f *frame.Decoded, det detector.Result) error {
	rec := Record{
		FrameIndex:  f.FrameIndex,
		Width:       f.Width,
		Height:      f.Height,
		HasSubtitle: det.HasSubtitle,
		MaxScore:    det.MaxScore,
	}
	if f.Timestamp != nil {
		secs := f.Timestamp.Seconds()
		rec.TimestampSecs = &secs
	}
	for _, r := range det.Regions {
		rec.Regions = append(rec.Regions, Region{
			X:      r.Rect.X,
			Y:      r.Rect.Y,
			Width:  r.Rect.Width,
			Height: r.Rect.Height,
			Score:  r.Score,
		})
	}
	d.records = append(d.records, rec)

	if d.imageDir == "" || d.format == ImageNone {
		return nil
	}
	return d.writeFrame(f, rec)
}

// Finish writes the accumulated JSON record array to jsonPath. Call once
// after the last Record.
func (d *Dumper) Finish() error {
	data, err := json.MarshalIndent(d.records, "", "  ")
	if err != nil {
		return &Error{Msg: "marshal debug records", Err: err}
	}
	if dir := filepath.Dir(d.jsonPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &Error{Msg: "create debug output directory", Err: err}
		}
	}
	if err := os.WriteFile(d.jsonPath, data, 0o644); err != nil {
		return &Error{Msg: "write debug records", Err: err}
	}
	return nil
}

// Count reports how many records have been accumulated so far.
func (d *Dumper) Count() int {
	return len(d.records)
}

func frameFilename(index uint64, format ImageFormat) string {
	switch format {
	case ImageYUV:
		return fmt.Sprintf("frame_%d.yuv", index)
	case ImageJPEG:
		return fmt.Sprintf("frame_%d.jpg", index)
	default:
		return fmt.Sprintf("frame_%d.png", index)
	}
}
