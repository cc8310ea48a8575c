// Package detector implements S3 of the pipeline (spec.md §4.2): a stateless
// fast presence detector that decides whether a subtitle-like band exists in
// a region of interest of a luma plane.
package detector

import (
	"fmt"

	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
)

// Region is one candidate subtitle rectangle in absolute pixel space, with
// its detection score.
type Region struct {
	Rect  geom.PixelRect
	Score float32
}

// Result is the outcome of detecting on one frame. HasSubtitle is true iff
// Regions is non-empty (spec.md §3's DetectionResult invariant); MaxScore is
// the max of Regions' scores when non-empty.
type Result struct {
	HasSubtitle bool
	MaxScore    float32
	Regions     []Region
}

// Empty returns the canonical empty detection result.
func Empty() Result {
	return Result{}
}

// Detector is the capability interface a presence detector must satisfy
// (spec.md §9: "capability interfaces, no inheritance hierarchy").
type Detector interface {
	Detect(f *frame.Decoded, roi geom.Roi) (Result, error)
}

// Error is the detector's error taxonomy (spec.md §7).
type Error struct {
	Kind ErrorKind
	Msg  string
}

// ErrorKind enumerates detector failure categories.
type ErrorKind int

const (
	ErrInsufficientData ErrorKind = iota
	ErrEmptyROI
	ErrConfiguration
	ErrInference
)

func (e *Error) Error() string {
	return fmt.Sprintf("detector: %s", e.Msg)
}
