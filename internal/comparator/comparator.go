// Package comparator implements the feature extraction and comparison used
// by the segmenter (spec.md §4.3) to decide whether two positive samples
// belong to the same on-screen subtitle. Three comparator kinds are
// provided: bitset-cover, hybrid-mask and sparse-chamfer. Blobs are tagged
// by the comparator that produced them; comparing across tags always
// reports no match.
package comparator

import (
	"github.com/subtitlefast/subtitlefast/internal/frame"
	"github.com/subtitlefast/subtitlefast/internal/geom"
)

// FeatureBlob is an opaque, immutable artifact produced by Extract. Two
// blobs may only be compared when their Tag matches.
type FeatureBlob struct {
	Tag  string
	data interface{}
}

// Report is the outcome of comparing two feature blobs.
type Report struct {
	Similarity  float32
	SameSegment bool
	Metrics     map[string]float32
}

// Comparator is the capability interface a feature comparator implements
// (spec.md §9: tagged variant, no inheritance hierarchy).
type Comparator interface {
	Name() string
	// Extract returns (nil, false) when the region is degenerate.
	Extract(f *frame.Decoded, roi geom.Roi) (*FeatureBlob, bool)
	Compare(ref, cand *FeatureBlob) Report
}

// Kind identifies which comparator implementation to build.
type Kind string

const (
	KindBitsetCover   Kind = "bitset-cover"
	KindHybridMask    Kind = "hybrid-mask"
	KindSparseChamfer Kind = "sparse-chamfer"
)

// New builds the requested comparator kind, thresholded at targetLuma±delta.
func New(kind Kind, targetLuma, delta uint8) (Comparator, error) {
	switch kind {
	case KindBitsetCover:
		return NewBitsetCover(targetLuma, delta), nil
	case KindHybridMask:
		return NewHybridMask(targetLuma, delta), nil
	case KindSparseChamfer:
		return NewSparseChamfer(targetLuma, delta), nil
	default:
		return nil, &Error{Kind: ErrConfiguration, Msg: "unknown comparator kind: " + string(kind)}
	}
}

// Error is the comparator error taxonomy (spec.md §7).
type Error struct {
	Kind ErrorKind
	Msg  string
}

type ErrorKind int

const (
	ErrTagMismatch ErrorKind = iota
	ErrDegenerateInput
	ErrConfiguration
)

func (e *Error) Error() string { return "comparator: " + e.Msg }

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
