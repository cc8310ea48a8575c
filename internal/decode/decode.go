// Package decode defines the frame-source contract the pipeline consumes
// (S1 in spec.md §2) and the backends that implement it. Only this
// package's interfaces are specified by the pipeline; concrete decode
// backends are external collaborators, swappable per platform.
package decode

import (
	"context"
	"time"

	"github.com/subtitlefast/subtitlefast/internal/frame"
)

// Metadata describes what the source knows about a stream up front. Every
// field is optional because containers and live sources may not expose it.
type Metadata struct {
	FPS         float64
	Duration    *time.Duration
	TotalFrames *uint64
	Width       int
	Height      int
}

// SeekInfo requests the controller reposition decode to a given time. Only
// used by GUI/preview paths, never by the batch pipeline.
type SeekInfo struct {
	Target time.Duration
}

// Controller lets a caller steer an open decode session. Seek calls are
// serialized by the backend; the batch pipeline never calls it.
type Controller interface {
	Seek(ctx context.Context, info SeekInfo) error
	Close() error
}

// Frames is the ordered, lazy, one-shot stream a Source emits. A receive of
// (nil, nil, false) never happens: ok is false only once the stream is
// exhausted or ctx is done, and err (if any) accompanies the final item.
type Frames <-chan FrameOrError

// FrameOrError is one element of a Frames stream.
type FrameOrError struct {
	Frame *frame.Decoded
	Err   error
}

// Source produces an ordered sequence of decoded frames for one video.
// Implementations must deliver frames in non-decreasing FrameIndex order
// (spec.md §8's order-preservation invariant starts here).
type Source interface {
	// Metadata returns what is known about the stream before opening it.
	Metadata(ctx context.Context) (Metadata, error)

	// Open starts decoding and returns a controller plus the frame stream.
	// The returned channel is closed when decoding finishes, the context is
	// cancelled, or an unrecoverable error occurs (delivered as the final
	// item's Err).
	Open(ctx context.Context) (Controller, Frames, error)
}

// Error is the decoder's error taxonomy (spec.md §7).
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// ErrorKind enumerates the decoder failure categories spec.md §7 names.
type ErrorKind int

const (
	// ErrIO covers missing files and other I/O failures opening the source.
	ErrIO ErrorKind = iota
	// ErrBackend covers platform/backend decode failures.
	ErrBackend
	// ErrUnsupported covers backends not compiled into this binary.
	ErrUnsupported
)

func (e *Error) Error() string {
	if e.Err != nil {
		return "decode: " + e.Msg + ": " + e.Err.Error()
	}
	return "decode: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }
