package ocr

import "context"

// PlatformEngine adapts a native OS text-recognition framework (e.g. Vision
// on macOS, Windows.Media.Ocr on Windows) to the Engine interface. No such
// binding is linked into this build — every platform adapter needs its own
// cgo/syscall layer — so Recognize always reports ErrUnsupported; a
// platform-specific build swaps in a real implementation behind the same
// interface.
type PlatformEngine struct{}

// NewPlatformEngine exists so callers can select this backend by name; it
// never fails to construct, since failure is deferred to the first
// Recognize call (mirroring how an unavailable native framework only
// surfaces once actually invoked).
func NewPlatformEngine() *PlatformEngine {
	return &PlatformEngine{}
}

func (e *PlatformEngine) Name() string { return "platform_ocr" }

func (e *PlatformEngine) Recognize(ctx context.Context, plane LumaPlane, regions []OcrRegion) (OcrResponse, error) {
	return OcrResponse{}, &Error{Kind: ErrUnsupported, Msg: "platform text recognition backend not compiled into this binary"}
}
