package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"github.com/subtitlefast/subtitlefast/internal/frame"
)

// FFmpegSource decodes video via libav bindings (go-astiav) and copies the
// first plane of each decoded frame out as its Y plane; no pixel-format
// conversion or scaling is performed. Only that plane is handed downstream.
type FFmpegSource struct {
	path string
	log  *slog.Logger
}

// NewFFmpegSource opens path lazily; no I/O happens until Open is called.
func NewFFmpegSource(path string) *FFmpegSource {
	return &FFmpegSource{path: path, log: slog.With("component", "decode.ffmpeg", "path", path)}
}

// Metadata probes the container without starting a full decode session.
func (s *FFmpegSource) Metadata(ctx context.Context) (Metadata, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return Metadata{}, &Error{Kind: ErrBackend, Msg: "AllocFormatContext failed"}
	}
	defer fc.Free()

	if err := fc.OpenInput(s.path, nil, nil); err != nil {
		return Metadata{}, &Error{Kind: ErrIO, Msg: "open input", Err: err}
	}
	defer fc.CloseInput()

	if err := fc.FindStreamInfo(nil); err != nil {
		return Metadata{}, &Error{Kind: ErrBackend, Msg: "find stream info", Err: err}
	}

	var md Metadata
	for _, st := range fc.Streams() {
		if st.CodecParameters().MediaType() != astiav.MediaTypeVideo {
			continue
		}
		md.Width = st.CodecParameters().Width()
		md.Height = st.CodecParameters().Height()
		if r := st.AvgFrameRate(); r.Den() != 0 {
			md.FPS = float64(r.Num()) / float64(r.Den())
		}
		break
	}
	if d := fc.Duration(); d > 0 {
		dur := time.Duration(d) * time.Microsecond
		md.Duration = &dur
	}
	if md.Duration != nil && md.FPS > 0 {
		total := uint64(md.Duration.Seconds() * md.FPS)
		md.TotalFrames = &total
	}
	return md, nil
}

// ffmpegController implements Controller for a FFmpegSource session.
type ffmpegController struct {
	fc     *astiav.FormatContext
	vctx   *astiav.CodecContext
	closer *astikit.Closer
}

func (c *ffmpegController) Seek(ctx context.Context, info SeekInfo) error {
	ts := int64(info.Target / time.Microsecond)
	if err := c.fc.SeekFrame(-1, ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return &Error{Kind: ErrBackend, Msg: "seek", Err: err}
	}
	c.vctx.FlushBuffers()
	return nil
}

func (c *ffmpegController) Close() error {
	return c.closer.Close()
}

// Open starts decoding on a dedicated goroutine, as spec.md §5 requires for
// native-FFI decoders, shuttling frames through a bounded channel.
func (s *FFmpegSource) Open(ctx context.Context) (Controller, Frames, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, nil, &Error{Kind: ErrBackend, Msg: "AllocFormatContext failed"}
	}
	closer := astikit.NewCloser()
	closer.Add(fc.Free)

	if err := fc.OpenInput(s.path, nil, nil); err != nil {
		closer.Close()
		return nil, nil, &Error{Kind: ErrIO, Msg: "open input", Err: err}
	}
	closer.Add(fc.CloseInput)

	if err := fc.FindStreamInfo(nil); err != nil {
		closer.Close()
		return nil, nil, &Error{Kind: ErrBackend, Msg: "find stream info", Err: err}
	}

	vIdx := -1
	for i, st := range fc.Streams() {
		if st.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			vIdx = i
			break
		}
	}
	if vIdx < 0 {
		closer.Close()
		return nil, nil, &Error{Kind: ErrIO, Msg: "no video stream found"}
	}
	vst := fc.Streams()[vIdx]

	vdec := astiav.FindDecoder(vst.CodecParameters().CodecID())
	if vdec == nil {
		closer.Close()
		return nil, nil, &Error{Kind: ErrUnsupported, Msg: "no decoder for codec"}
	}
	vctx := astiav.AllocCodecContext(vdec)
	if vctx == nil {
		closer.Close()
		return nil, nil, &Error{Kind: ErrBackend, Msg: "AllocCodecContext failed"}
	}
	closer.Add(vctx.Free)

	if err := vst.CodecParameters().ToCodecContext(vctx); err != nil {
		closer.Close()
		return nil, nil, &Error{Kind: ErrBackend, Msg: "ToCodecContext", Err: err}
	}
	if err := vctx.Open(vdec, nil); err != nil {
		closer.Close()
		return nil, nil, &Error{Kind: ErrBackend, Msg: "open codec context", Err: err}
	}

	out := make(chan FrameOrError, 1)
	ctrl := &ffmpegController{fc: fc, vctx: vctx, closer: closer}

	go s.decodeLoop(ctx, fc, vctx, vIdx, vst.TimeBase(), out, closer)

	return ctrl, out, nil
}

func (s *FFmpegSource) decodeLoop(
	ctx context.Context,
	fc *astiav.FormatContext,
	vctx *astiav.CodecContext,
	vIdx int,
	timeBase astiav.Rational,
	out chan<- FrameOrError,
	closer *astikit.Closer,
) {
	defer close(out)
	defer closer.Close()

	pkt := astiav.AllocPacket()
	defer pkt.Free()
	vf := astiav.AllocFrame()
	defer vf.Free()

	var frameIndex uint64
	send := func(item FrameOrError) bool {
		select {
		case out <- item:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := fc.ReadFrame(pkt); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			send(FrameOrError{Err: &Error{Kind: ErrBackend, Msg: "read frame", Err: err}})
			return
		}

		if pkt.StreamIndex() != vIdx {
			pkt.Unref()
			continue
		}

		if err := vctx.SendPacket(pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
			pkt.Unref()
			send(FrameOrError{Err: &Error{Kind: ErrBackend, Msg: "send packet", Err: err}})
			return
		}
		pkt.Unref()

		for {
			if err := vctx.ReceiveFrame(vf); err != nil {
				break
			}
			df, err := framesFromAV(vf, frameIndex, timeBase)
			frameIndex++
			vf.Unref()
			if err != nil {
				send(FrameOrError{Err: &Error{Kind: ErrBackend, Msg: "convert frame", Err: err}})
				return
			}
			if !send(FrameOrError{Frame: df}) {
				return
			}
		}
	}

	// Drain the decoder's internal buffer at EOF.
	_ = vctx.SendPacket(nil)
	for {
		if err := vctx.ReceiveFrame(vf); err != nil {
			break
		}
		df, err := framesFromAV(vf, frameIndex, timeBase)
		frameIndex++
		vf.Unref()
		if err != nil {
			send(FrameOrError{Err: &Error{Kind: ErrBackend, Msg: "convert frame", Err: err}})
			return
		}
		if !send(FrameOrError{Frame: df}) {
			return
		}
	}
}

// framesFromAV copies the Y plane out of an astiav.Frame into an owned
// buffer (astiav frames are reused across ReceiveFrame calls, so the data
// must not be retained in place).
func framesFromAV(vf *astiav.Frame, frameIndex uint64, timeBase astiav.Rational) (*frame.Decoded, error) {
	w, h := vf.Width(), vf.Height()
	stride := vf.Linesize()[0]
	need := stride * h

	src, err := vf.Data().Bytes(0)
	if err != nil {
		return nil, fmt.Errorf("decode: frame data: %w", err)
	}
	if len(src) < need {
		return nil, fmt.Errorf("decode: frame has no plane data")
	}
	y := make([]byte, need)
	copy(y, src[:need])

	var ts *time.Duration
	if pts := vf.Pts(); pts != astiav.NoPtsValue && timeBase.Den() != 0 {
		d := time.Duration(pts) * time.Second * time.Duration(timeBase.Num()) / time.Duration(timeBase.Den())
		ts = &d
	}

	return frame.New(w, h, stride, frameIndex, ts, y, nil)
}

