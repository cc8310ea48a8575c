package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	inputWidth  = 320
	inputHeight = 48
)

// modelSession runs one forward pass of a loaded recognition model. The
// default implementation is the unsupported stub below; integrations that
// link a real ONNX runtime override newModelSession at build time.
type modelSession interface {
	// Run takes a 1x3xHxW input tensor (channel-major, already normalized
	// to [0,1]) and returns the flattened output tensor plus its shape.
	Run(input []float32, shape []int) (data []float32, outShape []int, err error)
}

// newModelSession resolves a loaded model file into a runnable session.
// No ONNX runtime binding is linked into this build, so the stub reports
// ErrUnsupported; a build that vendors a real runtime replaces this var.
var newModelSession = func(path string) (modelSession, error) {
	return nil, &Error{Kind: ErrUnsupported, Msg: "onnx runtime backend not compiled into this binary"}
}

// modelHandle is a path-keyed loaded model, cached in registry for the life
// of the process and shared by every ONNXEngine pointed at the same
// resolved file.
type modelHandle struct {
	path    string
	session modelSession
}

type modelRegistry struct {
	mu      sync.Mutex
	handles map[string]*modelHandle
}

var registry = &modelRegistry{handles: make(map[string]*modelHandle)}

func (r *modelRegistry) get(path string) (*modelHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[path]; ok {
		return h, nil
	}
	session, err := newModelSession(path)
	if err != nil {
		return nil, err
	}
	h := &modelHandle{path: path, session: session}
	r.handles[path] = h
	return h, nil
}

// ONNXEngine recognizes text with a CRNN-style ONNX model, resolving its
// locator once at construction time (spec.md §6's OCR model locator).
type ONNXEngine struct {
	model    *modelHandle
	alphabet []rune
}

// NewONNXEngine resolves locator (a local path or an http(s):// URL cached
// under the OS user cache directory from os.UserCacheDir, not the local
// data directory, keyed by SHA-256 of the URL) and loads the model it
// points to.
func NewONNXEngine(ctx context.Context, locator string) (*ONNXEngine, error) {
	path, err := resolveLocator(ctx, locator)
	if err != nil {
		return nil, &Error{Kind: ErrEngineInit, Msg: "resolve model locator", Err: err}
	}
	handle, err := registry.get(path)
	if err != nil {
		return nil, err
	}
	return &ONNXEngine{model: handle, alphabet: defaultAlphabet()}, nil
}

func (e *ONNXEngine) Name() string { return "onnx_ocr" }

// Recognize runs the model once per region, skipping regions that clamp to
// nothing and recognitions that decode to an empty string.
func (e *ONNXEngine) Recognize(ctx context.Context, plane LumaPlane, regions []OcrRegion) (OcrResponse, error) {
	var texts []RecognizedText
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return OcrResponse{}, err
		}
		x, y, w, h, ok := clampRegion(region, plane.Width, plane.Height)
		if !ok {
			continue
		}
		roi := extractRegion(plane, x, y, w, h)
		normalized := resizeWithPadding(roi, w, h, inputWidth, inputHeight)
		input := prepareInputTensor(normalized, inputWidth, inputHeight)
		data, shape, err := e.model.session.Run(input, []int{1, 3, inputHeight, inputWidth})
		if err != nil {
			return OcrResponse{}, &Error{Kind: ErrInference, Msg: "onnx inference", Err: err}
		}
		text, confidence, err := decodeSequence(data, shape, e.alphabet)
		if err != nil {
			return OcrResponse{}, &Error{Kind: ErrInference, Msg: "decode onnx output", Err: err}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		entry := RecognizedText{Region: region, Text: text}
		if confidence != nil {
			entry.Confidence = confidence
		}
		texts = append(texts, entry)
	}
	return OcrResponse{Texts: texts}, nil
}

func clampRegion(region OcrRegion, planeWidth, planeHeight int) (x, y, w, h int, ok bool) {
	if region.Width <= 0 || region.Height <= 0 {
		return 0, 0, 0, 0, false
	}
	x0 := clampInt(region.X, 0, planeWidth)
	y0 := clampInt(region.Y, 0, planeHeight)
	x1 := clampInt(region.X+region.Width, 0, planeWidth)
	y1 := clampInt(region.Y+region.Height, 0, planeHeight)
	w = x1 - x0
	h = y1 - y0
	if w <= 0 || h <= 0 {
		return 0, 0, 0, 0, false
	}
	return x0, y0, w, h, true
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

func extractRegion(plane LumaPlane, x, y, w, h int) []byte {
	out := make([]byte, 0, w*h)
	for row := 0; row < h; row++ {
		start := (y+row)*plane.Stride + x
		out = append(out, plane.Data[start:start+w]...)
	}
	return out
}

// resizeWithPadding scales src to fit dstHeight while preserving aspect
// ratio, then pads the remaining width with zeros, matching the CRNN
// input convention of a fixed-height, variable-but-bounded-width strip.
func resizeWithPadding(src []byte, srcWidth, srcHeight, dstWidth, dstHeight int) []float32 {
	canvas := make([]float32, dstWidth*dstHeight)
	if srcWidth == 0 || srcHeight == 0 {
		return canvas
	}
	scaledWidth := int(math.Round(float64(dstHeight) / float64(srcHeight) * float64(srcWidth)))
	scaledWidth = clampInt(scaledWidth, 1, dstWidth)
	resized := resizeBilinear(src, srcWidth, srcHeight, scaledWidth, dstHeight)
	for row := 0; row < dstHeight; row++ {
		copy(canvas[row*dstWidth:row*dstWidth+scaledWidth], resized[row*scaledWidth:(row+1)*scaledWidth])
	}
	return canvas
}

func resizeBilinear(src []byte, srcWidth, srcHeight, dstWidth, dstHeight int) []float32 {
	out := make([]float32, dstWidth*dstHeight)
	if dstWidth == 0 || dstHeight == 0 {
		return out
	}
	scaleX := 0.0
	if dstWidth > 1 {
		scaleX = float64(srcWidth-1) / float64(dstWidth-1)
	}
	scaleY := 0.0
	if dstHeight > 1 {
		scaleY = float64(srcHeight-1) / float64(dstHeight-1)
	}
	for dy := 0; dy < dstHeight; dy++ {
		fy := scaleY * float64(dy)
		y0 := int(math.Floor(fy))
		y1 := minInt(y0+1, srcHeight-1)
		wy := fy - float64(y0)
		for dx := 0; dx < dstWidth; dx++ {
			fx := scaleX * float64(dx)
			x0 := int(math.Floor(fx))
			x1 := minInt(x0+1, srcWidth-1)
			wx := fx - float64(x0)

			tl := float64(src[y0*srcWidth+x0])
			tr := float64(src[y0*srcWidth+x1])
			bl := float64(src[y1*srcWidth+x0])
			br := float64(src[y1*srcWidth+x1])

			top := tl + (tr-tl)*wx
			bottom := bl + (br-bl)*wx
			value := top + (bottom-top)*wy
			out[dy*dstWidth+dx] = float32(clampF(value/255.0, 0, 1))
		}
	}
	return out
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// prepareInputTensor replicates the single luma channel across three
// channels, matching the RGB-trained reference model's expected input.
func prepareInputTensor(normalized []float32, width, height int) []float32 {
	area := width * height
	data := make([]float32, area*3)
	for i := 0; i < area; i++ {
		v := normalized[i]
		data[i] = v
		data[i+area] = v
		data[i+2*area] = v
	}
	return data
}

type outputLayout int

const (
	layoutSequenceMajor outputLayout = iota
	layoutClassMajor
)

// decodeSequence applies CTC greedy decoding (blank index 0, collapse
// repeats) over the model's per-timestep class logits.
func decodeSequence(data []float32, shape []int, alphabet []rune) (string, *float32, error) {
	dims := append([]int(nil), shape...)
	for len(dims) > 2 && dims[0] == 1 {
		dims = dims[1:]
	}
	for len(dims) > 2 && dims[len(dims)-1] == 1 {
		dims = dims[:len(dims)-1]
	}
	if len(dims) > 2 {
		return "", nil, fmt.Errorf("unsupported onnx output shape %v", shape)
	}

	classes := len(alphabet) + 1
	var seqLen int
	var layout outputLayout
	switch len(dims) {
	case 2:
		switch {
		case dims[1] == classes:
			seqLen, layout = dims[0], layoutSequenceMajor
		case dims[0] == classes:
			seqLen, layout = dims[1], layoutClassMajor
		default:
			return "", nil, fmt.Errorf("unexpected onnx output dimensions %v for alphabet size %d", dims, classes)
		}
	case 0, 1:
		seqLen, layout = 1, layoutSequenceMajor
	default:
		return "", nil, fmt.Errorf("unexpected onnx output dimensions %v", dims)
	}

	if len(data) < seqLen*classes {
		return "", nil, fmt.Errorf("onnx output buffer shorter than expected")
	}

	var b strings.Builder
	previous := -1
	var confidenceSum float32
	var confidenceCount int

	for step := 0; step < seqLen; step++ {
		maxLogit := float32(math.Inf(-1))
		for class := 0; class < classes; class++ {
			v := logitAt(data, step, class, seqLen, classes, layout)
			if v > maxLogit {
				maxLogit = v
			}
		}
		var sum float32
		bestIndex := 0
		var bestExp float32
		for class := 0; class < classes; class++ {
			v := logitAt(data, step, class, seqLen, classes, layout)
			exp := float32(math.Exp(float64(v - maxLogit)))
			sum += exp
			if exp > bestExp {
				bestExp = exp
				bestIndex = class
			}
		}
		if sum <= 0 {
			continue
		}
		prob := bestExp / sum
		if bestIndex != 0 && previous != bestIndex {
			if bestIndex-1 < len(alphabet) {
				b.WriteRune(alphabet[bestIndex-1])
				confidenceSum += prob
				confidenceCount++
			}
		}
		if bestIndex == 0 {
			previous = -1
		} else {
			previous = bestIndex
		}
	}

	var confidence *float32
	if confidenceCount > 0 {
		v := confidenceSum / float32(confidenceCount)
		confidence = &v
	}
	return b.String(), confidence, nil
}

func logitAt(data []float32, step, class, seqLen, classes int, layout outputLayout) float32 {
	if layout == layoutClassMajor {
		return data[class*seqLen+step]
	}
	return data[step*classes+class]
}

func defaultAlphabet() []rune {
	return []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 .,!?'\"-:;()")
}

// resolveLocator turns a CLI locator into a local file path. Local paths
// are used as-is; http(s) URLs are downloaded once and cached under the
// OS user cache directory, keyed by the SHA-256 of the URL so repeated
// runs reuse the same file.
func resolveLocator(ctx context.Context, locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		return locator, nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported model locator scheme %q", u.Scheme)
	}

	dest, err := cachePathFor(locator)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}
	if err := downloadTo(ctx, locator, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func cachePathFor(rawURL string) (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(rawURL))
	name := hex.EncodeToString(sum[:]) + ".onnx"
	return filepath.Join(base, "subtitlefast", "models", name), nil
}

func downloadTo(ctx context.Context, rawURL, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download model: unexpected status %s", resp.Status)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
