// Package pipeline wires the sample, detect, segment, OCR and write stages
// spec.md §2/§5 describe into one streaming run over a single decode.Source.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/subtitlefast/subtitlefast/internal/comparator"
	"github.com/subtitlefast/subtitlefast/internal/debugdump"
	"github.com/subtitlefast/subtitlefast/internal/decode"
	"github.com/subtitlefast/subtitlefast/internal/detector"
	"github.com/subtitlefast/subtitlefast/internal/geom"
	"github.com/subtitlefast/subtitlefast/internal/ocr"
	"github.com/subtitlefast/subtitlefast/internal/progress"
	"github.com/subtitlefast/subtitlefast/internal/sampler"
	"github.com/subtitlefast/subtitlefast/internal/segmenter"
	"github.com/subtitlefast/subtitlefast/internal/writer"
)

// detectChannelCapacity is the Detector→Segmenter channel size spec.md §5
// requires (at least 4, so a burst of positive detections doesn't stall the
// detect goroutine waiting on the segmenter).
const detectChannelCapacity = 4

// Config wires one run's collaborators. Source, Detector, Comparator and
// OCR are required; Dumper and Reporter are optional and may be nil.
type Config struct {
	Source           decode.Source
	OutputPath       string
	SamplesPerSecond uint32
	Roi              geom.Roi
	Detector         detector.Detector
	Comparator       comparator.Comparator
	OCR              ocr.Engine
	Dumper           *debugdump.Dumper
	Reporter         *progress.Reporter
}

// Pipeline drives one run end to end: decode.Source → sampler → detect →
// segmenter → OCR → writer.
type Pipeline struct {
	cfg Config
	log *slog.Logger

	samplerStage   *sampler.Sampler
	segmenterStage *segmenter.Segmenter
	ocrStage       *ocr.Stage
	writerStage    *writer.Stage
}

// New builds a Pipeline from cfg. cfg.Roi defaults to the full frame when
// left zero-valued.
func New(cfg Config) *Pipeline {
	if cfg.Roi.Width == 0 && cfg.Roi.Height == 0 {
		cfg.Roi = geom.Roi{X: 0, Y: 0, Width: 1, Height: 1}
	}
	return &Pipeline{
		cfg:            cfg,
		log:            slog.With("component", "pipeline"),
		samplerStage:   sampler.New(cfg.SamplesPerSecond),
		segmenterStage: segmenter.New(cfg.Comparator, cfg.SamplesPerSecond),
		ocrStage:       ocr.NewStage(cfg.OCR),
		writerStage:    writer.NewStage(cfg.OutputPath),
	}
}

// Run opens cfg.Source and drives every stage until the source is
// exhausted, ctx is cancelled, or a stage reports a fatal error. It
// returns the written document's summary. When a stage upstream of the
// writer fails, Done can still be non-nil alongside the error, since the
// writer flushes whatever was buffered before the failure (spec.md §7);
// Done is nil when the source cannot be opened or the SRT file cannot be
// written.
func (p *Pipeline) Run(ctx context.Context) (*writer.Done, error) {
	var totalFrames *uint64
	if p.cfg.Reporter != nil {
		if md, merr := p.cfg.Source.Metadata(ctx); merr != nil {
			p.log.Warn("probe metadata", "error", merr)
		} else {
			totalFrames = md.TotalFrames
		}
	}

	ctrl, frames, err := p.cfg.Source.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := ctrl.Close(); cerr != nil {
			p.log.Warn("close source", "error", cerr)
		}
	}()

	sampled := p.samplerStage.Run(ctx, frames)
	detected, detectErr := p.runDetect(ctx, sampled, totalFrames)
	segResults := p.segmenterStage.Run(ctx, detected)
	ocrResults := p.ocrStage.Run(ctx, segResults)
	events := p.writerStage.Run(ctx, ocrResults)

	var done *writer.Done
	var runErr error
	for ev := range events {
		if ev.Done != nil {
			done = ev.Done
		}
		if ev.Err != nil {
			runErr = ev.Err
		}
	}

	if runErr == nil {
		select {
		case runErr = <-detectErr:
		default:
		}
	}

	if p.cfg.Dumper != nil {
		if derr := p.cfg.Dumper.Finish(); derr != nil {
			p.log.Error("debug dump finish", "error", derr)
			if runErr == nil {
				runErr = derr
			}
		}
	}

	if p.cfg.Reporter != nil {
		p.cfg.Reporter.Report(p.finalProgress(runErr))
	}

	return done, runErr
}

func (p *Pipeline) finalProgress(runErr error) progress.Event {
	merged := 0
	if w := p.writerStage.Writer(); w != nil {
		merged = w.MergedCount()
	}
	return progress.Event{
		Merged:    merged,
		OcrEmpty:  int(p.ocrStage.EmptyCount()),
		Progress:  1,
		Completed: runErr == nil,
		Err:       runErr,
	}
}

// runDetect runs S3 (spec.md §4.2) inline on the single goroutine it owns:
// for every sample, detect against cfg.Roi, optionally record a debug
// dump entry, release the sample back to the sampler's pool, and forward
// the pairing to the segmenter. detectErr carries at most one error,
// delivered once the returned channel closes.
func (p *Pipeline) runDetect(ctx context.Context, in <-chan sampler.Result, totalFrames *uint64) (<-chan segmenter.Input, <-chan error) {
	out := make(chan segmenter.Input, detectChannelCapacity)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		var samplesSeen uint64
		var detectMs float64

		for {
			select {
			case <-ctx.Done():
				return
			case item, ok := <-in:
				if !ok {
					return
				}
				if item.Err != nil {
					errCh <- item.Err
					return
				}

				sample := item.Sample
				t0 := time.Now()
				result, derr := p.cfg.Detector.Detect(sample.Frame, p.cfg.Roi)
				detectMs = emaMs(detectMs, time.Since(t0))
				if derr != nil {
					sample.Finish()
					errCh <- derr
					return
				}

				if p.cfg.Dumper != nil {
					if rerr := p.cfg.Dumper.Record(sample.Frame, result); rerr != nil {
						p.log.Warn("debug dump record", "error", rerr)
					}
				}

				samplesSeen++
				if p.cfg.Reporter != nil {
					p.reportSample(sample, samplesSeen, detectMs, totalFrames)
				}

				sample.Finish()

				select {
				case out <- segmenter.Input{Sample: sample, Detection: result}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errCh
}

func (p *Pipeline) reportSample(sample *sampler.Sampled, samplesSeen uint64, detectMs float64, totalFrames *uint64) {
	ev := progress.Event{
		SamplesSeen:      samplesSeen,
		LatestFrameIndex: sample.FrameIndex,
		TotalFrames:      totalFrames,
		FPS:              sample.Context.EstimatedFPS,
		StageAverageMs:   map[string]float64{"detect": detectMs},
		OcrEmpty:         int(p.ocrStage.EmptyCount()),
	}
	if totalFrames != nil && *totalFrames > 0 {
		ratio := float64(sample.FrameIndex+1) / float64(*totalFrames)
		if ratio > 1 {
			ratio = 1
		}
		ev.Progress = ratio
	}
	if w := p.writerStage.Writer(); w != nil {
		ev.Cues = w.CueCount()
	}
	p.cfg.Reporter.Report(ev)
}

// emaMs folds sample into a rolling average (alpha=0.2), matching the
// sampler's own FPS-estimate smoothing.
func emaMs(avg float64, sample time.Duration) float64 {
	ms := float64(sample) / float64(time.Millisecond)
	if avg == 0 {
		return ms
	}
	const alpha = 0.2
	return alpha*ms + (1-alpha)*avg
}
