// Command subtitlefast mines burned-in subtitles out of a video file and
// writes them as an SRT document, per spec.md's six-stage pipeline.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/subtitlefast/subtitlefast/internal/comparator"
	"github.com/subtitlefast/subtitlefast/internal/config"
	"github.com/subtitlefast/subtitlefast/internal/debugdump"
	"github.com/subtitlefast/subtitlefast/internal/decode"
	"github.com/subtitlefast/subtitlefast/internal/detector"
	"github.com/subtitlefast/subtitlefast/internal/geom"
	"github.com/subtitlefast/subtitlefast/internal/ocr"
	"github.com/subtitlefast/subtitlefast/internal/pipeline"
	"github.com/subtitlefast/subtitlefast/internal/progress"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(config.ExitCode(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	p, reporter, err := buildPipeline(cfg)
	if err != nil {
		slog.Error("pipeline setup failed", "error", err)
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		progress.Register(prometheus.DefaultRegisterer)
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	var runErr error
	g.Go(func() error {
		defer cancel()
		done, err := p.Run(ctx)
		if err != nil {
			runErr = err
			return err
		}
		if done != nil {
			slog.Info("subtitle mining finished", "output", done.Path, "cues", len(done.Merged))
		}
		return nil
	})

	if reporter != nil {
		g.Go(func() error {
			for ev := range reporter.Subscribe() {
				slog.Debug("progress",
					"samples_seen", ev.SamplesSeen,
					"frame_index", ev.LatestFrameIndex,
					"cues", ev.Cues,
					"merged", ev.Merged,
				)
				if ev.Completed || ev.Err != nil {
					return nil
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && runErr == nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

// buildPipeline wires every collaborator named in cfg into one
// pipeline.Pipeline, mirroring the teacher's habit of keeping main()
// itself thin and pushing construction into small helpers.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, *progress.Reporter, error) {
	cmpKind := comparator.Kind(cfg.Comparator)
	cmp, err := comparator.New(cmpKind, cfg.TargetLuma, cfg.Delta)
	if err != nil {
		return nil, nil, err
	}

	var roi geom.Roi
	if cfg.Roi != nil {
		roi = geom.Roi{X: cfg.Roi.X, Y: cfg.Roi.Y, Width: cfg.Roi.Width, Height: cfg.Roi.Height}
	} else {
		roi = geom.Roi{X: 0, Y: 0, Width: 1, Height: 1}
	}

	var engine ocr.Engine
	if cfg.OcrModel != "" {
		onnx, err := ocr.NewONNXEngine(context.Background(), cfg.OcrModel)
		if err != nil {
			return nil, nil, err
		}
		engine = onnx
	} else {
		engine = ocr.NewPlatformEngine()
	}

	var dumper *debugdump.Dumper
	if cfg.DebugDumpPath != "" {
		imageDir := filepath.Join(filepath.Dir(cfg.DebugDumpPath), "frames")
		d, err := debugdump.New(cfg.DebugDumpPath, imageDir, debugdump.ImagePNG, 0)
		if err != nil {
			return nil, nil, err
		}
		dumper = d
	}

	var reporter *progress.Reporter
	if cfg.MetricsAddr != "" {
		reporter = progress.NewReporter()
	}

	p := pipeline.New(pipeline.Config{
		Source:           decode.NewFFmpegSource(cfg.InputPath),
		OutputPath:       cfg.OutputPath,
		SamplesPerSecond: cfg.SamplesPerSecond,
		Roi:              roi,
		Detector:         detector.NewLumaBand(cfg.TargetLuma, cfg.Delta),
		Comparator:       cmp,
		OCR:              engine,
		Dumper:           dumper,
		Reporter:         reporter,
	})
	return p, reporter, nil
}
