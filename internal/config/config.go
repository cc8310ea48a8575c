// Package config resolves one pipeline run's settings from CLI flags
// optionally overlaid with a YAML file (spec.md §6's CLI surface).
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSamplesPerSecond = 7
	DefaultTargetLuma       = 230
	DefaultDelta            = 12
	DefaultComparator       = "bitset-cover"
)

// RoiOverride is a normalized ROI override, all four fields required
// together (spec.md §6).
type RoiOverride struct {
	X      float32 `yaml:"x"`
	Y      float32 `yaml:"y"`
	Width  float32 `yaml:"width"`
	Height float32 `yaml:"height"`
}

// Config holds one resolved run's settings. YAML tags let it double as
// the overlay file's schema.
type Config struct {
	InputPath        string       `yaml:"input"`
	OutputPath       string       `yaml:"output"`
	SamplesPerSecond uint32       `yaml:"samples_per_second"`
	TargetLuma       uint8        `yaml:"target_luma"`
	Delta            uint8        `yaml:"delta"`
	Comparator       string       `yaml:"comparator"`
	Roi              *RoiOverride `yaml:"roi"`
	OcrModel         string       `yaml:"ocr_model"`
	DebugDumpPath    string       `yaml:"debug_dump"`
	MetricsAddr      string       `yaml:"metrics_addr"`
}

// Defaults returns the baseline configuration spec.md §6 names.
func Defaults() Config {
	return Config{
		SamplesPerSecond: DefaultSamplesPerSecond,
		TargetLuma:       DefaultTargetLuma,
		Delta:            DefaultDelta,
		Comparator:       DefaultComparator,
	}
}

// Error reports a configuration problem, e.g. a missing required flag or
// an invalid overlay file.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "config: " + e.Msg + ": " + e.Err.Error()
	}
	return "config: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Parse builds a Config from CLI args. A -config overlay, if given, is
// applied first; any flag the caller actually set on the command line is
// then re-applied on top, so scripted overlays never silently shadow an
// explicit flag.
func Parse(args []string) (*Config, error) {
	cfg := Defaults()

	flagCfg, configPath, roiFlag, err := parseFlags(args, cfg)
	if err != nil {
		return nil, err
	}
	cfg = flagCfg

	if configPath != "" {
		if err := applyOverlay(&cfg, configPath); err != nil {
			return nil, err
		}
		reapplied, _, roi, err := parseFlags(args, cfg)
		if err != nil {
			return nil, err
		}
		cfg = reapplied
		if roi != "" {
			roiFlag = roi
		}
	}

	if roiFlag != "" {
		roi, err := parseRoiFlag(roiFlag)
		if err != nil {
			return nil, err
		}
		cfg.Roi = roi
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parseFlags parses args against starting as the baseline, returning the
// resulting Config plus the raw -config/-roi flag values.
func parseFlags(args []string, starting Config) (Config, string, string, error) {
	fs := flag.NewFlagSet("subtitlefast", flag.ContinueOnError)

	cfg := starting
	var configPath, roiFlag string
	var samplesPerSecond, targetLuma, delta uint64

	fs.StringVar(&cfg.InputPath, "input", cfg.InputPath, "input video path (required)")
	fs.StringVar(&cfg.OutputPath, "output", cfg.OutputPath, "output SRT path (required)")
	fs.Uint64Var(&samplesPerSecond, "samples-per-second", uint64(cfg.SamplesPerSecond), "positive sample rate")
	fs.StringVar(&configPath, "config", "", "optional YAML config overlay")
	fs.Uint64Var(&targetLuma, "target-luma", uint64(cfg.TargetLuma), "luma threshold target (0-255)")
	fs.Uint64Var(&delta, "delta", uint64(cfg.Delta), "luma threshold tolerance (0-255)")
	fs.StringVar(&cfg.Comparator, "comparator", cfg.Comparator, "bitset-cover | hybrid-mask | sparse-chamfer")
	fs.StringVar(&roiFlag, "roi", "", "optional ROI override: x,y,width,height in [0,1]")
	fs.StringVar(&cfg.OcrModel, "ocr-model", cfg.OcrModel, "OCR model locator: local path or http(s):// URL")
	fs.StringVar(&cfg.DebugDumpPath, "debug-dump", cfg.DebugDumpPath, "optional debug JSON output path")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "optional Prometheus /metrics listen address")

	if err := fs.Parse(args); err != nil {
		return Config{}, "", "", &Error{Msg: "parse flags", Err: err}
	}

	if samplesPerSecond > 0xFFFFFFFF {
		return Config{}, "", "", &Error{Msg: "samples-per-second out of range"}
	}
	if targetLuma > 255 || delta > 255 {
		return Config{}, "", "", &Error{Msg: "target-luma and delta must be 0-255"}
	}
	cfg.SamplesPerSecond = uint32(samplesPerSecond)
	cfg.TargetLuma = uint8(targetLuma)
	cfg.Delta = uint8(delta)

	return cfg, configPath, roiFlag, nil
}

func applyOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Msg: "read config overlay", Err: err}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &Error{Msg: "parse config overlay", Err: err}
	}
	return nil
}

func parseRoiFlag(s string) (*RoiOverride, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, &Error{Msg: "roi must have four comma-separated components"}
	}
	var values [4]float32
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, &Error{Msg: fmt.Sprintf("roi component %d is not a float", i), Err: err}
		}
		values[i] = float32(v)
	}
	return &RoiOverride{X: values[0], Y: values[1], Width: values[2], Height: values[3]}, nil
}

// Validate checks the invariants spec.md §6 requires of a resolved Config.
func (c *Config) Validate() error {
	if c.InputPath == "" {
		return &Error{Msg: "input path is required"}
	}
	if c.OutputPath == "" {
		return &Error{Msg: "output path is required"}
	}
	if c.SamplesPerSecond == 0 {
		return &Error{Msg: "samples-per-second must be positive"}
	}
	switch c.Comparator {
	case "bitset-cover", "hybrid-mask", "sparse-chamfer":
	default:
		return &Error{Msg: fmt.Sprintf("unknown comparator kind %q", c.Comparator)}
	}
	if c.Roi != nil {
		r := c.Roi
		if r.Width <= 0 || r.Height <= 0 || r.X < 0 || r.Y < 0 || r.X+r.Width > 1.0001 || r.Y+r.Height > 1.0001 {
			return &Error{Msg: fmt.Sprintf("roi override out of [0,1] bounds: %+v", r)}
		}
	}
	return nil
}

// ExitCode maps a terminal pipeline error to the process exit code
// spec.md §6/§7 describes: 0 on success, nonzero on any stage failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
