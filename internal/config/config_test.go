package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]string{"-input", "in.mp4", "-output", "out.srt"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.SamplesPerSecond != DefaultSamplesPerSecond {
		t.Fatalf("expected default samples-per-second, got %d", cfg.SamplesPerSecond)
	}
	if cfg.TargetLuma != DefaultTargetLuma || cfg.Delta != DefaultDelta {
		t.Fatalf("expected default luma/delta, got %d/%d", cfg.TargetLuma, cfg.Delta)
	}
	if cfg.Comparator != DefaultComparator {
		t.Fatalf("expected default comparator, got %q", cfg.Comparator)
	}
}

func TestParseRequiresInputAndOutput(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatal("expected error for missing input/output")
	}
}

func TestParseRejectsUnknownComparator(t *testing.T) {
	_, err := Parse([]string{"-input", "in.mp4", "-output", "out.srt", "-comparator", "nope"})
	if err == nil {
		t.Fatal("expected error for unknown comparator kind")
	}
}

func TestParseRoiOverride(t *testing.T) {
	cfg, err := Parse([]string{"-input", "in.mp4", "-output", "out.srt", "-roi", "0.1,0.2,0.3,0.4"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Roi == nil {
		t.Fatal("expected roi override to be set")
	}
	if cfg.Roi.X != 0.1 || cfg.Roi.Height != 0.4 {
		t.Fatalf("unexpected roi: %+v", cfg.Roi)
	}
}

func TestParseRejectsOutOfBoundsRoi(t *testing.T) {
	_, err := Parse([]string{"-input", "in.mp4", "-output", "out.srt", "-roi", "0.9,0.9,0.5,0.5"})
	if err == nil {
		t.Fatal("expected error for out-of-bounds roi")
	}
}

func TestYAMLOverlayAppliesThenFlagsWin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.yaml")
	content := "input: from-yaml.mp4\noutput: out-yaml.srt\nsamples_per_second: 12\ncomparator: hybrid-mask\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	cfg, err := Parse([]string{"-config", path, "-output", "override.srt"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.InputPath != "from-yaml.mp4" {
		t.Fatalf("expected overlay input to apply, got %q", cfg.InputPath)
	}
	if cfg.OutputPath != "override.srt" {
		t.Fatalf("expected explicit flag to win over overlay, got %q", cfg.OutputPath)
	}
	if cfg.SamplesPerSecond != 12 {
		t.Fatalf("expected overlay samples_per_second to apply, got %d", cfg.SamplesPerSecond)
	}
	if cfg.Comparator != "hybrid-mask" {
		t.Fatalf("expected overlay comparator to apply, got %q", cfg.Comparator)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatal("expected exit code 0 for nil error")
	}
	if ExitCode(&Error{Msg: "boom"}) == 0 {
		t.Fatal("expected nonzero exit code for an error")
	}
}
