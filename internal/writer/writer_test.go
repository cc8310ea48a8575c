package writer

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFormatTimestampMatchesSRT(t *testing.T) {
	ts := 3_723_456 * time.Millisecond
	if got := formatTimestamp(ts); got != "01:02:03,456" {
		t.Fatalf("expected 01:02:03,456, got %q", got)
	}
}

func TestBuildSRTPreservesOrder(t *testing.T) {
	cues := []SubtitleCue{
		{StartTime: 5 * time.Second, EndTime: 7 * time.Second, StartFrame: 10, Text: "Second", CenterY: 0.6},
		{StartTime: 2 * time.Second, EndTime: 3 * time.Second, StartFrame: 5, Text: "First", CenterY: 0.4},
	}
	sortCues(cues)
	merged := mergeCues(cues)
	output := buildSRT(merged)

	want := "1\n00:00:02,000 --> 00:00:03,000\nFirst\n\n2\n00:00:05,000 --> 00:00:07,000\nSecond\n"
	if output != want {
		t.Fatalf("unexpected SRT:\n%q\nwant:\n%q", output, want)
	}
}

func TestResponseTextDropsEmptyEntries(t *testing.T) {
	w := New("unused.srt")
	w.Add(SubtitleCue{Text: " hello "})
	w.Add(SubtitleCue{Text: "   "})
	w.Add(SubtitleCue{Text: "world"})
	if w.OcrEmptyCount() != 1 {
		t.Fatalf("expected one dropped empty cue, got %d", w.OcrEmptyCount())
	}
	if len(w.cues) != 2 {
		t.Fatalf("expected two buffered cues, got %d", len(w.cues))
	}
}

func TestMergeCuesCombinesOverlappingLines(t *testing.T) {
	cues := []SubtitleCue{
		{StartTime: 0, EndTime: 2 * time.Second, StartFrame: 1, Text: "Line A", CenterY: 0.9},
		{StartTime: 100 * time.Millisecond, EndTime: 2 * time.Second, StartFrame: 2, Text: "Line B", CenterY: 0.8},
	}
	sortCues(cues)
	merged := mergeCues(cues)
	if len(merged) != 1 {
		t.Fatalf("expected one merged cue, got %d", len(merged))
	}
	lines := orderedLines(merged[0])
	if len(lines) != 2 || lines[0] != "Line B" || lines[1] != "Line A" {
		t.Fatalf("expected [Line B, Line A] ordered by center_y, got %v", lines)
	}
}

func TestMergeCuesSplitsOnLargeGap(t *testing.T) {
	cues := []SubtitleCue{
		{StartTime: 0, EndTime: 1 * time.Second, Text: "hello"},
		{StartTime: 2 * time.Second, EndTime: 3 * time.Second, Text: "world"},
	}
	merged := mergeCues(cues)
	if len(merged) != 2 {
		t.Fatalf("expected two separate cues beyond merge gap, got %d", len(merged))
	}
}

func TestMergeCuesJoinsWithinGapOnRepeatedText(t *testing.T) {
	cues := []SubtitleCue{
		{StartTime: 0, EndTime: 1 * time.Second, Text: "hello"},
		{StartTime: 1*time.Second + 100*time.Millisecond, EndTime: 2 * time.Second, Text: "hello"},
	}
	merged := mergeCues(cues)
	if len(merged) != 1 {
		t.Fatalf("expected repeated text within gap to merge, got %d cues", len(merged))
	}
	if merged[0].EndTime != 2*time.Second {
		t.Fatalf("expected merged end_time to extend to 2s, got %v", merged[0].EndTime)
	}
}

func TestFinishWritesAtomicallyToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.srt")
	w := New(path)
	w.Add(SubtitleCue{StartTime: 0, EndTime: time.Second, Text: "hi"})

	merged, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(merged) != 1 {
		t.Fatalf("expected one merged cue, got %d", len(merged))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "1\n00:00:00,000 --> 00:00:01,000\nhi\n" {
		t.Fatalf("unexpected content: %q", string(data))
	}
}

func TestWriterIdempotence(t *testing.T) {
	dir := t.TempDir()
	cues := []SubtitleCue{{StartTime: 0, EndTime: time.Second, Text: "hi"}}

	pathA := filepath.Join(dir, "a.srt")
	wa := New(pathA)
	for _, c := range cues {
		wa.Add(c)
	}
	if _, err := wa.Finish(); err != nil {
		t.Fatalf("Finish a: %v", err)
	}

	pathB := filepath.Join(dir, "b.srt")
	wb := New(pathB)
	for _, c := range cues {
		wb.Add(c)
	}
	if _, err := wb.Finish(); err != nil {
		t.Fatalf("Finish b: %v", err)
	}

	a, _ := os.ReadFile(pathA)
	b, _ := os.ReadFile(pathB)
	if string(a) != string(b) {
		t.Fatalf("expected byte-identical output, got %q vs %q", a, b)
	}
}

func TestEmptyCueStreamWritesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.srt")
	w := New(path)
	merged, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(merged) != 0 {
		t.Fatalf("expected no merged cues, got %d", len(merged))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty file, got %q", data)
	}
}
