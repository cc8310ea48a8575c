// Package writer implements S6 of the pipeline (spec.md §4.6): it buffers
// OCR cues, merges flickering/overlapping occurrences of the same text at
// shutdown, and serializes the result to a standard SRT file.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// mergeGap is the maximum time gap between two cues bearing the same text
// that still merges them into one entry (spec.md §4.6).
const mergeGap = 120 * time.Millisecond

// SubtitleCue is one buffered OCR recognition, ready for sort+merge.
type SubtitleCue struct {
	StartTime  time.Duration
	EndTime    time.Duration
	StartFrame uint64
	Text       string
	CenterY    float32
}

// SubtitleLine is one line within a merged cue, carrying the vertical
// center used to order lines top-to-bottom.
type SubtitleLine struct {
	CenterY float32
	Text    string
}

// MergedSubtitle is one finished SRT entry.
type MergedSubtitle struct {
	StartTime time.Duration
	EndTime   time.Duration
	Lines     []SubtitleLine
}

// Error is the writer's error taxonomy (spec.md §7).
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

// ErrorKind enumerates the writer failure categories spec.md §7 names.
// EmptyOutput is not actually returned by Finish/Write — an empty cue
// stream is a legitimate outcome, not an error — but the kind is kept so
// callers distinguishing error classes have a name for it.
type ErrorKind int

const (
	ErrIO ErrorKind = iota
	ErrEmptyOutput
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("writer: %s: %s", e.Path, e.Err)
	}
	return "writer: " + e.Path
}

func (e *Error) Unwrap() error { return e.Err }

// Writer accumulates cues across the run and produces the final SRT
// document at shutdown. Not safe for concurrent use; the pipeline drives
// it from the OCR stage's consumer goroutine.
type Writer struct {
	path      string
	cues      []SubtitleCue
	ocrEmpty  int
	mergedLen int
}

// New builds a Writer that will serialize to path on Finish.
func New(path string) *Writer {
	return &Writer{path: path}
}

// Add buffers one cue. An empty text increments the ocr_empty counter and
// is dropped rather than buffered (spec.md §4.6).
func (w *Writer) Add(cue SubtitleCue) {
	if strings.TrimSpace(cue.Text) == "" {
		w.ocrEmpty++
		return
	}
	w.cues = append(w.cues, cue)
}

// OcrEmptyCount returns how many added cues were dropped for having empty
// text, for the progress reporter.
func (w *Writer) OcrEmptyCount() int { return w.ocrEmpty }

// MergedCount returns how many merged cues the last Finish call produced.
func (w *Writer) MergedCount() int { return w.mergedLen }

// CueCount returns how many non-empty cues have been buffered so far, for
// progress reporting while the run is still in flight.
func (w *Writer) CueCount() int { return len(w.cues) }

// Finish sorts, merges, and serializes the buffered cues to the writer's
// output path, returning the merged cues it wrote.
func (w *Writer) Finish() ([]MergedSubtitle, error) {
	cues := append([]SubtitleCue(nil), w.cues...)
	sortCues(cues)
	merged := mergeCues(cues)
	w.mergedLen = len(merged)

	if err := w.write(merged); err != nil {
		return merged, err
	}
	return merged, nil
}

func (w *Writer) write(cues []MergedSubtitle) error {
	if dir := filepath.Dir(w.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &Error{Kind: ErrIO, Path: w.path, Err: err}
		}
	}
	content := buildSRT(cues)
	if err := os.WriteFile(w.path, []byte(content), 0o644); err != nil {
		return &Error{Kind: ErrIO, Path: w.path, Err: err}
	}
	return nil
}

func sortCues(cues []SubtitleCue) {
	sort.Slice(cues, func(i, j int) bool {
		if cues[i].StartTime != cues[j].StartTime {
			return cues[i].StartTime < cues[j].StartTime
		}
		return cues[i].StartFrame < cues[j].StartFrame
	})
}

// mergeCues walks the sorted cue list, folding each cue into the current
// merged entry when it overlaps or is within mergeGap and repeats an
// already-present line, starting a new entry otherwise (spec.md §4.6).
func mergeCues(cues []SubtitleCue) []MergedSubtitle {
	var merged []MergedSubtitle
	for _, cue := range cues {
		if len(merged) > 0 && shouldMerge(&merged[len(merged)-1], cue) {
			last := &merged[len(merged)-1]
			if cue.StartTime < last.StartTime {
				last.StartTime = cue.StartTime
			}
			if cue.EndTime > last.EndTime {
				last.EndTime = cue.EndTime
			}
			if !hasLine(last.Lines, cue.Text) {
				last.Lines = append(last.Lines, SubtitleLine{CenterY: cue.CenterY, Text: cue.Text})
			}
			continue
		}
		merged = append(merged, MergedSubtitle{
			StartTime: cue.StartTime,
			EndTime:   cue.EndTime,
			Lines:     []SubtitleLine{{CenterY: cue.CenterY, Text: cue.Text}},
		})
	}
	return merged
}

func shouldMerge(current *MergedSubtitle, incoming SubtitleCue) bool {
	if incoming.StartTime <= current.EndTime {
		return true
	}
	gap := incoming.StartTime - current.EndTime
	if gap > mergeGap {
		return false
	}
	return hasLine(current.Lines, incoming.Text)
}

func hasLine(lines []SubtitleLine, text string) bool {
	for _, l := range lines {
		if l.Text == text {
			return true
		}
	}
	return false
}

// orderedLines sorts a merged cue's lines by center_y ascending and
// collapses adjacent duplicates (spec.md §4.6).
func orderedLines(cue MergedSubtitle) []string {
	sorted := append([]SubtitleLine(nil), cue.Lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CenterY < sorted[j].CenterY })

	var lines []string
	for _, l := range sorted {
		text := strings.TrimSpace(l.Text)
		if text == "" {
			continue
		}
		if len(lines) > 0 && lines[len(lines)-1] == text {
			continue
		}
		lines = append(lines, text)
	}
	return lines
}

// buildSRT renders the standard SRT document: 1-based index, timestamp
// range, text lines, blank-line separator (spec.md §6).
func buildSRT(cues []MergedSubtitle) string {
	var b strings.Builder
	index := 0
	for _, cue := range cues {
		lines := orderedLines(cue)
		if len(lines) == 0 {
			continue
		}
		index++
		if index > 1 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n", index)
		fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(cue.StartTime), formatTimestamp(cue.EndTime))
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// formatTimestamp renders HH:MM:SS,mmm with zero-padded fields, computed
// from whole milliseconds (spec.md §4.6).
func formatTimestamp(d time.Duration) string {
	millis := d.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	hours := millis / 3_600_000
	minutes := (millis % 3_600_000) / 60_000
	seconds := (millis % 60_000) / 1000
	remainMs := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, remainMs)
}
