// Package attach turns user-supplied attachment files into short text
// summaries the planner and reasoner prompts can carry. Raw file contents
// never reach a prompt; only the summary does.
package attach

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// maxPreviewBytes bounds how much of a text file is read for its preview.
	maxPreviewBytes = 4096

	// maxPreviewLines bounds the preview itself.
	maxPreviewLines = 12
)

// Summarize produces a one-blob textual summary of the file at path.
func Summarize(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat attachment: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("attachment %s is a directory", path)
	}

	name := filepath.Base(path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return summarizeCSV(path, name, info.Size())
	default:
		return summarizeGeneric(path, name, info.Size())
	}
}

// SummarizeAll summarizes every path in order. One unreadable attachment
// fails the whole batch; a run should not silently proceed with partial
// context.
func SummarizeAll(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	summaries := make([]string, 0, len(paths))
	for _, path := range paths {
		summary, err := Summarize(path)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// summarizeCSV reports the header and row count so the model knows the
// table's shape without seeing every row.
func summarizeCSV(path, name string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		// Not actually parseable as CSV; fall back to a plain preview.
		return summarizeGeneric(path, name, size)
	}
	if len(records) == 0 {
		return fmt.Sprintf("attachment %s: empty CSV file (%d bytes)", name, size), nil
	}

	header := strings.Join(records[0], ", ")
	return fmt.Sprintf("attachment %s: CSV with columns [%s], %d data rows (%d bytes)",
		name, header, len(records)-1, size), nil
}

// summarizeGeneric previews text files and reports only stats for binary
// ones.
func summarizeGeneric(path, name string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	buf := make([]byte, maxPreviewBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return fmt.Sprintf("attachment %s: unreadable content (%d bytes)", name, size), nil
	}
	buf = buf[:n]

	if !looksLikeText(buf) {
		return fmt.Sprintf("attachment %s: binary file (%d bytes)", name, size), nil
	}

	lines := strings.Split(string(buf), "\n")
	truncated := size > int64(n) || len(lines) > maxPreviewLines
	if len(lines) > maxPreviewLines {
		lines = lines[:maxPreviewLines]
	}

	preview := strings.TrimRight(strings.Join(lines, "\n"), "\n")
	if truncated {
		preview += "\n..."
	}
	return fmt.Sprintf("attachment %s (%d bytes):\n%s", name, size, preview), nil
}

// looksLikeText treats valid UTF-8 without NUL bytes as text. The cut at
// maxPreviewBytes can split a rune, so a trailing invalid sequence is
// tolerated.
func looksLikeText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	for _, b := range data {
		if b == 0 {
			return false
		}
	}
	trimmed := data
	for len(trimmed) > 0 && !utf8.Valid(trimmed) {
		trimmed = trimmed[:len(trimmed)-1]
		if len(data)-len(trimmed) > utf8.UTFMax {
			return false
		}
	}
	return true
}
