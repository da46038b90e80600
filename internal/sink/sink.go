// Package sink persists terminal run results to disk. Writes are atomic so
// a crash mid-write never leaves a consumer reading a truncated result.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/kestrelab/troika/internal/orchestrator"
)

// FileSink writes each run's result as pretty-printed JSON under a base
// directory, one subdirectory per run.
type FileSink struct {
	dir      string
	filename string
}

// NewFileSink creates a sink rooted at dir. The directory is created on
// first write.
func NewFileSink(dir, filename string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	if filename == "" {
		return nil, fmt.Errorf("result filename cannot be empty")
	}
	return &FileSink{dir: dir, filename: filename}, nil
}

// ResultPath returns where the given run's result document lands.
func (s *FileSink) ResultPath(runID string) string {
	return filepath.Join(s.dir, runID, s.filename)
}

// AnswerPath returns where the given run's human-readable answer lands.
func (s *FileSink) AnswerPath(runID string) string {
	return filepath.Join(s.dir, runID, "answer.md")
}

// WriteResult persists the full result document plus a Markdown answer
// file, each atomically, replacing any previous output for the same run.
func (s *FileSink) WriteResult(_ context.Context, result *orchestrator.Result) error {
	if result.RunID == "" {
		return fmt.Errorf("result has no run ID")
	}

	path := s.ResultPath(result.RunID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create result directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')

	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if err := renameio.WriteFile(s.AnswerPath(result.RunID), renderAnswer(result), 0o644); err != nil {
		return fmt.Errorf("failed to write answer: %w", err)
	}
	return nil
}

// renderAnswer produces the Markdown answer file.
func renderAnswer(result *orchestrator.Result) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Answer\n\n%s\n", result.Answer)

	if result.QualityWarning {
		fmt.Fprintf(&sb, "\n> **Warning:** %s\n", result.WarningReason)
	}
	if result.Reasoning != nil {
		fmt.Fprintf(&sb, "\n## Reasoning\n\n%s\n", result.Reasoning.Reasoning)
		if len(result.Reasoning.Citations) > 0 {
			sb.WriteString("\n## Citations\n\n")
			for _, url := range result.Reasoning.Citations {
				fmt.Fprintf(&sb, "- %s\n", url)
			}
		}
	}
	return []byte(sb.String())
}

var _ orchestrator.ResultSink = (*FileSink)(nil)
