// Package eval runs batches of benchmark tasks through the engine. Tasks
// come in as JSONL, results go out as JSONL, and an interrupted batch can
// be resumed: tasks already present in the output file are skipped.
package eval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelab/troika/internal/attach"
	"github.com/kestrelab/troika/internal/orchestrator"
)

// FileList accepts both a single filename and a list of filenames, the two
// shapes benchmark files use for the file_name field.
type FileList []string

// UnmarshalJSON implements the string-or-list decoding.
func (f *FileList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*f = nil
		} else {
			*f = FileList{single}
		}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("file_name must be a string or a list of strings")
	}
	*f = FileList(many)
	return nil
}

// Task is one benchmark question.
type Task struct {
	ID        string   `json:"id,omitempty"`
	Question  string   `json:"question"`
	FileNames FileList `json:"file_name,omitempty"`
	Expected  string   `json:"answer,omitempty"`
}

// Record is one task's outcome as written to the output JSONL.
type Record struct {
	TaskID         string             `json:"task_id"`
	Question       string             `json:"question"`
	Answer         string             `json:"answer"`
	Expected       string             `json:"expected,omitempty"`
	State          orchestrator.State `json:"state,omitempty"`
	QualityWarning bool               `json:"quality_warning"`
	DurationMS     int64              `json:"duration_ms"`
	Error          string             `json:"error,omitempty"`
}

// LoadTasks reads tasks from a JSONL file. Blank lines are skipped; a
// malformed line fails the load with its line number. Tasks without an ID
// get one derived from their line number.
func LoadTasks(path string) ([]Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open task file: %w", err)
	}
	defer f.Close()

	var tasks []Task
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var task Task
		if err := json.Unmarshal([]byte(line), &task); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if task.Question == "" {
			return nil, fmt.Errorf("line %d: question is required", lineNo)
		}
		if task.ID == "" {
			task.ID = fmt.Sprintf("task-%d", lineNo)
		}
		tasks = append(tasks, task)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}
	return tasks, nil
}

// engineRunner is the slice of the orchestrator the batch runner needs.
type engineRunner interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// Runner executes tasks concurrently and appends records to an output file.
type Runner struct {
	engine      engineRunner
	attachDir   string
	concurrency int
	store       *Store
	logger      *zap.Logger
}

// NewRunner creates a batch runner. attachDir is where task file_name
// entries resolve; store may be nil to skip history persistence.
func NewRunner(engine engineRunner, attachDir string, concurrency int, store *Store, logger *zap.Logger) (*Runner, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		engine:      engine,
		attachDir:   attachDir,
		concurrency: concurrency,
		store:       store,
		logger:      logger,
	}, nil
}

// Run executes every task not already recorded in outPath, appending one
// JSONL record per task. A failed task is recorded, not fatal; the batch
// stops early only on context cancellation.
func (r *Runner) Run(ctx context.Context, tasks []Task, outPath string) error {
	completed, err := completedTaskIDs(outPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer out.Close()

	var mu sync.Mutex
	encoder := json.NewEncoder(out)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, task := range tasks {
		if completed[task.ID] {
			r.logger.Debug("skipping completed task", zap.String("task_id", task.ID))
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			record := r.runTask(ctx, task)

			mu.Lock()
			encodeErr := encoder.Encode(record)
			mu.Unlock()
			if encodeErr != nil {
				return fmt.Errorf("failed to write record for task %s: %w", task.ID, encodeErr)
			}

			if r.store != nil {
				if storeErr := r.store.SaveRecord(ctx, record); storeErr != nil {
					r.logger.Warn("failed to persist record",
						zap.String("task_id", task.ID), zap.Error(storeErr))
				}
			}
			return nil
		})
	}

	return g.Wait()
}

func (r *Runner) runTask(ctx context.Context, task Task) Record {
	record := Record{
		TaskID:   task.ID,
		Question: task.Question,
		Expected: task.Expected,
	}

	start := time.Now()
	defer func() {
		record.DurationMS = time.Since(start).Milliseconds()
	}()

	paths := make([]string, len(task.FileNames))
	for i, name := range task.FileNames {
		paths[i] = filepath.Join(r.attachDir, name)
	}
	summaries, err := attach.SummarizeAll(paths)
	if err != nil {
		record.Error = err.Error()
		return record
	}

	result, err := r.engine.Run(ctx, orchestrator.Request{
		RunID:       "eval-" + task.ID,
		Query:       task.Question,
		Attachments: summaries,
	})
	if err != nil {
		record.Error = err.Error()
		return record
	}

	record.Answer = result.Answer
	record.State = result.State
	record.QualityWarning = result.QualityWarning
	return record
}

// completedTaskIDs reads the task IDs already recorded in a previous,
// possibly interrupted, batch. A missing output file means a fresh start.
func completedTaskIDs(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("failed to open existing output: %w", err)
	}
	defer f.Close()

	done := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			// A torn trailing line from an interrupted batch is re-run.
			continue
		}
		if record.TaskID != "" {
			done[record.TaskID] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read existing output: %w", err)
	}
	return done, nil
}
