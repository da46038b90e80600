package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kestrelab/troika/internal/eval"
	"github.com/kestrelab/troika/internal/printer"
)

var (
	evalTasksPath   string
	evalOutPath     string
	evalDataDir     string
	evalConcurrency int
	evalHistoryPath string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run a benchmark task batch",
	Long: `Run a JSONL file of benchmark tasks through the pipeline, appending
one JSONL record per task to the output file.

Batches are resumable: tasks already present in the output file are skipped,
so an interrupted batch picks up where it left off.

Examples:
  # Run a batch with four tasks in flight
  troika eval --tasks tasks.jsonl --out results.jsonl --concurrency 4

  # Task attachments resolve against --data
  troika eval --tasks tasks.jsonl --out results.jsonl --data ./benchmark_files

  # Keep a history database across batches
  troika eval --tasks tasks.jsonl --out results.jsonl --history eval.db`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalTasksPath, "tasks", "", "Task file (JSONL, required)")
	evalCmd.Flags().StringVar(&evalOutPath, "out", "", "Output file (JSONL, required)")
	evalCmd.Flags().StringVar(&evalDataDir, "data", ".", "Directory task attachments resolve against")
	evalCmd.Flags().IntVar(&evalConcurrency, "concurrency", 2, "Tasks in flight at once")
	evalCmd.Flags().StringVar(&evalHistoryPath, "history", "", "SQLite history database (optional)")
	evalCmd.MarkFlagRequired("tasks")
	evalCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("invalid configuration", err.Error(), nil)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return printer.Error("failed to build logger", err.Error(), nil)
	}
	defer logger.Sync()

	tasks, err := eval.LoadTasks(evalTasksPath)
	if err != nil {
		return printer.Error("failed to load tasks", err.Error(), nil)
	}

	engine, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return printer.Error("failed to build engine", err.Error(),
			[]string{"Set the model API key, e.g. export " + cfg.Model.APIKeyEnv + "=..."})
	}

	var store *eval.Store
	if evalHistoryPath != "" {
		store, err = eval.OpenStore(evalHistoryPath)
		if err != nil {
			return printer.Error("failed to open history store", err.Error(), nil)
		}
		defer store.Close()
	}

	runner, err := eval.NewRunner(engine, evalDataDir, evalConcurrency, store, logger)
	if err != nil {
		return printer.Error("failed to build runner", err.Error(), nil)
	}

	printer.Step("running %d tasks\n", len(tasks))

	if err := runner.Run(ctx, tasks, evalOutPath); err != nil {
		return printer.Error("batch failed", err.Error(),
			[]string{"Re-run the same command to resume; completed tasks are skipped"})
	}

	printer.Success("batch complete, records in %s\n", evalOutPath)
	return nil
}
