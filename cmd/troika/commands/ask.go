package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kestrelab/troika/internal/attach"
	"github.com/kestrelab/troika/internal/orchestrator"
	"github.com/kestrelab/troika/internal/printer"
)

var (
	askAttachments []string
	askRunID       string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question",
	Long: `Answer a single question through the full pipeline: plan, retrieve
web evidence if the plan calls for it, reason, and review.

The terminal result is also written under the configured output directory,
one subdirectory per run.

Examples:
  # Plain question
  troika ask "What year was the first moon landing?"

  # Question about local files
  troika ask "Summarise the anomalies in this data" --attach data.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringArrayVarP(&askAttachments, "attach", "a", nil, "Attachment file (repeatable)")
	askCmd.Flags().StringVar(&askRunID, "run-id", "", "Run identifier (generated if omitted)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	summaries, err := attach.SummarizeAll(askAttachments)
	if err != nil {
		return printer.Error("failed to read attachments", err.Error(),
			[]string{"Check that every --attach path exists and is a readable file"})
	}

	engine, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return printer.Error("failed to build engine", err.Error(),
			[]string{"Set the model API key, e.g. export " + cfg.Model.APIKeyEnv + "=..."})
	}

	printer.Step("answering: %s\n", args[0])

	result, err := engine.Run(ctx, orchestrator.Request{
		RunID:       askRunID,
		Query:       args[0],
		Attachments: summaries,
	})
	if err != nil {
		return printer.Error("run failed", err.Error(), nil)
	}

	printer.Answer(result)
	printer.Info("result written to %s\n", cfg.Output.Dir)
	return nil
}
