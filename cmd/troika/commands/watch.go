package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kestrelab/troika/internal/printer"
	"github.com/kestrelab/troika/pkg/blackboard"
)

var (
	watchRunID        string
	watchOutputFormat string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor a run's blackboard in real time",
	Long: `Stream a run's board mutations as they happen: each stage's write
and every reset. Requires Redis-backed boards (redis.addr in troika.yml).

Output Formats:
  default - Human-readable output with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch a run started elsewhere with troika ask --run-id demo
  troika watch --run demo

  # Export events as JSON
  troika watch --run demo --output=json > events.jsonl`,
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().StringVar(&watchRunID, "run", "", "Run identifier to watch (required)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(watchCmd)
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watchOutputFormat != "default" && watchOutputFormat != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("invalid configuration", err.Error(), nil)
	}
	if cfg.Redis.Addr == "" {
		return printer.Error(
			"watch requires Redis-backed boards",
			"In-process boards are not observable from another process.",
			[]string{"Set redis.addr in troika.yml and start the run again"},
		)
	}

	client, err := blackboard.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, watchRunID)
	if err != nil {
		return printer.Error("failed to create board client", err.Error(), nil)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return printer.Error("cannot reach Redis", err.Error(),
			[]string{fmt.Sprintf("Check that Redis is running at %s", cfg.Redis.Addr)})
	}

	sub, err := client.SubscribeBoardEvents(ctx)
	if err != nil {
		return printer.Error("failed to subscribe", err.Error(), nil)
	}
	defer sub.Close()

	printer.Step("watching run %s (ctrl-c to stop)\n", watchRunID)

	encoder := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			printer.Warning("event error: %v\n", err)
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if watchOutputFormat == "json" {
				if err := encoder.Encode(event); err != nil {
					return err
				}
				continue
			}
			printEvent(event)
		}
	}
}

func printEvent(event *blackboard.BoardEvent) {
	stamp := time.Now().Format("15:04:05")
	switch event.Op {
	case blackboard.BoardOpWrite:
		printer.Info("[%s] write  %-10s %d bytes\n", stamp, event.Namespace, len(event.Document))
	case blackboard.BoardOpReset:
		target := string(event.Namespace)
		if target == "" {
			target = "all"
		}
		printer.Info("[%s] reset  %s\n", stamp, target)
	default:
		printer.Info("[%s] %s %s\n", stamp, event.Op, event.Namespace)
	}
}
