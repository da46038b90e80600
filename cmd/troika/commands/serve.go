package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kestrelab/troika/internal/api"
	"github.com/kestrelab/troika/internal/printer"
)

var serveListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API over HTTP",
	Long: `Run the HTTP API. POST /api/v1/ask answers a question synchronously;
GET /healthz reports liveness.

Examples:
  troika serve
  troika serve --listen :9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	engine, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return printer.Error("failed to build engine", err.Error(),
			[]string{"Set the model API key, e.g. export " + cfg.Model.APIKeyEnv + "=..."})
	}

	server, err := api.NewServer(engine, logger)
	if err != nil {
		return printer.Error("failed to build server", err.Error(), nil)
	}

	addr := cfg.Server.ListenAddr
	if serveListenAddr != "" {
		addr = serveListenAddr
	}

	printer.Step("serving on %s\n", addr)

	if err := server.ListenAndServe(ctx, addr); err != nil {
		return printer.Error("server failed", err.Error(), nil)
	}
	return nil
}
