package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kestrelab/troika/internal/config"
	"github.com/kestrelab/troika/internal/logging"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "troika",
	Short: "Troika - Plan/retrieve/reason agent pipeline",
	Long: `Troika answers questions by coordinating three model-backed agents
over a shared blackboard: a planner that decomposes the query, a retriever
that gathers web evidence in bounded rounds, and a reasoner that derives a
cited answer. Every answer passes a quality review before it is emitted;
answers that exhaust their retry budget are emitted with a warning instead
of being withheld.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to troika.yml (defaults are used if absent)")
}

// loadConfig resolves the effective configuration for a command invocation.
func loadConfig() (*config.Config, error) {
	return config.LoadOrDefault(configPath)
}

// buildLogger constructs the structured logger the configuration asks for.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format)
}
