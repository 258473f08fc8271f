package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		port       string
	)

	cmd := &cobra.Command{
		Use:   "trivia-stats",
		Short: "Daily trivia results and statistics pipeline",
		Long: "trivia-stats ingests quiz votes and completions, serves per-day answer\n" +
			"distributions from an edge cache, and keeps per-user streaks, badges and\n" +
			"history in a durable profile store.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("CONFIG_PATH", "config/config.yaml"), "path to YAML config")
	cmd.PersistentFlags().StringVar(&port, "port", os.Getenv("PORT"), "port to listen on (overrides config)")

	cmd.AddCommand(
		NewServeCmd(&configPath, &port),
		NewRefreshCmd(&configPath),
		NewMigrateCmd(&configPath),
	)
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
