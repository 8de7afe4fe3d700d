// Command duesctl runs the dues engine against a YAML dataset: balances,
// overdue reports, statement batches and the monthly automation pipeline.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xraph/dues/internal/config"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	level, _ := cfg.Level()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	rootCmd := newRootCmd(&app{cfg: cfg, logger: logger, out: os.Stdout})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "duesctl",
		Short: "Family dues ledgers, statements and monthly automations",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfg.DataFile, "data", a.cfg.DataFile, "dataset file (env DUES_DATA)")
	rootCmd.PersistentFlags().StringVar(&a.today, "today", "", "pin the engine clock to this date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().BoolVar(&a.json, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		newBalanceCmd(a),
		newOverdueCmd(a),
		newTriggersCmd(a),
		newStatementsCmd(a),
		newAutomationsCmd(a),
	)
	return rootCmd
}
