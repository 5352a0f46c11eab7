package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var matchForce bool

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Run a single matching cycle and print its report",
	Long: `Match evaluates every pending order once against live prices and exits.

The cycle is refused while the market is closed unless --force is given.`,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().BoolVar(&matchForce, "force", false, "run even when the market is closed")
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to start", slog.String("error", err.Error()))
		return err
	}
	defer a.Close()

	report, err := a.scheduler.RunOnce(context.Background(), time.Now(), matchForce)
	if err != nil {
		logger.Error("matching cycle refused", slog.String("error", err.Error()))
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
