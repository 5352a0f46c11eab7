package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/efreitasn/papertrader/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "Paper-trading backend with limit-order matching and settlement",
	Long: `papertrader keeps simulated cash accounts, accepts BUY/SELL limit orders
on real tickers and periodically matches pending orders against live prices.

Configuration is read from environment variables (PORT, DB_PATH,
MATCH_INTERVAL, QUOTE_REALTIME_URL, ...).`,
	SilenceUsage: true,
}

// loadConfig reads the environment and builds the JSON logger used by
// every subcommand.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		return nil, nil, err
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
