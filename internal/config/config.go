package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration for papertrader.
type Config struct {
	Port     int
	LogLevel string

	// DBPath selects the SQLite store; empty keeps everything in memory.
	DBPath string

	MatchInterval time.Duration
	PriceTimeout  time.Duration
	StoreTimeout  time.Duration
	PriceCacheTTL time.Duration

	Commission   int64 // cents
	StartingCash int64 // cents

	QuoteRealtimeURL string
	QuoteDelayedURL  string
	QuoteHistoryURL  string

	MarketTimezone string
	HolidaysFile   string

	WebhookTimeout time.Duration
	KafkaBrokers   []string
	KafkaTopic     string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:           getStr("DB_PATH", ""),
		QuoteRealtimeURL: getStr("QUOTE_REALTIME_URL", ""),
		QuoteDelayedURL:  getStr("QUOTE_DELAYED_URL", ""),
		QuoteHistoryURL:  getStr("QUOTE_HISTORY_URL", ""),
		MarketTimezone:   getStr("MARKET_TIMEZONE", "America/New_York"),
		HolidaysFile:     getStr("HOLIDAYS_FILE", ""),
		KafkaBrokers:     getList("KAFKA_BROKERS"),
		KafkaTopic:       getStr("KAFKA_TOPIC", "papertrader.orders"),
	}

	var err error
	cfg.Port, err = getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	cfg.LogLevel = getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", cfg.LogLevel)
	}

	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"MATCH_INTERVAL", &cfg.MatchInterval, time.Minute},
		{"PRICE_TIMEOUT", &cfg.PriceTimeout, 5 * time.Second},
		{"STORE_TIMEOUT", &cfg.StoreTimeout, 5 * time.Second},
		{"PRICE_CACHE_TTL", &cfg.PriceCacheTTL, 15 * time.Minute},
		{"WEBHOOK_TIMEOUT", &cfg.WebhookTimeout, 5 * time.Second},
		{"READ_TIMEOUT", &cfg.ReadTimeout, 5 * time.Second},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout, 10 * time.Second},
		{"IDLE_TIMEOUT", &cfg.IdleTimeout, 60 * time.Second},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout, 10 * time.Second},
	}
	for _, d := range durations {
		*d.dst, err = getDuration(d.key, d.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}
	if cfg.MatchInterval <= 0 {
		return nil, fmt.Errorf("invalid MATCH_INTERVAL: must be positive")
	}

	cfg.Commission, err = getMoney("COMMISSION", "19.99")
	if err != nil {
		return nil, fmt.Errorf("invalid COMMISSION: %w", err)
	}
	cfg.StartingCash, err = getMoney("STARTING_CASH", "100000.00")
	if err != nil {
		return nil, fmt.Errorf("invalid STARTING_CASH: %w", err)
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("invalid KAFKA_TOPIC: required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getList splits a comma-separated value, dropping empty entries.
func getList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getMoney parses a non-negative dollar amount with at most two decimal
// places and returns it in cents.
func getMoney(key, defaultVal string) (int64, error) {
	d, err := decimal.NewFromString(getStr(key, defaultVal))
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("must not be negative")
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("must have at most 2 decimal places")
	}
	return cents.IntPart(), nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
