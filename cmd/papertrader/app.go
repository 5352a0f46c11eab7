package main

import (
	"fmt"
	"log/slog"

	"github.com/efreitasn/papertrader/internal/calendar"
	"github.com/efreitasn/papertrader/internal/config"
	"github.com/efreitasn/papertrader/internal/engine"
	"github.com/efreitasn/papertrader/internal/events"
	"github.com/efreitasn/papertrader/internal/quote"
	"github.com/efreitasn/papertrader/internal/service"
	"github.com/efreitasn/papertrader/internal/store"
)

// app holds the wired dependency graph shared by serve and match.
type app struct {
	logger    *slog.Logger
	store     store.Store
	calendar  *calendar.Calendar
	publisher *events.Publisher

	accounts  *service.AccountService
	orders    *service.OrderService
	portfolio *service.PortfolioService
	market    *service.MarketService
	webhooks  *service.WebhookService

	matcher   *engine.Matcher
	scheduler *engine.Scheduler
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	if cfg.DBPath != "" {
		st, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.store = st
		logger.Info("using sqlite store", slog.String("path", cfg.DBPath))
	} else {
		a.store = store.NewMemoryStore()
		logger.Info("using in-memory store")
	}

	cal, err := calendar.LoadFile(cfg.MarketTimezone, cfg.HolidaysFile)
	if err != nil {
		a.store.Close()
		return nil, err
	}
	a.calendar = cal

	var realtime, delayed quote.Source
	if cfg.QuoteRealtimeURL != "" {
		realtime = quote.NewHTTPSource(cfg.QuoteRealtimeURL, cfg.PriceTimeout)
	} else {
		logger.Warn("QUOTE_REALTIME_URL not set, no prices will be available")
		realtime = quote.NewStaticSource(nil)
	}
	if cfg.QuoteDelayedURL != "" {
		delayed = quote.NewHTTPSource(cfg.QuoteDelayedURL, cfg.PriceTimeout)
	}
	var closes quote.HistorySource
	if cfg.QuoteHistoryURL != "" {
		closes = quote.NewHTTPHistorySource(cfg.QuoteHistoryURL, cfg.PriceTimeout)
	}
	history := quote.NewHistory(a.store, closes, cal, logger)
	oracle := quote.NewTieredOracle(realtime, delayed, cfg.PriceCacheTTL, history)

	a.webhooks = service.NewWebhookService(store.NewWebhookStore(), a.store, cfg.WebhookTimeout, logger)
	notifiers := service.Notifiers{a.webhooks}
	if len(cfg.KafkaBrokers) > 0 {
		a.publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.WebhookTimeout, logger)
		notifiers = append(notifiers, a.publisher)
		logger.Info("publishing order events",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic),
		)
	}

	a.accounts = service.NewAccountService(a.store, cfg.StartingCash)
	a.orders = service.NewOrderService(a.store, cfg.Commission, notifiers)
	a.portfolio = service.NewPortfolioService(a.store, oracle, logger)
	a.market = service.NewMarketService(cal, oracle, history)

	a.matcher = engine.NewMatcher(a.store, oracle, notifiers, a.portfolio,
		engine.Timeouts{Price: cfg.PriceTimeout, Store: cfg.StoreTimeout}, logger)
	a.scheduler = engine.NewScheduler(cfg.MatchInterval, a.matcher, cal, logger)

	return a, nil
}

// Close flushes outstanding notifications and releases the store.
func (a *app) Close() {
	a.webhooks.Wait()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("close event publisher", slog.String("error", err.Error()))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("close store", slog.String("error", err.Error()))
	}
}
