package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/events"
	"github.com/efreitasn/papertrader/internal/store"
	"github.com/google/uuid"
)

var validWebhookEvents = func() map[string]bool {
	m := make(map[string]bool, len(events.Types))
	for _, e := range events.Types {
		m[e] = true
	}
	return m
}()

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	UserID string
	URL    string
	Events []string
}

// WebhookService handles webhook CRUD and event dispatch.
type WebhookService struct {
	store    *store.WebhookStore
	accounts store.Store
	client   *http.Client
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewWebhookService creates a new WebhookService with the given dependencies.
func NewWebhookService(
	webhookStore *store.WebhookStore,
	accounts store.Store,
	webhookTimeout time.Duration,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		store:    webhookStore,
		accounts: accounts,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		logger: logger,
	}
}

// Upsert validates the request and creates or updates webhook subscriptions.
// Returns the resulting webhooks, whether any new subscriptions were created, and any error.
func (s *WebhookService) Upsert(ctx context.Context, req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	if _, err := s.accounts.GetAccount(ctx, req.UserID); err != nil {
		return nil, false, err
	}

	// Validate URL.
	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	// Deduplicate events while preserving order and validating.
	seen := make(map[string]bool, len(req.Events))
	deduped := make([]string, 0, len(req.Events))
	for _, event := range req.Events {
		if !validWebhookEvents[event] {
			return nil, false, &domain.ValidationError{
				Message: "Unknown event type: " + event + ". Must be one of: " + strings.Join(events.Types, ", "),
			}
		}
		if !seen[event] {
			seen[event] = true
			deduped = append(deduped, event)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(deduped))
	for _, event := range deduped {
		w, created := s.store.Upsert(&domain.Webhook{
			WebhookID: uuid.New().String(),
			UserID:    req.UserID,
			Event:     event,
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if created {
			anyCreated = true
		}
		webhooks = append(webhooks, w)
	}

	return webhooks, anyCreated, nil
}

// List validates the account exists and returns its webhook subscriptions.
func (s *WebhookService) List(ctx context.Context, userID string) ([]*domain.Webhook, error) {
	if _, err := s.accounts.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListByUser(userID), nil
}

// Delete removes one of the user's webhook subscriptions.
func (s *WebhookService) Delete(userID, webhookID string) error {
	return s.store.Delete(userID, webhookID)
}

func (s *WebhookService) OrderCompleted(order *domain.Order, t *domain.Transaction) {
	s.dispatch(events.NewOrderEvent(events.OrderCompleted, order, t, time.Now()))
}

func (s *WebhookService) OrderFailed(order *domain.Order) {
	s.dispatch(events.NewOrderEvent(events.OrderFailed, order, nil, time.Now()))
}

func (s *WebhookService) OrderCancelled(order *domain.Order) {
	s.dispatch(events.NewOrderEvent(events.OrderCancelled, order, nil, time.Now()))
}

// dispatch delivers e to the owner's subscription for its type, if any.
// Delivery is fire-and-forget.
func (s *WebhookService) dispatch(e events.OrderEvent) {
	wh := s.store.Lookup(e.Data.UserID, e.Event)
	if wh == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(wh, e)
	}()
}

// Wait blocks until every delivery started so far has finished.
func (s *WebhookService) Wait() {
	s.wg.Wait()
}

// deliver sends the webhook payload via HTTP POST with the required headers.
// Failures are logged and not retried.
func (s *WebhookService) deliver(wh *domain.Webhook, e events.OrderEvent) {
	body, err := json.Marshal(e)
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return
	}

	deliveryID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", deliveryID)
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", e.Event)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook delivery failed",
			slog.String("webhook_id", wh.WebhookID),
			slog.String("delivery_id", deliveryID),
			slog.String("error", err.Error()),
		)
		return
	}
	resp.Body.Close()
}

var _ OrderListener = (*WebhookService)(nil)
