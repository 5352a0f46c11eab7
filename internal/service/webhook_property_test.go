package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/events"
	"github.com/efreitasn/papertrader/internal/store"
	"pgregory.net/rapid"
)

// Re-registering the same (user_id, event) pair keeps the webhook_id stable
// whether or not the URL changes, and only the first registration creates.
func TestProperty_WebhookUpsertIdempotency(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := store.NewMemoryStore()
		svc := NewWebhookService(store.NewWebhookStore(), st, 5*time.Second, discardLogger())
		ctx := context.Background()

		userID := fmt.Sprintf("user-%d", rapid.IntRange(1, 9999).Draw(t, "userSuffix"))
		if err := st.CreateAccount(ctx, &domain.Account{UserID: userID, CashBalance: 100000}); err != nil {
			t.Fatalf("failed to create account: %v", err)
		}

		event := rapid.SampledFrom(events.Types).Draw(t, "event")
		urls := rapid.SliceOfN(
			rapid.Custom(func(t *rapid.T) string {
				return fmt.Sprintf("https://example.com/hook/%d", rapid.IntRange(1, 5).Draw(t, "urlSuffix"))
			}), 1, 8,
		).Draw(t, "urls")

		var originalID string
		for i, u := range urls {
			webhooks, created, err := svc.Upsert(ctx, UpsertWebhookRequest{
				UserID: userID,
				URL:    u,
				Events: []string{event},
			})
			if err != nil {
				t.Fatalf("upsert %d failed: %v", i, err)
			}
			if created != (i == 0) {
				t.Fatalf("upsert %d: created = %v", i, created)
			}
			if len(webhooks) != 1 {
				t.Fatalf("upsert %d: expected 1 webhook, got %d", i, len(webhooks))
			}
			if i == 0 {
				originalID = webhooks[0].WebhookID
			}
			if webhooks[0].WebhookID != originalID {
				t.Fatalf("upsert %d: webhook_id changed from %q to %q", i, originalID, webhooks[0].WebhookID)
			}
			if webhooks[0].URL != u {
				t.Fatalf("upsert %d: URL = %q, want %q", i, webhooks[0].URL, u)
			}
		}

		list, err := svc.List(ctx, userID)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(list) != 1 || list[0].URL != urls[len(urls)-1] {
			t.Fatalf("stored subscriptions = %+v", list)
		}
	})
}
