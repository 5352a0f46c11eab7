package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/papertrader/internal/domain"
)

// WebhookStore keeps webhook subscriptions in memory. A user has at most
// one subscription per event.
type WebhookStore struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Webhook
	byUser map[string]map[string]*domain.Webhook // user_id → event → webhook
}

func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		byID:   make(map[string]*domain.Webhook),
		byUser: make(map[string]map[string]*domain.Webhook),
	}
}

// Upsert registers w, or repoints the user's existing subscription for the
// same event at w.URL. The stored webhook is returned together with true
// when a new subscription was created. Existing webhook IDs never change.
func (s *WebhookStore) Upsert(w *domain.Webhook) (*domain.Webhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byUser[w.UserID][w.Event]; ok {
		if existing.URL != w.URL {
			existing.URL = w.URL
			existing.UpdatedAt = w.UpdatedAt
		}
		c := *existing
		return &c, false
	}

	c := *w
	s.byID[c.WebhookID] = &c
	if s.byUser[c.UserID] == nil {
		s.byUser[c.UserID] = make(map[string]*domain.Webhook)
	}
	s.byUser[c.UserID][c.Event] = &c

	out := c
	return &out, true
}

func (s *WebhookStore) Get(id string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	c := *w
	return &c, nil
}

// ListByUser returns the user's subscriptions ordered by event name.
func (s *WebhookStore) ListByUser(userID string) []*domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Webhook, 0, len(s.byUser[userID]))
	for _, w := range s.byUser[userID] {
		c := *w
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Event < result[j].Event })
	return result
}

// Delete removes a subscription owned by userID. Subscriptions of other
// users are reported as not found.
func (s *WebhookStore) Delete(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.byID[id]
	if !ok || w.UserID != userID {
		return domain.ErrWebhookNotFound
	}
	delete(s.byID, id)
	if events, ok := s.byUser[w.UserID]; ok {
		delete(events, w.Event)
		if len(events) == 0 {
			delete(s.byUser, w.UserID)
		}
	}
	return nil
}

// Lookup returns the user's subscription for event, or nil.
func (s *WebhookStore) Lookup(userID, event string) *domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byUser[userID][event]
	if !ok {
		return nil
	}
	c := *w
	return &c
}
