package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type guardStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookKey(provider, eventID string) string
}

// IdempotencyGuard is the Redis fast path in front of the webhook_events
// table. It only short-circuits redeliveries; the table stays authoritative,
// so a guard outage never causes an event to be applied twice.
type IdempotencyGuard struct {
	store    guardStore
	ttl      time.Duration
	provider string
}

// NewIdempotencyGuard marks events for ttl, which should outlast the
// provider's redelivery window.
func NewIdempotencyGuard(store guardStore, ttl time.Duration, provider string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("guard store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if provider == "" {
		return nil, errors.New("provider is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, provider: provider}, nil
}

// Seen marks eventID and reports whether an earlier delivery already had.
// The stored value is the event type, which makes stray keys readable.
func (g *IdempotencyGuard) Seen(ctx context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	fresh, err := g.store.SetNX(ctx, g.store.WebhookKey(g.provider, eventID), eventType, g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook %s: %w", eventID, err)
	}
	return !fresh, nil
}

// Forget drops the mark after a failed delivery so the retry is processed.
func (g *IdempotencyGuard) Forget(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.WebhookKey(g.provider, eventID))
}
