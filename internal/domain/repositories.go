package domain

import (
	"context"
)

// PageSource provides a forward-only paged listing endpoint
type PageSource interface {
	// FetchPage returns one page of results.
	// An empty cursor requests the first page.
	FetchPage(ctx context.Context, pageSize int, sortKey, cursor string) (Page, error)
}

// MutationEndpoints are the backend operations flushed by the outbox.
// Every call must be safe to repeat with the same idempotency key.
type MutationEndpoints interface {
	AddFavorite(ctx context.Context, idempotencyKey, serverID string) error
	RemoveFavorite(ctx context.Context, idempotencyKey, serverID string) error
	Subscribe(ctx context.Context, idempotencyKey, serverID string) error
	Unsubscribe(ctx context.Context, idempotencyKey, serverID string) error
	ConfirmPurchase(ctx context.Context, idempotencyKey, token, productID string) error
}

// AdHandle is an opaque piece of loaded ad content
type AdHandle interface {
	// Dispose releases provider resources held by the content
	Dispose()
}

// AdProvider loads ad content for a display slot
type AdProvider interface {
	RequestAd(ctx context.Context, slotKey string) (AdHandle, error)
}

// AdSlots is the platform-agnostic capability the UI uses to show ads
type AdSlots interface {
	Preload(slotKey string)
	Get(ctx context.Context, slotKey string) (AdHandle, error)
	Clear()
}

// SessionHandler receives authorization failures that must not be retried locally
type SessionHandler interface {
	Invalidate(ctx context.Context, err error)
}

// SessionHandlerFunc adapts a function to SessionHandler
type SessionHandlerFunc func(ctx context.Context, err error)

func (f SessionHandlerFunc) Invalidate(ctx context.Context, err error) { f(ctx, err) }
