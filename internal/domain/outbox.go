package domain

import "time"

// OperationKind identifies which backend collection an outbox entry targets
type OperationKind string

const (
	OpFavorite     OperationKind = "favorite"
	OpSubscription OperationKind = "subscription"
	OpPurchase     OperationKind = "purchase"
)

// Action is the intent carried by an outbox entry
type Action string

const (
	ActionAdd     Action = "add"
	ActionRemove  Action = "remove"
	ActionConfirm Action = "confirm"
)

// OutboxEntry is a pending mutation intent awaiting backend confirmation.
// At most one entry exists per Key(); a newer intent replaces the older one.
type OutboxEntry struct {
	ID        string        // Idempotency key, new for every intent
	Kind      OperationKind // Favorite, subscription or purchase
	TargetID  string        // Server ID, or purchase token for purchases
	ListID    string        // List holding the target row (empty for purchases)
	Action    Action
	CreatedAt time.Time

	// Purchase confirmation only
	PurchaseToken string
	ProductID     string // Optional

	// Delivery bookkeeping
	Attempts  int
	LastError string

	// DeadLetter marks an intent the backend rejected permanently. It stays
	// visible but is never retried; a new toggle of the same key replaces it.
	DeadLetter bool
}

// Key returns the identity used for coalescing intents
func (e OutboxEntry) Key() string {
	return string(e.Kind) + ":" + e.TargetID
}
