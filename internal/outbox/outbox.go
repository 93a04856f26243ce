package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmcdole/wipewatch/internal/domain"
	"github.com/mmcdole/wipewatch/internal/metrics"
)

// Outbox is the durable queue of mutation intents awaiting backend confirmation.
// Entries live in the store next to the rows they affect, so an optimistic flag
// flip and its intent commit together.
type Outbox struct {
	store   domain.Store
	logger  *slog.Logger
	metrics *metrics.Metrics

	newID func() string
	now   func() time.Time

	// Signalled after every enqueue so a flusher can deliver promptly
	kick chan struct{}
}

// New creates an outbox over store
func New(store domain.Store, logger *slog.Logger, m *metrics.Metrics) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{
		store:   store,
		logger:  logger,
		metrics: m,
		newID:   uuid.NewString,
		now:     time.Now,
		kick:    make(chan struct{}, 1),
	}
}

// Enqueued returns a channel signalled whenever a new intent is queued
func (o *Outbox) Enqueued() <-chan struct{} {
	return o.kick
}

// === Queue operations ===

// UpsertOperation stores entry, replacing any pending intent with the same key
func (o *Outbox) UpsertOperation(ctx context.Context, entry domain.OutboxEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry = o.stamp(entry)
	if err := o.store.Update(func(tx domain.StoreTx) error {
		return tx.PutOperation(entry)
	}); err != nil {
		o.logger.Error("failed to queue operation", "error", err, "key", entry.Key())
		return err
	}
	o.signal()
	return nil
}

// DeleteOperation removes entry once the backend confirmed it.
// A newer intent stored under the same key is left in place.
func (o *Outbox) DeleteOperation(ctx context.Context, entry domain.OutboxEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var superseded bool
	err := o.store.Update(func(tx domain.StoreTx) error {
		current, ok, err := tx.GetOperation(entry.Key())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if current.ID != entry.ID {
			superseded = true
			return nil
		}
		return tx.DeleteOperation(entry.Key())
	})
	if err != nil {
		o.logger.Error("failed to delete operation", "error", err, "key", entry.Key())
		return err
	}
	if superseded {
		o.logger.Debug("kept newer intent", "key", entry.Key(), "confirmed", entry.ID)
	}
	return nil
}

// GetPendingOperations returns every unconfirmed intent, oldest first
func (o *Outbox) GetPendingOperations(ctx context.Context) ([]domain.OutboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := o.store.PendingOperations()
	if err != nil {
		return nil, err
	}
	o.metrics.SetPending(len(entries))
	return entries, nil
}

// ClearOperations drops every pending intent (logout or account deletion)
func (o *Outbox) ClearOperations(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.store.ClearOperations(); err != nil {
		o.logger.Error("failed to clear outbox", "error", err)
		return err
	}
	o.metrics.SetPending(0)
	o.logger.Info("cleared outbox")
	return nil
}

// recordFailure bumps the attempt count of entry if it is still the live intent
func (o *Outbox) recordFailure(entry domain.OutboxEntry, cause error) error {
	return o.store.Update(func(tx domain.StoreTx) error {
		current, ok, err := tx.GetOperation(entry.Key())
		if err != nil || !ok || current.ID != entry.ID {
			return err
		}
		current.Attempts++
		current.LastError = cause.Error()
		return tx.PutOperation(current)
	})
}

// deadLetter parks entry after a permanent rejection if it is still the live intent
func (o *Outbox) deadLetter(entry domain.OutboxEntry, cause error) error {
	return o.store.Update(func(tx domain.StoreTx) error {
		current, ok, err := tx.GetOperation(entry.Key())
		if err != nil || !ok || current.ID != entry.ID {
			return err
		}
		current.Attempts++
		current.LastError = cause.Error()
		current.DeadLetter = true
		return tx.PutOperation(current)
	})
}

// === User actions ===

// SetFavorite flips the favorite flag of a row and queues the matching intent
func (o *Outbox) SetFavorite(ctx context.Context, listID, id string, on bool) error {
	return o.toggle(ctx, domain.OpFavorite, listID, id, on, func(tx domain.StoreTx) error {
		return tx.SetFavorited(listID, id, on)
	})
}

// SetSubscribed flips the wipe-notification flag of a row and queues the matching intent
func (o *Outbox) SetSubscribed(ctx context.Context, listID, id string, on bool) error {
	return o.toggle(ctx, domain.OpSubscription, listID, id, on, func(tx domain.StoreTx) error {
		return tx.SetSubscribed(listID, id, on)
	})
}

// ConfirmPurchase queues a purchase token for backend confirmation.
// productID may be empty.
func (o *Outbox) ConfirmPurchase(ctx context.Context, token, productID string) error {
	if token == "" {
		return fmt.Errorf("purchase token is required")
	}
	return o.UpsertOperation(ctx, domain.OutboxEntry{
		Kind:          domain.OpPurchase,
		TargetID:      token,
		Action:        domain.ActionConfirm,
		PurchaseToken: token,
		ProductID:     productID,
	})
}

func (o *Outbox) toggle(
	ctx context.Context,
	kind domain.OperationKind,
	listID, id string,
	on bool,
	flip func(tx domain.StoreTx) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	action := domain.ActionRemove
	if on {
		action = domain.ActionAdd
	}
	entry := o.stamp(domain.OutboxEntry{
		Kind:     kind,
		TargetID: id,
		ListID:   listID,
		Action:   action,
	})

	err := o.store.Update(func(tx domain.StoreTx) error {
		if err := flip(tx); err != nil {
			return err
		}
		return tx.PutOperation(entry)
	})
	if err != nil {
		o.logger.Error("failed to apply user action", "error", err, "key", entry.Key(), "action", action)
		return err
	}

	o.logger.Debug("queued user action", "key", entry.Key(), "action", action, "id", entry.ID)
	o.signal()
	return nil
}

func (o *Outbox) stamp(entry domain.OutboxEntry) domain.OutboxEntry {
	if entry.ID == "" {
		entry.ID = o.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = o.now()
	}
	return entry
}

func (o *Outbox) signal() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}
