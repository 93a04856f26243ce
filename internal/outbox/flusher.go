package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mmcdole/wipewatch/internal/domain"
	"github.com/mmcdole/wipewatch/internal/metrics"
)

// FlushResult summarizes one flush cycle
type FlushResult struct {
	Delivered    int // Confirmed by the backend and removed
	Failed       int // Left pending for the next cycle
	DeadLettered int // Rejected permanently, kept but no longer retried
}

// Flusher delivers pending outbox entries to the backend
type Flusher struct {
	endpoints domain.MutationEndpoints
	outbox    *Outbox
	session   domain.SessionHandler
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// One flush cycle at a time
	mu sync.Mutex
}

// NewFlusher creates a flusher. A nil limiter disables pacing; a nil
// session handler only logs authorization failures.
func NewFlusher(
	endpoints domain.MutationEndpoints,
	outbox *Outbox,
	session domain.SessionHandler,
	limiter *rate.Limiter,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &Flusher{
		endpoints: endpoints,
		outbox:    outbox,
		session:   session,
		limiter:   limiter,
		logger:    logger,
		metrics:   m,
	}
}

// Flush attempts every pending entry once, oldest first, skipping dead letters.
// It stops early and returns domain.ErrAuthFailed when the session is rejected.
func (f *Flusher) Flush(ctx context.Context) (FlushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res FlushResult
	entries, err := f.outbox.GetPendingOperations(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read outbox: %w", err)
	}
	if len(entries) == 0 {
		return res, nil
	}
	f.logger.Debug("flushing outbox", "pending", len(entries))

	for _, entry := range entries {
		if entry.DeadLetter {
			continue
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return res, err
		}

		err := f.deliver(ctx, entry)
		switch {
		case err == nil, errors.Is(err, domain.ErrConflict):
			if err := f.outbox.DeleteOperation(ctx, entry); err != nil {
				return res, err
			}
			res.Delivered++
			f.metrics.ObserveDelivery("confirmed")
			f.logger.Debug("delivered operation", "key", entry.Key(), "action", entry.Action)

		case errors.Is(err, domain.ErrAuthFailed):
			f.metrics.ObserveDelivery("unauthorized")
			f.logger.Error("outbox delivery rejected, stopping flush", "key", entry.Key(), "error", err)
			if f.session != nil {
				f.session.Invalidate(ctx, err)
			}
			f.updatePending(ctx)
			return res, err

		case ctx.Err() != nil:
			return res, ctx.Err()

		case !domain.IsRetryable(err):
			res.DeadLettered++
			f.metrics.ObserveDelivery("dead_letter")
			f.logger.Error("outbox delivery rejected permanently, parking operation",
				"key", entry.Key(), "action", entry.Action, "error", err)
			if err := f.outbox.deadLetter(entry, err); err != nil {
				f.logger.Error("failed to park operation", "key", entry.Key(), "error", err)
			}

		default:
			res.Failed++
			f.metrics.ObserveDelivery("failed")
			f.logger.Warn("outbox delivery failed",
				"key", entry.Key(), "attempts", entry.Attempts+1, "error", err)
			if err := f.outbox.recordFailure(entry, err); err != nil {
				f.logger.Error("failed to record delivery attempt", "key", entry.Key(), "error", err)
			}
		}
	}

	f.updatePending(ctx)
	f.logger.Info("outbox flushed",
		"delivered", res.Delivered, "failed", res.Failed, "deadLettered", res.DeadLettered)
	return res, nil
}

// Run flushes on start, on every tick of interval and on every trigger signal
// (connectivity restored, new intent queued) until ctx ends.
func (f *Flusher) Run(ctx context.Context, trigger <-chan struct{}, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := f.Flush(ctx); err != nil && ctx.Err() == nil {
			f.logger.Debug("flush cycle ended with error", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case _, ok := <-trigger:
			if !ok {
				trigger = nil
			}
		}
	}
}

func (f *Flusher) deliver(ctx context.Context, e domain.OutboxEntry) error {
	switch e.Kind {
	case domain.OpFavorite:
		if e.Action == domain.ActionAdd {
			return f.endpoints.AddFavorite(ctx, e.ID, e.TargetID)
		}
		return f.endpoints.RemoveFavorite(ctx, e.ID, e.TargetID)

	case domain.OpSubscription:
		if e.Action == domain.ActionAdd {
			return f.endpoints.Subscribe(ctx, e.ID, e.TargetID)
		}
		return f.endpoints.Unsubscribe(ctx, e.ID, e.TargetID)

	case domain.OpPurchase:
		return f.endpoints.ConfirmPurchase(ctx, e.ID, e.PurchaseToken, e.ProductID)

	default:
		// Nothing can ever deliver it; treat as settled so it cannot block the queue
		f.logger.Error("dropping unknown operation", "key", e.Key())
		return nil
	}
}

func (f *Flusher) updatePending(ctx context.Context) {
	// GetPendingOperations refreshes the gauge
	if _, err := f.outbox.GetPendingOperations(ctx); err != nil {
		f.logger.Debug("failed to count pending operations", "error", err)
	}
}
