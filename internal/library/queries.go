package library

import (
	"context"

	"github.com/mmcdole/wipewatch/internal/domain"
)

// Queries provides synchronous, cache-only reads.
// The UI renders from these and never waits on the network.
type Queries struct {
	store domain.Store
}

// NewQueries creates a new Queries instance.
func NewQueries(store domain.Store) *Queries {
	return &Queries{store: store}
}

func (q *Queries) Items(listID string) ([]domain.ListItem, error) {
	return q.store.Items(listID)
}

func (q *Queries) Item(listID, id string) (domain.ListItem, bool, error) {
	return q.store.Item(listID, id)
}

func (q *Queries) PendingOperations() ([]domain.OutboxEntry, error) {
	return q.store.PendingOperations()
}

// Observe streams a snapshot of listID now and after every committed change,
// until ctx ends. Snapshots are coalesced: a slow reader sees the latest state.
func (q *Queries) Observe(ctx context.Context, listID string) <-chan []domain.ListItem {
	out := make(chan []domain.ListItem, 1)
	changes, stop := q.store.Watch(listID)

	go func() {
		defer close(out)
		defer stop()

		for {
			items, err := q.store.Items(listID)
			if err == nil {
				select {
				case <-out: // Drop the unread snapshot
				default:
				}
				out <- items
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
			}
		}
	}()

	return out
}
