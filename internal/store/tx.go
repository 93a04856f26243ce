package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmcdole/wipewatch/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// writeTx implements domain.StoreTx on top of a bolt write transaction.
// touched collects list IDs whose rows changed, for post-commit notification.
// evicted remembers the rows ClearNonPinned dropped, so a row upserted again
// in the same transaction gets its local flags back.
type writeTx struct {
	tx      *bolt.Tx
	now     func() time.Time
	touched map[string]bool
	evicted map[string]map[string]domain.ListItem
}

func (w *writeTx) listBucket(listID string) (*bolt.Bucket, error) {
	return w.tx.Bucket(bucketLists).CreateBucketIfNotExists([]byte(listID))
}

// === Rows ===

// UpsertItems inserts or replaces rows by ID.
// Existing rows keep their position and local flags.
func (w *writeTx) UpsertItems(listID string, items []domain.ListItem) error {
	if len(items) == 0 {
		return nil
	}
	b, err := w.listBucket(listID)
	if err != nil {
		return err
	}

	now := w.now()
	for _, item := range items {
		key := []byte(item.ID)
		if v := b.Get(key); v != nil {
			var existing domain.ListItem
			if err := json.Unmarshal(v, &existing); err != nil {
				return fmt.Errorf("failed to decode row %s: %w", item.ID, err)
			}
			item.Position = existing.Position
			item.Favorited = existing.Favorited
			item.Subscribed = existing.Subscribed
		} else {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			item.Position = int(seq)
			if prev, ok := w.evicted[listID][item.ID]; ok {
				item.Favorited = prev.Favorited
				item.Subscribed = prev.Subscribed
			}
		}
		if item.UpdatedAt.IsZero() {
			item.UpdatedAt = now
		}
		if err := putJSON(b, key, item); err != nil {
			return err
		}
	}
	w.touched[listID] = true
	return nil
}

// ClearNonPinned evicts every row that is not favorited
func (w *writeTx) ClearNonPinned(listID string) error {
	b := w.tx.Bucket(bucketLists).Bucket([]byte(listID))
	if b == nil {
		return nil
	}

	if w.evicted == nil {
		w.evicted = make(map[string]map[string]domain.ListItem)
	}
	if w.evicted[listID] == nil {
		w.evicted[listID] = make(map[string]domain.ListItem)
	}

	// Collect first: deleting while iterating can skip keys
	var evict [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var item domain.ListItem
		if err := json.Unmarshal(v, &item); err != nil {
			return fmt.Errorf("failed to decode row %s: %w", k, err)
		}
		if !item.Pinned() {
			evict = append(evict, append([]byte(nil), k...))
			w.evicted[listID][item.ID] = item
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range evict {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	w.touched[listID] = true
	return nil
}

func (w *writeTx) SetFavorited(listID, id string, on bool) error {
	return w.updateRow(listID, id, func(item *domain.ListItem) { item.Favorited = on })
}

func (w *writeTx) SetSubscribed(listID, id string, on bool) error {
	return w.updateRow(listID, id, func(item *domain.ListItem) { item.Subscribed = on })
}

func (w *writeTx) updateRow(listID, id string, mutate func(*domain.ListItem)) error {
	b := w.tx.Bucket(bucketLists).Bucket([]byte(listID))
	if b == nil {
		return fmt.Errorf("%s/%s: %w", listID, id, domain.ErrItemNotFound)
	}
	v := b.Get([]byte(id))
	if v == nil {
		return fmt.Errorf("%s/%s: %w", listID, id, domain.ErrItemNotFound)
	}
	var item domain.ListItem
	if err := json.Unmarshal(v, &item); err != nil {
		return fmt.Errorf("failed to decode row %s: %w", id, err)
	}
	mutate(&item)
	if err := putJSON(b, []byte(id), item); err != nil {
		return err
	}
	w.touched[listID] = true
	return nil
}

// === Cursors ===

func (w *writeTx) GetCursor(listID string) (domain.Cursor, bool, error) {
	var c domain.Cursor
	v := w.tx.Bucket(bucketCursors).Get([]byte(listID))
	if v == nil {
		return c, false, nil
	}
	if err := json.Unmarshal(v, &c); err != nil {
		return c, false, fmt.Errorf("failed to decode cursor %s: %w", listID, err)
	}
	return c, true, nil
}

func (w *writeTx) SetCursor(listID string, cursor domain.Cursor) error {
	cursor.ListID = listID
	if cursor.UpdatedAt.IsZero() {
		cursor.UpdatedAt = w.now()
	}
	return putJSON(w.tx.Bucket(bucketCursors), []byte(listID), cursor)
}

func (w *writeTx) ClearCursor(listID string) error {
	return w.tx.Bucket(bucketCursors).Delete([]byte(listID))
}

// === Outbox ===

func (w *writeTx) PutOperation(entry domain.OutboxEntry) error {
	return putJSON(w.tx.Bucket(bucketOutbox), []byte(entry.Key()), entry)
}

func (w *writeTx) GetOperation(key string) (domain.OutboxEntry, bool, error) {
	var e domain.OutboxEntry
	v := w.tx.Bucket(bucketOutbox).Get([]byte(key))
	if v == nil {
		return e, false, nil
	}
	if err := json.Unmarshal(v, &e); err != nil {
		return e, false, fmt.Errorf("failed to decode outbox entry %s: %w", key, err)
	}
	return e, true, nil
}

func (w *writeTx) DeleteOperation(key string) error {
	return w.tx.Bucket(bucketOutbox).Delete([]byte(key))
}

func putJSON(b *bolt.Bucket, key []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}
