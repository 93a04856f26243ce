package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/wipewatch/internal/domain"
	cache "github.com/patrickmn/go-cache"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketLists   = []byte("lists") // one nested bucket per list ID
	bucketCursors = []byte("cursors")
	bucketOutbox  = []byte("outbox")
)

const (
	hotExpiration = 5 * time.Minute
	hotCleanup    = 10 * time.Minute
)

// ListingStore implements domain.Store using BoltDB.
type ListingStore struct {
	db *bolt.DB

	// Decoded list snapshots for hot-path reads (promoted on access)
	hot *cache.Cache

	mu       sync.Mutex
	watchers map[string]map[int]chan struct{}
	nextSub  int
	gens     map[string]uint64 // bumped per list on every committed write

	now func() time.Time

	// afterRead runs between the bolt read and the hot-cache promotion in Items
	afterRead func()
}

// NewListingStore opens (or creates) the store for the given backend.
// Each backend URL gets its own database file under baseCacheDir.
func NewListingStore(baseCacheDir, serverURL string) (*ListingStore, error) {
	dir := baseCacheDir
	if serverURL != "" {
		dir = filepath.Join(baseCacheDir, hashServerURL(serverURL))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "wipewatch.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketLists, bucketCursors, bucketOutbox} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &ListingStore{
		db:       db,
		hot:      cache.New(hotExpiration, hotCleanup),
		watchers: make(map[string]map[int]chan struct{}),
		gens:     make(map[string]uint64),
		now:      time.Now,
	}, nil
}

func hashServerURL(serverURL string) string {
	normalized := strings.TrimRight(strings.ToLower(serverURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

func (s *ListingStore) Close() error {
	s.mu.Lock()
	for listID, subs := range s.watchers {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(s.watchers, listID)
	}
	s.mu.Unlock()
	return s.db.Close()
}

// === Rows ===

func (s *ListingStore) Items(listID string) ([]domain.ListItem, error) {
	if cached, ok := s.hot.Get(listID); ok {
		return cloneItems(cached.([]domain.ListItem)), nil
	}

	s.mu.Lock()
	gen := s.gens[listID]
	s.mu.Unlock()

	var items []domain.ListItem
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLists).Bucket([]byte(listID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var item domain.ListItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("failed to decode row: %w", err)
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].ID < items[j].ID
	})

	if s.afterRead != nil {
		s.afterRead()
	}
	s.promote(listID, gen, items)
	return cloneItems(items), nil
}

// promote caches a snapshot read at generation gen, unless a write to the
// list committed since
func (s *ListingStore) promote(listID string, gen uint64, items []domain.ListItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[listID] == gen {
		s.hot.SetDefault(listID, items)
	}
}

// Cursor reads the paging cursor of a list without taking the write lock
func (s *ListingStore) Cursor(listID string) (domain.Cursor, bool, error) {
	var c domain.Cursor
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCursors).Get([]byte(listID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &c)
	})
	if err != nil {
		return domain.Cursor{}, false, fmt.Errorf("failed to read cursor %s: %w", listID, err)
	}
	return c, found, nil
}

func (s *ListingStore) Item(listID, id string) (domain.ListItem, bool, error) {
	var item domain.ListItem
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLists).Bucket([]byte(listID))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &item)
	})
	return item, found, err
}

// === Outbox ===

func (s *ListingStore) PendingOperations() ([]domain.OutboxEntry, error) {
	var entries []domain.OutboxEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOutbox).ForEach(func(_, v []byte) error {
			var e domain.OutboxEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to decode outbox entry: %w", err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// === Transactions ===

func (s *ListingStore) Update(fn func(tx domain.StoreTx) error) error {
	w := &writeTx{now: s.now, touched: make(map[string]bool)}
	err := s.db.Update(func(tx *bolt.Tx) error {
		w.tx = tx
		return fn(w)
	})
	if err != nil {
		return err
	}
	for listID := range w.touched {
		s.invalidate(listID)
		s.notify(listID)
	}
	return nil
}

// === Invalidation ===

// ClearList wipes every row and the cursor of a list
func (s *ListingStore) ClearList(listID string) error {
	return s.Update(func(tx domain.StoreTx) error {
		w := tx.(*writeTx)
		lists := w.tx.Bucket(bucketLists)
		if lists.Bucket([]byte(listID)) != nil {
			if err := lists.DeleteBucket([]byte(listID)); err != nil {
				return err
			}
		}
		w.touched[listID] = true
		return w.ClearCursor(listID)
	})
}

// ClearOperations wipes the outbox
func (s *ListingStore) ClearOperations() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketOutbox); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketOutbox)
		return err
	})
}

// === Change notification ===

func (s *ListingStore) Watch(listID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	subs, ok := s.watchers[listID]
	if !ok {
		subs = make(map[int]chan struct{})
		s.watchers[listID] = subs
	}
	id := s.nextSub
	s.nextSub++
	subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.watchers[listID][id]; ok {
				delete(s.watchers[listID], id)
				close(c)
			}
		})
	}
}

// invalidate drops the cached snapshot and starts a new generation, so a
// read that began before the commit cannot promote its stale snapshot
func (s *ListingStore) invalidate(listID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[listID]++
	s.hot.Delete(listID)
}

func (s *ListingStore) notify(listID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers[listID] {
		select {
		case ch <- struct{}{}:
		default: // A signal is already pending
		}
	}
}

func cloneItems(items []domain.ListItem) []domain.ListItem {
	if items == nil {
		return nil
	}
	out := make([]domain.ListItem, len(items))
	copy(out, items)
	return out
}
