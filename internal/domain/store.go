package domain

// Store handles the local persistent cache (BoltDB + memory).
// The UI reads directly from Store; writes go through Update.
type Store interface {
	// === Listing rows ===
	Items(listID string) ([]ListItem, error)
	Item(listID, id string) (ListItem, bool, error)

	// Cursor reads the paging cursor of listID in a read-only transaction
	Cursor(listID string) (Cursor, bool, error)

	// Watch returns a channel signalled after every committed change to listID.
	// The returned func unsubscribes and closes the channel.
	Watch(listID string) (<-chan struct{}, func())

	// === Outbox ===
	PendingOperations() ([]OutboxEntry, error)

	// Update runs fn inside one atomic write transaction.
	// Nothing fn writes is visible unless fn returns nil.
	Update(fn func(tx StoreTx) error) error

	// === Invalidation ===
	ClearList(listID string) error
	ClearOperations() error

	Close() error
}

// StoreTx is the write surface available inside Store.Update
type StoreTx interface {
	// === Rows ===
	UpsertItems(listID string, items []ListItem) error
	ClearNonPinned(listID string) error
	SetFavorited(listID, id string, on bool) error
	SetSubscribed(listID, id string, on bool) error

	// === Cursors (mediator only) ===
	GetCursor(listID string) (Cursor, bool, error)
	SetCursor(listID string, cursor Cursor) error
	ClearCursor(listID string) error

	// === Outbox ===
	PutOperation(entry OutboxEntry) error
	GetOperation(key string) (OutboxEntry, bool, error)
	DeleteOperation(key string) error
}
