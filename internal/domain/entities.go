package domain

import (
	"fmt"
	"time"
)

// ItemKind distinguishes listing rows
type ItemKind string

const (
	KindServer ItemKind = "server"
	KindItem   ItemKind = "item"
)

// List identities. Each list owns one cursor.
const (
	ListServers = "servers"
	ListItems   = "items"
)

// ListItem is a cached listing row (a game server or an in-game item).
// Display attributes are owned by the backend and replaced on every merge.
// Favorited and Subscribed are owned locally and survive merges.
type ListItem struct {
	ID        string    // Backend identifier, stable across pages
	Kind      ItemKind  // Server or item
	Name      string    // Display name
	Position  int       // Display order, assigned by the store on insert
	UpdatedAt time.Time // When the row was last merged

	Server *ServerInfo `json:",omitempty"`
	Item   *ItemInfo   `json:",omitempty"`

	// Local flags, flipped optimistically and confirmed by the outbox
	Favorited  bool
	Subscribed bool
}

// ServerInfo holds server-specific display attributes
type ServerInfo struct {
	Address    string // host:port for game clients, empty if unknown
	Map        string
	Players    int
	MaxPlayers int
	Country    string
	Rank       int
	LastWipe   time.Time
	NextWipe   time.Time
}

// ItemInfo holds item-specific display attributes
type ItemInfo struct {
	ShortName string
	Category  string
	Price     float64
}

// Pinned reports whether the row is exempt from refresh eviction
func (i ListItem) Pinned() bool {
	return i.Favorited
}

// Description returns secondary info for display
// (e.g., "Procedural Map · 120/200" for servers, "Weapon · $12.50" for items)
func (i ListItem) Description() string {
	switch {
	case i.Server != nil:
		return fmt.Sprintf("%s · %d/%d", i.Server.Map, i.Server.Players, i.Server.MaxPlayers)
	case i.Item != nil:
		return fmt.Sprintf("%s · $%.2f", i.Item.Category, i.Item.Price)
	default:
		return ""
	}
}

// NextWipeIn returns the time left until the next wipe (0 if unknown or past)
func (i ListItem) NextWipeIn(now time.Time) time.Duration {
	if i.Server == nil || i.Server.NextWipe.IsZero() {
		return 0
	}
	if d := i.Server.NextWipe.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ConnectURL returns the game client link joining the server ("" if unknown)
func (i ListItem) ConnectURL() string {
	if i.Server == nil || i.Server.Address == "" {
		return ""
	}
	return "steam://connect/" + i.Server.Address
}

// Cursor is the stored continuation point of a list
type Cursor struct {
	ListID    string
	Next      string // Opaque backend token; empty means no further pages
	UpdatedAt time.Time
}

// Page is one response of a paged listing endpoint
type Page struct {
	Items      []ListItem
	NextCursor string // Empty when the backend signals end of data
}

// EndOfData reports whether the page is the last one
func (p Page) EndOfData() bool {
	return p.NextCursor == ""
}
