package wipeapi

import "time"

// ListResponse is the JSON:API envelope of a paged listing
type ListResponse struct {
	Data  []Resource `json:"data"`
	Links Links      `json:"links"`
}

// Links carries pagination links; next embeds the continuation cursor
type Links struct {
	Next string `json:"next,omitempty"`
}

// Resource is one listing row
type Resource struct {
	Type       string     `json:"type"`
	ID         string     `json:"id"`
	Attributes Attributes `json:"attributes"`
}

// Attributes is the union of server and item attributes
type Attributes struct {
	Name      string     `json:"name"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`

	// Servers
	IP         string  `json:"ip,omitempty"`
	Port       int     `json:"port,omitempty"`
	Players    int     `json:"players,omitempty"`
	MaxPlayers int     `json:"maxPlayers,omitempty"`
	Country    string  `json:"country,omitempty"`
	Rank       int     `json:"rank,omitempty"`
	Details    Details `json:"details,omitempty"`

	// Items
	ShortName string  `json:"shortName,omitempty"`
	Category  string  `json:"category,omitempty"`
	Price     float64 `json:"price,omitempty"`
}

// Details holds game-specific server details
type Details struct {
	Map      string     `json:"map,omitempty"`
	LastWipe *time.Time `json:"rust_last_wipe,omitempty"`
	NextWipe *time.Time `json:"rust_next_wipe,omitempty"`
}

// PurchaseRequest confirms a store purchase
type PurchaseRequest struct {
	Token     string `json:"token"`
	ProductID string `json:"productId,omitempty"`
}

// AdResponse is a single house ad
type AdResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Headline string `json:"headline"`
			ImageURL string `json:"imageUrl"`
			ClickURL string `json:"clickUrl"`
		} `json:"attributes"`
	} `json:"data"`
}
