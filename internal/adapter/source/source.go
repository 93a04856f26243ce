package source

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mmcdole/wipewatch/internal/adapter"
	"github.com/mmcdole/wipewatch/internal/adapter/source/wipeapi"
	"github.com/mmcdole/wipewatch/internal/domain"
)

// Backend combines every boundary the data layer consumes from the server.
type Backend interface {
	domain.MutationEndpoints // Favorites, subscriptions, purchases
	domain.AdProvider        // House ads

	// Listing returns the paged source backing a list ID
	Listing(listID string) (*wipeapi.Listing, error)
}

// NewClientFromConfig creates the backend client from the application config
func NewClientFromConfig(cfg *adapter.Config, logger *slog.Logger) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if cfg.API.URL == "" {
		return nil, fmt.Errorf("api URL is required")
	}
	if cfg.API.Token == "" {
		return nil, fmt.Errorf("api token is required")
	}

	hc := &http.Client{Timeout: cfg.API.Timeout}
	return wipeapi.NewClient(cfg.API.URL, cfg.API.Token, logger, wipeapi.WithHTTPClient(hc)), nil
}
