package wipeapi

import (
	"context"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/mmcdole/wipewatch/internal/domain"
)

// Creative is a loaded house ad. Implements domain.AdHandle.
type Creative struct {
	ID       string
	Slot     string
	Headline string
	ImageURL string
	ClickURL string

	disposed atomic.Bool
}

// Dispose marks the creative as released
func (cr *Creative) Dispose() {
	cr.disposed.Store(true)
}

// String returns the headline shown in text-only slots
func (cr *Creative) String() string {
	return cr.Headline
}

// Disposed reports whether Dispose was called
func (cr *Creative) Disposed() bool {
	return cr.disposed.Load()
}

// RequestAd loads one house ad for a slot. Implements domain.AdProvider.
func (c *Client) RequestAd(ctx context.Context, slotKey string) (domain.AdHandle, error) {
	body, status, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/ads/" + url.PathEscape(slotKey),
	})
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || len(body) == 0 {
		return nil, domain.ErrNoAd
	}

	var resp AdResponse
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	a := resp.Data.Attributes
	return &Creative{
		ID:       resp.Data.ID,
		Slot:     slotKey,
		Headline: a.Headline,
		ImageURL: a.ImageURL,
		ClickURL: a.ClickURL,
	}, nil
}
