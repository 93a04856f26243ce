package wipeapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/wipewatch/internal/adapter"
	"github.com/mmcdole/wipewatch/internal/domain"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "tok", adapter.NullLogger(), WithRetry(2, time.Millisecond))
}

func TestFetchPageFirstPage(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/servers", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `{
			"data": [
				{"type":"server","id":"1","attributes":{"name":"Rusty Moose","players":120,"maxPlayers":200,"country":"US","rank":3,
					"details":{"map":"Procedural Map","rust_next_wipe":"2026-11-05T19:00:00Z"}}},
				{"type":"item","id":"x","attributes":{"name":"stray"}}
			],
			"links": {"next":"https://api.example.com/servers?page%5Bkey%5D=c1&page%5Bsize%5D=20"}
		}`)
	}))

	l, err := c.Listing(domain.ListServers)
	require.NoError(t, err)

	page, err := l.FetchPage(context.Background(), 20, "rank", "")
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "page%5Bsize%5D=20")
	assert.Contains(t, gotQuery, "sort=rank")
	assert.Contains(t, gotQuery, "filter%5Bgame%5D=rust")
	assert.NotContains(t, gotQuery, "page%5Bkey%5D")

	assert.Equal(t, "c1", page.NextCursor)
	require.Len(t, page.Items, 1)
	item := page.Items[0]
	assert.Equal(t, "1", item.ID)
	assert.Equal(t, domain.KindServer, item.Kind)
	require.NotNil(t, item.Server)
	assert.Equal(t, "Procedural Map", item.Server.Map)
	assert.Equal(t, 200, item.Server.MaxPlayers)
	assert.Equal(t, time.Date(2026, 11, 5, 19, 0, 0, 0, time.UTC), item.Server.NextWipe)
}

func TestFetchPageWithCursorAndEndOfData(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items", r.URL.Path)
		assert.Equal(t, "c1", r.URL.Query().Get("page[key]"))
		io.WriteString(w, `{"data":[{"type":"item","id":"ak","attributes":{"name":"Assault Rifle","shortName":"rifle.ak","category":"Weapon","price":12.5}}],"links":{}}`)
	}))

	l, err := c.Listing(domain.ListItems)
	require.NoError(t, err)

	page, err := l.FetchPage(context.Background(), 20, "", "c1")
	require.NoError(t, err)
	assert.True(t, page.EndOfData())
	require.Len(t, page.Items, 1)
	assert.Equal(t, "rifle.ak", page.Items[0].Item.ShortName)
}

func TestListingUnknown(t *testing.T) {
	c := NewClient("http://localhost", "", nil)
	_, err := c.Listing("nope")
	assert.Error(t, err)
}

func TestRetryOnServerErrorKeepsIdempotencyKey(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	var keys []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		mu.Unlock()
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.AddFavorite(context.Background(), "key-1", "42"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"key-1", "key-1"}, keys)
}

func TestServerErrorAfterRetries(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := c.Subscribe(context.Background(), "k", "42")
	assert.ErrorIs(t, err, domain.ErrServer)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		method func(c *Client) error
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, func(c *Client) error { return c.AddFavorite(context.Background(), "k", "1") }, domain.ErrAuthFailed},
		{"forbidden", http.StatusForbidden, func(c *Client) error { return c.Subscribe(context.Background(), "k", "1") }, domain.ErrAuthFailed},
		{"conflict", http.StatusConflict, func(c *Client) error { return c.AddFavorite(context.Background(), "k", "1") }, domain.ErrConflict},
		{"delete missing", http.StatusNotFound, func(c *Client) error { return c.RemoveFavorite(context.Background(), "k", "1") }, nil},
		{"unsubscribe missing", http.StatusNotFound, func(c *Client) error { return c.Unsubscribe(context.Background(), "k", "1") }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			err := tt.method(c)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPutNotFoundIsAnError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	err := c.AddFavorite(context.Background(), "k", "1")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.False(t, domain.IsRetryable(err))
}

func TestOfflineMapsToServerOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, "tok", adapter.NullLogger())
	l, err := c.Listing(domain.ListServers)
	require.NoError(t, err)

	_, err = l.FetchPage(context.Background(), 20, "", "")
	assert.ErrorIs(t, err, domain.ErrServerOffline)
	assert.True(t, domain.IsRetryable(err))
}

func TestMalformedBodyIsServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": [`)
	}))
	l, err := c.Listing(domain.ListServers)
	require.NoError(t, err)

	_, err = l.FetchPage(context.Background(), 20, "", "")
	assert.ErrorIs(t, err, domain.ErrServer)
}

func TestConfirmPurchaseSendsBody(t *testing.T) {
	var got PurchaseRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/me/purchases", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))

	require.NoError(t, c.ConfirmPurchase(context.Background(), "k", "tok-123", "premium.monthly"))
	assert.Equal(t, PurchaseRequest{Token: "tok-123", ProductID: "premium.monthly"}, got)
}

func TestRequestAd(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ads/banner1":
			io.WriteString(w, `{"data":{"id":"ad-9","attributes":{"headline":"Get premium","imageUrl":"https://cdn/x.png","clickUrl":"https://x"}}}`)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	h, err := c.RequestAd(context.Background(), "banner1")
	require.NoError(t, err)
	cr, ok := h.(*Creative)
	require.True(t, ok)
	assert.Equal(t, "ad-9", cr.ID)
	assert.Equal(t, "banner1", cr.Slot)
	assert.False(t, cr.Disposed())
	cr.Dispose()
	assert.True(t, cr.Disposed())

	_, err = c.RequestAd(context.Background(), "empty")
	assert.ErrorIs(t, err, domain.ErrNoAd)
}

func TestCursorFromNext(t *testing.T) {
	c, err := CursorFromNext("")
	require.NoError(t, err)
	assert.Empty(t, c)

	c, err = CursorFromNext("https://api.example.com/servers?page[key]=abc%2C123&page[size]=20")
	require.NoError(t, err)
	assert.Equal(t, "abc,123", c)

	_, err = CursorFromNext("https://api.example.com/servers?page[size]=20")
	assert.ErrorIs(t, err, domain.ErrServer)
}
