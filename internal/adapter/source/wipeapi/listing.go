package wipeapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mmcdole/wipewatch/internal/domain"
)

// Listing is a paged listing endpoint. Implements domain.PageSource.
type Listing struct {
	client *Client
	path   string
	kind   domain.ItemKind
	filter url.Values
}

// Listing returns the page source backing a list ID
func (c *Client) Listing(listID string) (*Listing, error) {
	switch listID {
	case domain.ListServers:
		return &Listing{
			client: c,
			path:   "/servers",
			kind:   domain.KindServer,
			filter: url.Values{"filter[game]": {"rust"}},
		}, nil
	case domain.ListItems:
		return &Listing{client: c, path: "/items", kind: domain.KindItem}, nil
	default:
		return nil, fmt.Errorf("unknown list: %s", listID)
	}
}

// FetchPage returns one page; an empty cursor requests the first page
func (l *Listing) FetchPage(ctx context.Context, pageSize int, sortKey, cursor string) (domain.Page, error) {
	query := url.Values{}
	for k, v := range l.filter {
		query[k] = v
	}
	if pageSize > 0 {
		query.Set("page[size]", strconv.Itoa(pageSize))
	}
	if sortKey != "" {
		query.Set("sort", sortKey)
	}
	if cursor != "" {
		query.Set(cursorParam, cursor)
	}

	body, _, err := l.client.do(ctx, request{method: http.MethodGet, path: l.path, query: query})
	if err != nil {
		return domain.Page{}, err
	}

	var resp ListResponse
	if err := decode(body, &resp); err != nil {
		return domain.Page{}, err
	}

	next, err := CursorFromNext(resp.Links.Next)
	if err != nil {
		return domain.Page{}, err
	}

	return domain.Page{
		Items:      MapResources(resp.Data, l.kind),
		NextCursor: next,
	}, nil
}
