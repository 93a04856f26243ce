package wipeapi

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/mmcdole/wipewatch/internal/domain"
)

// cursorParam is the query parameter of links.next holding the cursor
const cursorParam = "page[key]"

// MapResources converts API resources to listing rows.
// Resources of an unexpected type are dropped.
func MapResources(resources []Resource, kind domain.ItemKind) []domain.ListItem {
	items := make([]domain.ListItem, 0, len(resources))
	for _, r := range resources {
		if r.ID == "" || domain.ItemKind(r.Type) != kind {
			continue
		}
		items = append(items, mapResource(r))
	}
	return items
}

func mapResource(r Resource) domain.ListItem {
	a := r.Attributes
	item := domain.ListItem{
		ID:   r.ID,
		Kind: domain.ItemKind(r.Type),
		Name: a.Name,
	}
	if a.UpdatedAt != nil {
		item.UpdatedAt = *a.UpdatedAt
	}

	switch item.Kind {
	case domain.KindServer:
		info := &domain.ServerInfo{
			Map:        a.Details.Map,
			Players:    a.Players,
			MaxPlayers: a.MaxPlayers,
			Country:    a.Country,
			Rank:       a.Rank,
		}
		if a.IP != "" && a.Port > 0 {
			info.Address = net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
		}
		if a.Details.LastWipe != nil {
			info.LastWipe = *a.Details.LastWipe
		}
		if a.Details.NextWipe != nil {
			info.NextWipe = *a.Details.NextWipe
		}
		item.Server = info
	case domain.KindItem:
		item.Item = &domain.ItemInfo{
			ShortName: a.ShortName,
			Category:  a.Category,
			Price:     a.Price,
		}
	}
	return item
}

// CursorFromNext extracts the opaque cursor from a links.next URL.
// An empty link means end of data.
func CursorFromNext(next string) (string, error) {
	if next == "" {
		return "", nil
	}
	u, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("%w: invalid next link: %v", domain.ErrServer, err)
	}
	cursor := u.Query().Get(cursorParam)
	if cursor == "" {
		return "", fmt.Errorf("%w: next link without %s", domain.ErrServer, cursorParam)
	}
	return cursor, nil
}
