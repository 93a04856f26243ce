package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/wipewatch/internal/domain"
)

func names(results []FilterResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Item.Name
	}
	return out
}

var serverRows = []domain.ListItem{
	{ID: "1", Kind: domain.KindServer, Name: "[EU] Rustoria.co - Main", Position: 1},
	{ID: "2", Kind: domain.KindServer, Name: "Moose UK Monthly", Position: 2},
	{ID: "3", Kind: domain.KindServer, Name: "Rusty Moose |US Main|", Position: 3},
}

var itemRows = []domain.ListItem{
	{ID: "a", Kind: domain.KindItem, Name: "Assault Rifle", Position: 1, Item: &domain.ItemInfo{ShortName: "rifle.ak"}},
	{ID: "b", Kind: domain.KindItem, Name: "Garage Door", Position: 2, Item: &domain.ItemInfo{ShortName: "wall.frame.garagedoor"}},
	{ID: "c", Kind: domain.KindItem, Name: "Pickaxe", Position: 3, Item: &domain.ItemInfo{ShortName: "pickaxe"}},
}

func TestFilterEmptyQueryKeepsOrder(t *testing.T) {
	results := Filter("  ", serverRows)
	assert.Equal(t, []string{"[EU] Rustoria.co - Main", "Moose UK Monthly", "Rusty Moose |US Main|"}, names(results))
}

func TestServersSubsequenceMatch(t *testing.T) {
	results := Filter("moose", serverRows)
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []string{"Moose UK Monthly", "Rusty Moose |US Main|"}, names(results))
	for _, r := range results {
		assert.Len(t, r.MatchedIndexes, 5)
	}
}

func TestServersCaseInsensitive(t *testing.T) {
	results := Servers("RUSTORIA", NewFilterIndex(serverRows))
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].Item.ID)
}

func TestItemsMatchNameOrShortName(t *testing.T) {
	results := Filter("rifle", itemRows)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Item.ID)

	results = Filter("garagedoor", itemRows)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Item.ID)
}

func TestItemsClosestFirst(t *testing.T) {
	results := Items("pick", itemRows)
	require.NotEmpty(t, results)
	assert.Equal(t, "c", results[0].Item.ID)
}

func TestFilterNoMatch(t *testing.T) {
	assert.Empty(t, Filter("zzz", serverRows))
	assert.Empty(t, Filter("zzz", itemRows))
}
