package search

import (
	"sort"
	"strings"

	fuzzysearch "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/wipewatch/internal/domain"
)

// FilterResult represents a filter match with metadata for highlighting
type FilterResult struct {
	Item           domain.ListItem
	MatchedIndexes []int // Byte positions in the lowercased name that matched
	Score          int   // Higher is better
}

// FilterIndex implements sahilm/fuzzy.Source for zero-allocation fuzzy matching
type FilterIndex struct {
	items []domain.ListItem
	lower []string // Pre-computed lowercase names
}

// NewFilterIndex indexes rows by display name
func NewFilterIndex(items []domain.ListItem) *FilterIndex {
	lower := make([]string, len(items))
	for i, item := range items {
		lower[i] = strings.ToLower(item.Name)
	}
	return &FilterIndex{items: items, lower: lower}
}

// String returns the lowercase name at index i (implements fuzzy.Source)
func (idx *FilterIndex) String(i int) string { return idx.lower[i] }

// Len returns the number of rows (implements fuzzy.Source)
func (idx *FilterIndex) Len() int { return len(idx.items) }

// Filter narrows a cached list to the rows matching query.
// An empty query keeps every row in display order.
func Filter(query string, items []domain.ListItem) []FilterResult {
	query = strings.TrimSpace(query)
	if query == "" {
		results := make([]FilterResult, len(items))
		for i, item := range items {
			results[i] = FilterResult{Item: item}
		}
		return results
	}
	if len(items) > 0 && items[0].Kind == domain.KindItem {
		return Items(query, items)
	}
	return Servers(query, NewFilterIndex(items))
}

// Servers matches server names as subsequences, best score first.
// Server names are long and noisy ("[EU] Rustoria.co - Main 2x | Monthly"),
// which subsequence scoring with word-boundary bonuses handles well.
func Servers(query string, idx *FilterIndex) []FilterResult {
	matches := fuzzy.FindFrom(strings.ToLower(query), idx)

	results := make([]FilterResult, len(matches))
	for i, m := range matches {
		results[i] = FilterResult{
			Item:           idx.items[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	return results
}

// Items matches item names or short names ("ak47u"), ignoring case and
// diacritics, closest first.
func Items(query string, items []domain.ListItem) []FilterResult {
	names := make([]string, len(items))
	shortNames := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
		if item.Item != nil {
			shortNames[i] = item.Item.ShortName
		}
	}

	best := make(map[int]int) // index -> smallest distance
	collect := func(ranks fuzzysearch.Ranks) {
		for _, r := range ranks {
			if d, ok := best[r.OriginalIndex]; !ok || r.Distance < d {
				best[r.OriginalIndex] = r.Distance
			}
		}
	}
	collect(fuzzysearch.RankFindNormalizedFold(query, names))
	collect(fuzzysearch.RankFindNormalizedFold(query, shortNames))

	results := make([]FilterResult, 0, len(best))
	for i, d := range best {
		results = append(results, FilterResult{Item: items[i], Score: -d})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.Position < results[j].Item.Position
	})
	return results
}
