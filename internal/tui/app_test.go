package tui

import (
	"context"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/wipewatch/internal/adapter"
	"github.com/mmcdole/wipewatch/internal/domain"
	"github.com/mmcdole/wipewatch/internal/library"
	"github.com/mmcdole/wipewatch/internal/outbox"
	"github.com/mmcdole/wipewatch/internal/paging"
	"github.com/mmcdole/wipewatch/internal/store"
)

type staticSource struct {
	items []domain.ListItem
}

func (s staticSource) FetchPage(context.Context, int, string, string) (domain.Page, error) {
	return domain.Page{Items: append([]domain.ListItem(nil), s.items...), NextCursor: "next"}, nil
}

var testServers = []domain.ListItem{
	{ID: "s1", Kind: domain.KindServer, Name: "Rustoria Main", Server: &domain.ServerInfo{Address: "1.2.3.4:28015", Map: "Procedural Map", Players: 150, MaxPlayers: 200}},
	{ID: "s2", Kind: domain.KindServer, Name: "Moose Monthly", Server: &domain.ServerInfo{Map: "Barren", Players: 12, MaxPlayers: 100}},
}

var testItems = []domain.ListItem{
	{ID: "i1", Kind: domain.KindItem, Name: "Assault Rifle", Item: &domain.ItemInfo{ShortName: "rifle.ak", Category: "Weapon", Price: 12.5}},
}

type fakeLauncher struct {
	links []string
}

func (f *fakeLauncher) Launch(link string) error {
	f.links = append(f.links, link)
	return nil
}

func setupModel(t *testing.T) (Model, *store.ListingStore) {
	return setupModelWith(t, nil)
}

func setupModelWith(t *testing.T, launcher Launcher) (Model, *store.ListingStore) {
	t.Helper()
	s, err := store.NewListingStore(t.TempDir(), "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := adapter.NullLogger()
	svc := library.NewService(20, logger,
		paging.NewMediator(domain.ListServers, staticSource{testServers}, s, "rank", logger, nil),
		paging.NewMediator(domain.ListItems, staticSource{testItems}, s, "name", logger, nil),
	)

	m := NewModel(Config{
		Library:  svc,
		Queries:  library.NewQueries(s),
		Outbox:   outbox.New(s, logger, nil),
		Launcher: launcher,
		Logger:   logger,
	})
	t.Cleanup(m.Close)

	// Load both lists the way Init would
	for _, listID := range []string{domain.ListServers, domain.ListItems} {
		_, err := svc.Refresh(context.Background(), listID)
		require.NoError(t, err)
		items, err := s.Items(listID)
		require.NoError(t, err)
		m = update(t, m, ListUpdatedMsg{ListID: listID, Items: items})
	}
	return m, s
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewShowsRows(t *testing.T) {
	m, _ := setupModel(t)
	view := m.View()
	assert.Contains(t, view, "Rustoria Main")
	assert.Contains(t, view, "150/200")
	assert.NotContains(t, view, "Assault Rifle")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Contains(t, m.View(), "Assault Rifle")
}

func TestFilterNarrowsRows(t *testing.T) {
	m, _ := setupModel(t)

	m = update(t, m, runes("/"))
	require.True(t, m.filtering)
	for _, r := range "moose" {
		m = update(t, m, runes(string(r)))
	}

	l := m.current()
	require.Len(t, l.visible, 1)
	assert.Equal(t, "s2", l.visible[0].Item.ID)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.filtering)
	assert.Len(t, m.current().visible, 2)
}

func TestFavoriteKeyQueuesAction(t *testing.T) {
	m, s := setupModel(t)

	_, cmd := m.Update(runes("f"))
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, ActionQueuedMsg{}, msg)
	assert.Contains(t, msg.(ActionQueuedMsg).Description, "Rustoria Main")

	row, ok, err := s.Item(domain.ListServers, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, row.Favorited)

	pending, err := s.PendingOperations()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.OpFavorite, pending[0].Kind)
}

func TestFavoriteRejectedForItems(t *testing.T) {
	m, _ := setupModel(t)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})

	m = update(t, m, runes("f"))
	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "Only servers")
}

func TestScrollPastEndLoadsMore(t *testing.T) {
	m, _ := setupModel(t)
	m.current().loading = false

	m = update(t, m, runes("j"))
	assert.Equal(t, 1, m.current().cursor)

	_, cmd := m.Update(runes("j"))
	assert.NotNil(t, cmd, "scrolling past the last row pages in more")

	m = update(t, m, PageLoadedMsg{ListID: domain.ListServers, LoadType: paging.Append, Result: paging.Result{EndOfPagination: true}})
	_, cmd = m.Update(runes("j"))
	assert.Nil(t, cmd, "no load past the end")
}

func TestConnectLaunchesServerLink(t *testing.T) {
	launcher := &fakeLauncher{}
	m, _ := setupModelWith(t, launcher)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, LaunchedMsg{Name: "Rustoria Main"}, cmd())
	assert.Equal(t, []string{"steam://connect/1.2.3.4:28015"}, launcher.links)

	// Second row has no address
	m = update(t, m, runes("j"))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.statusErr)
	assert.Len(t, launcher.links, 1)
}

func TestLoadErrorOffersRetry(t *testing.T) {
	m, _ := setupModel(t)

	err := &paging.LoadError{ListID: domain.ListServers, LoadType: paging.Refresh, Err: fmt.Errorf("status 502: %w", domain.ErrServer)}
	m = update(t, m, PageLoadedMsg{ListID: domain.ListServers, LoadType: paging.Refresh, Err: err})

	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "retry")
	assert.False(t, m.current().loading)
}

func TestSessionExpired(t *testing.T) {
	m, _ := setupModel(t)
	m = update(t, m, SessionExpiredMsg{Err: domain.ErrAuthFailed})
	assert.True(t, m.sessionExpired)
	assert.Contains(t, m.View(), "session expired")
}

func TestSessionObserverIsNonBlocking(t *testing.T) {
	ch := make(chan error, 1)
	obs := NewSessionObserver(ch)

	obs.Invalidate(context.Background(), domain.ErrAuthFailed)
	obs.Invalidate(context.Background(), domain.ErrAuthFailed)

	assert.ErrorIs(t, <-ch, domain.ErrAuthFailed)
	assert.Empty(t, ch)
}
