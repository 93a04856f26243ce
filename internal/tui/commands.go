package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/wipewatch/internal/domain"
	"github.com/mmcdole/wipewatch/internal/library"
	"github.com/mmcdole/wipewatch/internal/outbox"
	"github.com/mmcdole/wipewatch/internal/paging"
)

// Command factories for async operations

// LoadPageCmd runs one load cycle for a list
func LoadPageCmd(svc *library.Service, listID string, loadType paging.LoadType) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var (
			res paging.Result
			err error
		)
		switch loadType {
		case paging.Append:
			res, err = svc.LoadMore(ctx, listID)
		case paging.Prepend:
			res, err = svc.LoadPrevious(ctx, listID)
		default:
			res, err = svc.Refresh(ctx, listID)
		}
		return PageLoadedMsg{ListID: listID, LoadType: loadType, Result: res, Err: err}
	}
}

// WaitForListCmd waits for the next store snapshot of a list
func WaitForListCmd(listID string, ch <-chan []domain.ListItem) tea.Cmd {
	return func() tea.Msg {
		items, ok := <-ch
		if !ok {
			return nil
		}
		return ListUpdatedMsg{ListID: listID, Items: items}
	}
}

// ToggleFavoriteCmd flips the favorite flag of a row
func ToggleFavoriteCmd(ob *outbox.Outbox, listID string, item domain.ListItem) tea.Cmd {
	return func() tea.Msg {
		on := !item.Favorited
		if err := ob.SetFavorite(context.Background(), listID, item.ID, on); err != nil {
			return ErrMsg{Err: err, Context: "favorite"}
		}
		verb := "Favorited"
		if !on {
			verb = "Unfavorited"
		}
		return ActionQueuedMsg{Description: fmt.Sprintf("%s %s", verb, item.Name)}
	}
}

// ToggleSubscribeCmd flips the wipe-notification flag of a row
func ToggleSubscribeCmd(ob *outbox.Outbox, listID string, item domain.ListItem) tea.Cmd {
	return func() tea.Msg {
		on := !item.Subscribed
		if err := ob.SetSubscribed(context.Background(), listID, item.ID, on); err != nil {
			return ErrMsg{Err: err, Context: "wipe alerts"}
		}
		verb := "Wipe alerts on for"
		if !on {
			verb = "Wipe alerts off for"
		}
		return ActionQueuedMsg{Description: fmt.Sprintf("%s %s", verb, item.Name)}
	}
}

// LaunchCmd hands a server's connect link to the game client
func LaunchCmd(l Launcher, item domain.ListItem) tea.Cmd {
	return func() tea.Msg {
		if err := l.Launch(item.ConnectURL()); err != nil {
			return ErrMsg{Err: err, Context: "join " + item.Name}
		}
		return LaunchedMsg{Name: item.Name}
	}
}

// FlushCmd delivers pending actions now
func FlushCmd(f *outbox.Flusher) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := f.Flush(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "sync"}
		}
		return FlushDoneMsg{Result: res}
	}
}

// LoadAdCmd fetches the banner text. Failures degrade to no ad.
func LoadAdCmd(ads domain.AdSlots, slot string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h, err := ads.Get(ctx, slot)
		if err != nil {
			return AdLoadedMsg{}
		}
		defer h.Dispose()

		if s, ok := h.(fmt.Stringer); ok {
			return AdLoadedMsg{Text: s.String()}
		}
		return AdLoadedMsg{}
	}
}

// WaitForSessionCmd waits for the backend to reject the session
func WaitForSessionCmd(ch <-chan error) tea.Cmd {
	return func() tea.Msg {
		err, ok := <-ch
		if !ok {
			return nil
		}
		return SessionExpiredMsg{Err: err}
	}
}

func clearStatusAfter(seq int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}
