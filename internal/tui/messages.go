package tui

import (
	"github.com/mmcdole/wipewatch/internal/domain"
	"github.com/mmcdole/wipewatch/internal/outbox"
	"github.com/mmcdole/wipewatch/internal/paging"
)

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// PageLoadedMsg signals that a load cycle finished
type PageLoadedMsg struct {
	ListID   string
	LoadType paging.LoadType
	Result   paging.Result
	Err      error
}

// ListUpdatedMsg carries a fresh store snapshot of a list
type ListUpdatedMsg struct {
	ListID string
	Items  []domain.ListItem
}

// ActionQueuedMsg signals that a user action was applied locally and queued
type ActionQueuedMsg struct {
	Description string
}

// LaunchedMsg signals that the game client was asked to join a server
type LaunchedMsg struct {
	Name string
}

// FlushDoneMsg signals that a manual outbox flush finished
type FlushDoneMsg struct {
	Result outbox.FlushResult
}

// AdLoadedMsg carries the text of the banner ad to display
type AdLoadedMsg struct {
	Text string
}

// SessionExpiredMsg signals that the backend rejected the session token
type SessionExpiredMsg struct {
	Err error
}

// clearStatusMsg hides the transient status line
type clearStatusMsg struct {
	seq int
}
