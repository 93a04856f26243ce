package tui

import "context"

// SessionObserver adapts domain.SessionHandler to a channel for Bubble Tea.
type SessionObserver struct {
	ch chan<- error
}

// NewSessionObserver creates a new channel-based session observer.
func NewSessionObserver(ch chan<- error) *SessionObserver {
	return &SessionObserver{ch: ch}
}

// Invalidate sends the rejection to the channel (non-blocking if full).
func (o *SessionObserver) Invalidate(_ context.Context, err error) {
	select {
	case o.ch <- err:
	default: // A rejection is already pending
	}
}
