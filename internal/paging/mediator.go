package paging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/wipewatch/internal/domain"
	"github.com/mmcdole/wipewatch/internal/metrics"
)

const defaultPageSize = 20

// LoadType is the direction of a load cycle
type LoadType int

const (
	Refresh LoadType = iota
	Prepend
	Append
)

func (t LoadType) String() string {
	switch t {
	case Refresh:
		return "refresh"
	case Prepend:
		return "prepend"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("LoadType(%d)", int(t))
	}
}

// Result is the outcome of a successful load cycle
type Result struct {
	EndOfPagination bool
}

// LoadError is a failed load cycle the user may retry
type LoadError struct {
	ListID   string
	LoadType LoadType
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.LoadType, e.ListID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Retryable reports whether the paging UI should offer a retry
func (e *LoadError) Retryable() bool {
	return !errors.Is(e.Err, context.Canceled)
}

// Mediator keeps the store rows of one list consistent with a remote
// forward-only paged source. Calls to Load must be serialized by the caller.
type Mediator struct {
	listID  string
	sortKey string
	source  domain.PageSource
	store   domain.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewMediator creates a mediator for listID
func NewMediator(
	listID string,
	source domain.PageSource,
	store domain.Store,
	sortKey string,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Mediator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mediator{
		listID:  listID,
		sortKey: sortKey,
		source:  source,
		store:   store,
		logger:  logger.With("list", listID),
		metrics: m,
		now:     time.Now,
	}
}

// ListID returns the list this mediator fills
func (m *Mediator) ListID() string {
	return m.listID
}

// Load runs one load cycle in the given direction
func (m *Mediator) Load(ctx context.Context, loadType LoadType, pageSize int) (Result, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	switch loadType {
	case Refresh:
		return m.refresh(ctx, pageSize)
	case Prepend:
		// The backend only pages forward; nothing is ever before the first page.
		return Result{EndOfPagination: true}, nil
	case Append:
		return m.append(ctx, pageSize)
	default:
		return Result{}, fmt.Errorf("unknown load type: %s", loadType)
	}
}

// ClearList wipes the list rows and its cursor (explicit cache clear)
func (m *Mediator) ClearList() error {
	if err := m.store.ClearList(m.listID); err != nil {
		m.logger.Error("failed to clear list", "error", err)
		return err
	}
	m.logger.Info("cleared list cache")
	return nil
}

func (m *Mediator) refresh(ctx context.Context, pageSize int) (Result, error) {
	page, err := m.source.FetchPage(ctx, pageSize, m.sortKey, "")
	if err != nil {
		return m.fail(Refresh, err)
	}

	err = m.store.Update(func(tx domain.StoreTx) error {
		if err := tx.ClearNonPinned(m.listID); err != nil {
			return err
		}
		if err := tx.ClearCursor(m.listID); err != nil {
			return err
		}
		if err := tx.UpsertItems(m.listID, page.Items); err != nil {
			return err
		}
		if page.EndOfData() {
			return nil
		}
		return tx.SetCursor(m.listID, domain.Cursor{Next: page.NextCursor, UpdatedAt: m.now()})
	})
	if err != nil {
		return m.fail(Refresh, fmt.Errorf("failed to save page: %w", err))
	}

	m.metrics.ObservePage(m.listID, Refresh.String())
	m.logger.Debug("refreshed list", "count", len(page.Items), "end", page.EndOfData())
	return Result{EndOfPagination: page.EndOfData()}, nil
}

func (m *Mediator) append(ctx context.Context, pageSize int) (Result, error) {
	cursor, ok, err := m.store.Cursor(m.listID)
	if err != nil {
		return m.fail(Append, err)
	}
	if !ok || cursor.Next == "" {
		m.logger.Debug("no cursor, end of pagination")
		return Result{EndOfPagination: true}, nil
	}

	page, err := m.source.FetchPage(ctx, pageSize, m.sortKey, cursor.Next)
	if err != nil {
		return m.fail(Append, err)
	}

	var stale bool
	err = m.store.Update(func(tx domain.StoreTx) error {
		// A refresh may have replaced the cursor while the page was in flight
		current, ok, err := tx.GetCursor(m.listID)
		if err != nil {
			return err
		}
		if !ok || current.Next != cursor.Next {
			stale = true
			return nil
		}

		if err := tx.UpsertItems(m.listID, page.Items); err != nil {
			return err
		}
		if page.EndOfData() {
			return tx.ClearCursor(m.listID)
		}
		return tx.SetCursor(m.listID, domain.Cursor{Next: page.NextCursor, UpdatedAt: m.now()})
	})
	if err != nil {
		return m.fail(Append, fmt.Errorf("failed to save page: %w", err))
	}
	if stale {
		m.logger.Debug("discarded stale page", "cursor", cursor.Next)
		return Result{EndOfPagination: false}, nil
	}

	m.metrics.ObservePage(m.listID, Append.String())
	m.logger.Debug("appended page", "count", len(page.Items), "end", page.EndOfData())
	return Result{EndOfPagination: page.EndOfData()}, nil
}

// fail classifies a load failure.
// Connectivity loss ends pagination softly so cached rows stay usable offline;
// authorization failures pass through untouched for session handling.
func (m *Mediator) fail(loadType LoadType, err error) (Result, error) {
	switch {
	case errors.Is(err, domain.ErrServerOffline):
		m.metrics.ObserveLoadError(m.listID, "offline")
		m.logger.Warn("backend unreachable, ending pagination", "loadType", loadType.String(), "error", err)
		return Result{EndOfPagination: true}, nil

	case errors.Is(err, domain.ErrAuthFailed):
		m.metrics.ObserveLoadError(m.listID, "auth")
		m.logger.Error("load rejected", "loadType", loadType.String(), "error", err)
		return Result{}, err

	default:
		m.metrics.ObserveLoadError(m.listID, "server")
		m.logger.Error("load failed", "loadType", loadType.String(), "error", err)
		return Result{}, &LoadError{ListID: m.listID, LoadType: loadType, Err: err}
	}
}
