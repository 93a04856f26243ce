package library

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmcdole/wipewatch/internal/domain"
	"github.com/mmcdole/wipewatch/internal/paging"
)

// Service orchestrates the per-list mediators behind the listing screens.
// Loads of the same list are serialized; different lists load in parallel.
type Service struct {
	mediators map[string]*paging.Mediator
	locks     map[string]*sync.Mutex
	pageSize  int
	logger    *slog.Logger
}

// NewService creates a new library service over the given mediators.
func NewService(pageSize int, logger *slog.Logger, mediators ...*paging.Mediator) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		mediators: make(map[string]*paging.Mediator, len(mediators)),
		locks:     make(map[string]*sync.Mutex, len(mediators)),
		pageSize:  pageSize,
		logger:    logger,
	}
	for _, m := range mediators {
		s.mediators[m.ListID()] = m
		s.locks[m.ListID()] = &sync.Mutex{}
	}
	return s
}

// Refresh reloads a list from its first page
func (s *Service) Refresh(ctx context.Context, listID string) (paging.Result, error) {
	return s.load(ctx, listID, paging.Refresh)
}

// LoadMore appends the next page of a list
func (s *Service) LoadMore(ctx context.Context, listID string) (paging.Result, error) {
	return s.load(ctx, listID, paging.Append)
}

// LoadPrevious pages backward; the backend feed is forward-only
func (s *Service) LoadPrevious(ctx context.Context, listID string) (paging.Result, error) {
	return s.load(ctx, listID, paging.Prepend)
}

// ClearCache wipes the cached rows and cursors of every list
func (s *Service) ClearCache() error {
	for listID, m := range s.mediators {
		mu := s.locks[listID]
		mu.Lock()
		err := m.ClearList()
		mu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to clear %s: %w", listID, err)
		}
	}
	return nil
}

func (s *Service) load(ctx context.Context, listID string, loadType paging.LoadType) (paging.Result, error) {
	m, ok := s.mediators[listID]
	if !ok {
		return paging.Result{}, fmt.Errorf("unknown list %q: %w", listID, domain.ErrItemNotFound)
	}

	mu := s.locks[listID]
	mu.Lock()
	defer mu.Unlock()

	res, err := m.Load(ctx, loadType, s.pageSize)
	if err != nil {
		return res, err
	}
	s.logger.Debug("loaded list", "list", listID, "loadType", loadType.String(), "end", res.EndOfPagination)
	return res, nil
}
