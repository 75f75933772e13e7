// Package snapshot holds the current and previous point-in-time loads of all
// conferences with their subthemes and computes what appeared between them.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confdesk/backend/internal/conferences"
	"go.uber.org/zap"
)

var (
	// ErrRefreshFailed wraps data source failures; the previous data is retained.
	ErrRefreshFailed = errors.New("snapshot: refresh failed")

	errMissingSource = errors.New("snapshot: data source is required")
)

// Source loads every conference with its subthemes in source order.
type Source interface {
	LoadAll(ctx context.Context) ([]conferences.Theme, error)
}

// Snapshot is an ordered sequence of themes loaded at one point in time.
type Snapshot struct {
	Themes   []conferences.Theme
	LoadedAt time.Time
}

// Len returns the number of themes.
func (s Snapshot) Len() int {
	return len(s.Themes)
}

// Store keeps the current snapshot and the one it replaced. All methods are safe
// for concurrent use; refreshes are serialized and readers never observe a
// half-applied refresh.
type Store struct {
	mu       sync.RWMutex
	refresh  sync.Mutex
	source   Source
	clock    func() time.Time
	logger   *zap.Logger
	current  Snapshot
	previous Snapshot
	loaded   bool
}

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Source Source
	Clock  func() time.Time
	Logger *zap.Logger
}

// NewStore returns a store with empty snapshots. Call Refresh to load data.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{source: cfg.Source, clock: clock, logger: logger}, nil
}

// Refresh moves current to previous and reloads current from the source. When the
// load fails both snapshots are left as they were and ErrRefreshFailed is returned.
func (s *Store) Refresh(ctx context.Context) error {
	_, err := s.RefreshAndDiff(ctx)
	return err
}

// RefreshAndDiff refreshes and returns what appeared relative to the replaced
// snapshot. On the very first load previous is empty, so everything is new.
func (s *Store) RefreshAndDiff(ctx context.Context) (Delta, error) {
	s.refresh.Lock()
	defer s.refresh.Unlock()

	themes, err := s.source.LoadAll(ctx)
	if err != nil {
		s.logger.Warn("snapshot refresh failed, keeping stale data", zap.Error(err))
		return Delta{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if themes == nil {
		themes = []conferences.Theme{}
	}

	s.mu.Lock()
	s.previous = s.current
	s.current = Snapshot{Themes: themes, LoadedAt: s.clock().UTC()}
	s.loaded = true
	previous, current := s.previous, s.current
	s.mu.Unlock()

	delta := Diff(previous, current)
	s.logger.Debug("snapshot refreshed",
		zap.Int("themes", current.Len()),
		zap.Int("new_conferences", len(delta.NewConferences)),
		zap.Int("new_subthemes", delta.SubthemeCount()))
	return delta, nil
}

// Current returns the most recent snapshot.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Previous returns the snapshot that was current before the last successful refresh.
func (s *Store) Previous() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previous
}

// Loaded reports whether at least one refresh succeeded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Themes returns the themes of the current snapshot.
func (s *Store) Themes() []conferences.Theme {
	return s.Current().Themes
}

// FindByText returns the first theme whose conference name contains query,
// case-insensitively, in listing order. A blank query matches nothing.
func (s *Store) FindByText(query string) (conferences.Theme, bool) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return conferences.Theme{}, false
	}
	for _, theme := range s.Themes() {
		if strings.Contains(strings.ToLower(theme.Conference.Name), needle) {
			return theme, true
		}
	}
	return conferences.Theme{}, false
}

// FindByID returns the theme of the conference with id.
func (s *Store) FindByID(id conferences.ConferenceID) (conferences.Theme, bool) {
	for _, theme := range s.Themes() {
		if theme.Conference.ID == id {
			return theme, true
		}
	}
	return conferences.Theme{}, false
}
