// Package subscribers keeps the chats that receive push notifications about new
// conferences and subthemes.
package subscribers

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var errMissingPersistence = errors.New("subscribers: persistence is required")

// Persistence loads and stores the full subscriber set.
type Persistence interface {
	Load(ctx context.Context) ([]int64, error)
	Save(ctx context.Context, chatIDs []int64) error
}

// Set is the in-process subscriber set. Load it once at startup; every mutation
// is written through to persistence, and Close saves it one last time.
type Set struct {
	mu      sync.RWMutex
	chatIDs map[int64]struct{}

	// saveMu orders writes to persistence; each write carries the set as of
	// the moment it acquired saveMu.
	saveMu      sync.Mutex
	persistence Persistence
	logger      *zap.Logger
}

// NewSet returns an empty set backed by persistence.
func NewSet(persistence Persistence, logger *zap.Logger) (*Set, error) {
	if persistence == nil {
		return nil, errMissingPersistence
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Set{
		chatIDs:     make(map[int64]struct{}),
		persistence: persistence,
		logger:      logger,
	}, nil
}

// Load replaces the in-memory set with the persisted one. A failed load leaves
// the set empty and returns the error.
func (s *Set) Load(ctx context.Context) error {
	chatIDs, err := s.persistence.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.chatIDs = make(map[int64]struct{}, len(chatIDs))
	for _, chatID := range chatIDs {
		s.chatIDs[chatID] = struct{}{}
	}
	count := len(s.chatIDs)
	s.mu.Unlock()
	s.logger.Info("subscribers loaded", zap.Int("count", count))
	return nil
}

// Add subscribes chatID. It reports false when the chat was already subscribed.
func (s *Set) Add(ctx context.Context, chatID int64) (bool, error) {
	s.mu.Lock()
	if _, ok := s.chatIDs[chatID]; ok {
		s.mu.Unlock()
		return false, nil
	}
	s.chatIDs[chatID] = struct{}{}
	s.mu.Unlock()
	return true, s.persist(ctx)
}

// Remove unsubscribes chatID. It reports false when the chat was not subscribed.
func (s *Set) Remove(ctx context.Context, chatID int64) (bool, error) {
	s.mu.Lock()
	if _, ok := s.chatIDs[chatID]; !ok {
		s.mu.Unlock()
		return false, nil
	}
	delete(s.chatIDs, chatID)
	s.mu.Unlock()
	return true, s.persist(ctx)
}

// Contains reports whether chatID is subscribed.
func (s *Set) Contains(chatID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chatIDs[chatID]
	return ok
}

// IDs returns the subscribed chats in ascending order.
func (s *Set) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// Close persists the current set.
func (s *Set) Close(ctx context.Context) error {
	return s.persist(ctx)
}

func (s *Set) sortedLocked() []int64 {
	chatIDs := make([]int64, 0, len(s.chatIDs))
	for chatID := range s.chatIDs {
		chatIDs = append(chatIDs, chatID)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })
	return chatIDs
}

func (s *Set) persist(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	chatIDs := s.IDs()
	if err := s.persistence.Save(ctx, chatIDs); err != nil {
		s.logger.Error("subscribers save failed", zap.Error(err), zap.Int("count", len(chatIDs)))
		return err
	}
	s.logger.Debug("subscribers saved", zap.Int("count", len(chatIDs)))
	return nil
}
