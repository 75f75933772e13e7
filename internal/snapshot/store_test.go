package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/confdesk/backend/internal/conferences"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	mu      sync.Mutex
	results [][]conferences.Theme
	errs    []error
	calls   int
}

func (s *scriptedSource) LoadAll(context.Context) ([]conferences.Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.calls
	if index >= len(s.results) {
		index = len(s.results) - 1
	}
	s.calls++
	if index < len(s.errs) && s.errs[index] != nil {
		return nil, s.errs[index]
	}
	return s.results[index], nil
}

func newStore(t *testing.T, source Source) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Source: source})
	require.NoError(t, err)
	return store
}

func TestStoreRefreshRotatesSnapshots(t *testing.T) {
	source := &scriptedSource{results: [][]conferences.Theme{
		{theme(1, "Conf1", 1)},
		{theme(1, "Conf1", 1, 2), theme(2, "Conf2", 3)},
	}}
	store := newStore(t, source)
	assert.False(t, store.Loaded())
	assert.Equal(t, 0, store.Previous().Len())

	require.NoError(t, store.Refresh(context.Background()))
	assert.True(t, store.Loaded())
	assert.Equal(t, 0, store.Previous().Len(), "previous starts empty on first load")
	assert.Equal(t, 1, store.Current().Len())

	delta, err := store.RefreshAndDiff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.Previous().Len())
	assert.Equal(t, 2, store.Current().Len())

	require.Len(t, delta.NewConferences, 1)
	assert.Equal(t, "Conf2", delta.NewConferences[0].Conference.Name)
	added, ok := delta.SubthemesFor("Conf1")
	require.True(t, ok)
	assert.Len(t, added, 1)
}

func TestStoreConsecutiveRefreshWithoutChangesIsEmpty(t *testing.T) {
	data := []conferences.Theme{theme(1, "Conf1", 1, 2)}
	store := newStore(t, &scriptedSource{results: [][]conferences.Theme{data}})
	require.NoError(t, store.Refresh(context.Background()))

	first, err := store.RefreshAndDiff(context.Background())
	require.NoError(t, err)
	second, err := store.RefreshAndDiff(context.Background())
	require.NoError(t, err)

	assert.True(t, first.Empty())
	assert.True(t, second.Empty())
}

func TestStoreKeepsStaleDataOnFailure(t *testing.T) {
	source := &scriptedSource{
		results: [][]conferences.Theme{{theme(1, "Conf1", 1)}, nil},
		errs:    []error{nil, errors.New("connection refused")},
	}
	store := newStore(t, source)
	require.NoError(t, store.Refresh(context.Background()))

	err := store.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Equal(t, 1, store.Current().Len(), "current snapshot survives a failed load")
	assert.Equal(t, 0, store.Previous().Len(), "previous is not rotated by a failed load")
}

func TestStoreFindByText(t *testing.T) {
	store := newStore(t, &scriptedSource{results: [][]conferences.Theme{{
		theme(1, "Weekly sync"),
		theme(2, "Q3 Annual Review"),
		theme(3, "Annual budget"),
	}}})
	require.NoError(t, store.Refresh(context.Background()))

	found, ok := store.FindByText("  annual ")
	require.True(t, ok)
	assert.Equal(t, "Q3 Annual Review", found.Conference.Name, "first hit in listing order wins")

	_, ok = store.FindByText("zzz")
	assert.False(t, ok)

	_, ok = store.FindByText("   ")
	assert.False(t, ok)
}

func TestStoreFindByID(t *testing.T) {
	store := newStore(t, &scriptedSource{results: [][]conferences.Theme{{theme(4, "Four"), theme(7, "Seven")}}})
	require.NoError(t, store.Refresh(context.Background()))

	found, ok := store.FindByID(7)
	require.True(t, ok)
	assert.Equal(t, "Seven", found.Conference.Name)

	_, ok = store.FindByID(99)
	assert.False(t, ok)
}

func TestNewStoreRequiresSource(t *testing.T) {
	_, err := NewStore(StoreConfig{})
	assert.Error(t, err)
}
