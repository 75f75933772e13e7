package subscribers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memoryPersistence struct {
	loaded  []int64
	saved   [][]int64
	saveErr error
}

func (m *memoryPersistence) Load(context.Context) ([]int64, error) {
	return m.loaded, nil
}

func (m *memoryPersistence) Save(_ context.Context, chatIDs []int64) error {
	m.saved = append(m.saved, append([]int64(nil), chatIDs...))
	return m.saveErr
}

func TestSetAddRemoveWritesThrough(t *testing.T) {
	persistence := &memoryPersistence{loaded: []int64{5, -100}}
	set, err := NewSet(persistence, nil)
	require.NoError(t, err)
	require.NoError(t, set.Load(context.Background()))

	assert.Equal(t, []int64{-100, 5}, set.IDs())

	added, err := set.Add(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = set.Add(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, added, "second subscribe is a no-op")

	removed, err := set.Remove(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = set.Remove(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, removed)

	assert.True(t, set.Contains(7))
	assert.False(t, set.Contains(5))
	require.Len(t, persistence.saved, 2)
	assert.Equal(t, []int64{-100, 5, 7}, persistence.saved[0])
	assert.Equal(t, []int64{-100, 7}, persistence.saved[1])

	require.NoError(t, set.Close(context.Background()))
	assert.Equal(t, []int64{-100, 7}, persistence.saved[2])
}

func TestSetSurfacesSaveErrorButKeepsMembership(t *testing.T) {
	persistence := &memoryPersistence{saveErr: errors.New("disk full")}
	set, err := NewSet(persistence, nil)
	require.NoError(t, err)

	added, err := set.Add(context.Background(), 1)
	assert.True(t, added)
	assert.Error(t, err)
	assert.True(t, set.Contains(1))
}

// gatedPersistence blocks the first Save until release is closed.
type gatedPersistence struct {
	mu      sync.Mutex
	calls   int
	latest  []int64
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPersistence) Load(context.Context) ([]int64, error) {
	return nil, nil
}

func (g *gatedPersistence) Save(_ context.Context, chatIDs []int64) error {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}
	g.mu.Lock()
	g.latest = append([]int64(nil), chatIDs...)
	g.mu.Unlock()
	return nil
}

func (g *gatedPersistence) persisted() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest
}

func TestSetConcurrentAddsPersistLatestState(t *testing.T) {
	persistence := &gatedPersistence{entered: make(chan struct{}), release: make(chan struct{})}
	set, err := NewSet(persistence, nil)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, addErr := set.Add(context.Background(), 1)
		firstDone <- addErr
	}()
	<-persistence.entered

	secondDone := make(chan error, 1)
	go func() {
		_, addErr := set.Add(context.Background(), 2)
		secondDone <- addErr
	}()
	require.Eventually(t, func() bool { return set.Contains(2) }, time.Second, time.Millisecond)

	close(persistence.release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	assert.Equal(t, []int64{1, 2}, set.IDs())
	assert.Equal(t, []int64{1, 2}, persistence.persisted())
}

func TestNewSetRequiresPersistence(t *testing.T) {
	_, err := NewSet(nil, nil)
	assert.Error(t, err)
}

func TestFileStoreRoundTripAndTolerantLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats.json")
	store := NewFileStore(path)

	chatIDs, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, chatIDs, "missing file is an empty set")

	require.NoError(t, os.WriteFile(path, []byte(`[1, "-42", "abc", 2.5, null, " 9 "]`), 0o600))
	chatIDs, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, -42, 9}, chatIDs)

	require.NoError(t, store.Save(context.Background(), []int64{3, 4}))
	chatIDs, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, chatIDs)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"a list"}`), 0o600))
	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestDatabaseStoreReplacesRows(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "subs.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ChatSubscription{}))

	store, err := NewDatabaseStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, []int64{10, 20, 30}))
	chatIDs, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, chatIDs)

	require.NoError(t, store.Save(ctx, []int64{20, 40}))
	chatIDs, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{20, 40}, chatIDs)

	require.NoError(t, store.Save(ctx, nil))
	chatIDs, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, chatIDs)
}
