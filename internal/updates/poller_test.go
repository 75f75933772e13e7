package updates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confdesk/backend/internal/conferences"
	"github.com/confdesk/backend/internal/notifier"
	"github.com/confdesk/backend/internal/snapshot"
)

type fakeStore struct {
	mu        sync.Mutex
	refreshes int
	diffs     int
	delta     snapshot.Delta
	err       error
	started   chan struct{}
	release   chan struct{}
}

func (s *fakeStore) Refresh(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return s.err
}

func (s *fakeStore) RefreshAndDiff(ctx context.Context) (snapshot.Delta, error) {
	s.mu.Lock()
	s.diffs++
	started, release := s.started, s.release
	delta, err := s.delta, s.err
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return snapshot.Delta{}, ctx.Err()
		}
	}
	return delta, err
}

func (s *fakeStore) diffCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diffs
}

type notifyCall struct {
	recipients []int64
	delta      snapshot.Delta
}

type fakeAnnouncer struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (a *fakeAnnouncer) Notify(_ context.Context, subscribers []int64, delta snapshot.Delta) notifier.Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, notifyCall{recipients: subscribers, delta: delta})
	return notifier.Report{Recipients: len(subscribers), Delivered: len(subscribers)}
}

func (a *fakeAnnouncer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type staticSubscribers []int64

func (s staticSubscribers) IDs() []int64 { return s }

type countingObserver struct {
	mu       sync.Mutex
	failures int
	skipped  int
}

func (o *countingObserver) ObserveRefresh(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failures++
	}
}

func (o *countingObserver) ObserveRefreshSkipped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped++
}

func (o *countingObserver) ObserveDelta(int, int) {}

func (o *countingObserver) skippedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.skipped
}

func newDelta() snapshot.Delta {
	return snapshot.Delta{NewConferences: []conferences.Theme{{Conference: conferences.Conference{ID: 2, Name: "Conf2"}}}}
}

func newPoller(t *testing.T, store *fakeStore, announcer *fakeAnnouncer, subscribers []int64, observer Observer) *Poller {
	t.Helper()
	poller, err := New(Config{
		Store:       store,
		Announcer:   announcer,
		Subscribers: staticSubscribers(subscribers),
		Interval:    5 * time.Millisecond,
		Observer:    observer,
	})
	require.NoError(t, err)
	return poller
}

func TestPrimeLoadsWithoutAnnouncing(t *testing.T) {
	store := &fakeStore{delta: newDelta()}
	announcer := &fakeAnnouncer{}
	poller := newPoller(t, store, announcer, []int64{1}, nil)

	require.NoError(t, poller.Prime(context.Background()))
	assert.Equal(t, 1, store.refreshes)
	assert.Equal(t, 0, announcer.callCount())
}

func TestRunOnceAnnouncesToSubscribers(t *testing.T) {
	store := &fakeStore{delta: newDelta()}
	announcer := &fakeAnnouncer{}
	poller := newPoller(t, store, announcer, []int64{30, 10}, nil)

	result, err := poller.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Report.Delivered)
	require.Equal(t, 1, announcer.callCount())
	assert.Equal(t, []int64{10, 30}, announcer.calls[0].recipients)
}

func TestEmptyDeltaIsNotAnnounced(t *testing.T) {
	store := &fakeStore{}
	announcer := &fakeAnnouncer{}
	poller := newPoller(t, store, announcer, []int64{1}, nil)

	result, err := poller.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Delta.Empty())
	assert.Equal(t, 0, announcer.callCount())
}

func TestCheckNowIncludesRequesterOnce(t *testing.T) {
	store := &fakeStore{delta: newDelta()}
	announcer := &fakeAnnouncer{}
	poller := newPoller(t, store, announcer, []int64{5, 7}, nil)

	_, err := poller.CheckNow(context.Background(), 7, 9)
	require.NoError(t, err)
	require.Equal(t, 1, announcer.callCount())
	assert.Equal(t, []int64{5, 7, 9}, announcer.calls[0].recipients)
}

func TestRefreshFailureAnnouncesNothing(t *testing.T) {
	store := &fakeStore{delta: newDelta(), err: errors.New("db down")}
	announcer := &fakeAnnouncer{}
	observer := &countingObserver{}
	poller := newPoller(t, store, announcer, []int64{1}, observer)

	_, err := poller.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, announcer.callCount())
	assert.Equal(t, 1, observer.failures)
}

func TestCheckNowWhileCycleRunsIsRejected(t *testing.T) {
	store := &fakeStore{delta: newDelta(), started: make(chan struct{}, 1), release: make(chan struct{})}
	announcer := &fakeAnnouncer{}
	poller := newPoller(t, store, announcer, []int64{1}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := poller.RunOnce(context.Background())
		done <- err
	}()
	<-store.started

	_, err := poller.CheckNow(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCycleInProgress)
	assert.ErrorIs(t, poller.Prime(context.Background()), ErrCycleInProgress)

	close(store.release)
	require.NoError(t, <-done)

	_, err = poller.CheckNow(context.Background(), 1)
	assert.NoError(t, err, "guard is released after the cycle")
}

func TestRunSkipsTicksWhileCycleInFlight(t *testing.T) {
	store := &fakeStore{started: make(chan struct{}, 1), release: make(chan struct{})}
	announcer := &fakeAnnouncer{}
	observer := &countingObserver{}
	poller := newPoller(t, store, announcer, nil, observer)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- poller.Run(ctx) }()

	<-store.started
	require.Eventually(t, func() bool { return observer.skippedCount() >= 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, store.diffCount(), "no overlapping refresh")

	close(store.release)
	require.Eventually(t, func() bool { return store.diffCount() >= 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestRunWithCronStopsOnCancel(t *testing.T) {
	poller, err := New(Config{
		Store:       &fakeStore{},
		Announcer:   &fakeAnnouncer{},
		Subscribers: staticSubscribers(nil),
		Cron:        "*/5 * * * *",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- poller.Run(ctx) }()
	cancel()

	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestNewValidatesSchedule(t *testing.T) {
	base := Config{Store: &fakeStore{}, Announcer: &fakeAnnouncer{}, Subscribers: staticSubscribers(nil)}

	_, err := New(base)
	assert.Error(t, err)

	withCron := base
	withCron.Cron = "not a cron"
	_, err = New(withCron)
	assert.Error(t, err)

	_, err = New(Config{Interval: time.Second})
	assert.Error(t, err)
}
