// Package updates runs the periodic refresh-and-notify cycle of the bot.
package updates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"github.com/confdesk/backend/internal/notifier"
	"github.com/confdesk/backend/internal/snapshot"
)

// ErrCycleInProgress is returned when a cycle is requested while another runs.
var ErrCycleInProgress = errors.New("updates: refresh cycle already in progress")

const cronRetryDelay = 30 * time.Second

// Refresher reloads the snapshot store.
type Refresher interface {
	Refresh(ctx context.Context) error
	RefreshAndDiff(ctx context.Context) (snapshot.Delta, error)
}

// Announcer delivers a delta to a set of chats.
type Announcer interface {
	Notify(ctx context.Context, subscribers []int64, delta snapshot.Delta) notifier.Report
}

// Subscribers lists the chats that receive announcements.
type Subscribers interface {
	IDs() []int64
}

// Observer records cycle outcomes.
type Observer interface {
	ObserveRefresh(err error)
	ObserveRefreshSkipped()
	ObserveDelta(newConferences, newSubthemes int)
}

// Config describes the dependencies of Poller. Exactly one of Interval or
// Cron selects the schedule; Cron wins when both are set.
type Config struct {
	Store       Refresher
	Announcer   Announcer
	Subscribers Subscribers
	Interval    time.Duration
	Cron        string
	Clock       func() time.Time
	Observer    Observer
	Logger      *zap.Logger
}

// Result describes one completed cycle.
type Result struct {
	Delta  snapshot.Delta
	Report notifier.Report
}

// Poller refreshes the snapshot on a schedule and announces what is new.
// Cycles never overlap: a tick that fires while a cycle runs is skipped.
type Poller struct {
	store       Refresher
	announcer   Announcer
	subscribers Subscribers
	interval    time.Duration
	cron        string
	clock       func() time.Time
	observer    Observer
	logger      *zap.Logger

	mu      sync.Mutex
	running bool
	cycles  sync.WaitGroup
}

// New validates cfg and constructs a Poller.
func New(cfg Config) (*Poller, error) {
	if cfg.Store == nil {
		return nil, errors.New("updates: store is required")
	}
	if cfg.Announcer == nil {
		return nil, errors.New("updates: announcer is required")
	}
	if cfg.Subscribers == nil {
		return nil, errors.New("updates: subscribers are required")
	}
	if cfg.Cron != "" {
		if !gronx.IsValid(cfg.Cron) {
			return nil, fmt.Errorf("updates: invalid cron expression %q", cfg.Cron)
		}
	} else if cfg.Interval <= 0 {
		return nil, errors.New("updates: interval or cron is required")
	}

	poller := &Poller{
		store:       cfg.Store,
		announcer:   cfg.Announcer,
		subscribers: cfg.Subscribers,
		interval:    cfg.Interval,
		cron:        cfg.Cron,
		clock:       cfg.Clock,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
	}
	if poller.clock == nil {
		poller.clock = time.Now
	}
	if poller.logger == nil {
		poller.logger = zap.NewNop()
	}
	return poller, nil
}

// Prime performs the initial load. Nothing is announced for data that existed
// before the bot started.
func (p *Poller) Prime(ctx context.Context) error {
	if !p.begin() {
		return ErrCycleInProgress
	}
	defer p.end()

	err := p.store.Refresh(ctx)
	p.observeRefresh(err)
	if err != nil {
		p.logger.Warn("initial snapshot load failed", zap.Error(err))
		return err
	}
	return nil
}

// RunOnce runs one cycle for all subscribers.
func (p *Poller) RunOnce(ctx context.Context) (Result, error) {
	if !p.begin() {
		return Result{}, ErrCycleInProgress
	}
	defer p.end()
	return p.cycle(ctx, nil)
}

// CheckNow runs one cycle on request. Subscribers and the requesting chats all
// receive whatever is new, each chat once.
func (p *Poller) CheckNow(ctx context.Context, chatIDs ...int64) (Result, error) {
	if !p.begin() {
		p.logger.Info("manual refresh rejected while a cycle is running", zap.Int64s("chat_ids", chatIDs))
		return Result{}, ErrCycleInProgress
	}
	defer p.end()
	return p.cycle(ctx, chatIDs)
}

// Run ticks until ctx is cancelled and waits for the last cycle to finish.
func (p *Poller) Run(ctx context.Context) error {
	defer p.cycles.Wait()
	if p.cron != "" {
		p.logger.Info("update poller started", zap.String("cron", p.cron))
		return p.runCron(ctx)
	}
	p.logger.Info("update poller started", zap.Duration("interval", p.interval))
	return p.runInterval(ctx)
}

func (p *Poller) runInterval(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("update poller stopping")
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) runCron(ctx context.Context) error {
	for {
		next, err := gronx.NextTickAfter(p.cron, p.clock(), false)
		wait := cronRetryDelay
		if err != nil {
			p.logger.Error("cron next tick failed", zap.String("cron", p.cron), zap.Error(err))
		} else {
			wait = next.Sub(p.clock())
			if wait < 0 {
				wait = 0
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("update poller stopping")
			return nil
		case <-timer.C:
			if err == nil {
				p.tick(ctx)
			}
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if !p.begin() {
		p.logger.Info("refresh tick skipped, previous cycle still running")
		if p.observer != nil {
			p.observer.ObserveRefreshSkipped()
		}
		return
	}
	p.cycles.Add(1)
	go func() {
		defer p.cycles.Done()
		defer p.end()
		if _, err := p.cycle(ctx, nil); err != nil {
			p.logger.Warn("refresh cycle failed", zap.Error(err))
		}
	}()
}

func (p *Poller) cycle(ctx context.Context, extraChats []int64) (Result, error) {
	delta, err := p.store.RefreshAndDiff(ctx)
	p.observeRefresh(err)
	if err != nil {
		return Result{}, err
	}
	if p.observer != nil {
		p.observer.ObserveDelta(len(delta.NewConferences), delta.SubthemeCount())
	}

	result := Result{Delta: delta}
	if delta.Empty() {
		p.logger.Debug("refresh found nothing new")
		return result, nil
	}

	recipients := mergeChats(p.subscribers.IDs(), extraChats)
	result.Report = p.announcer.Notify(ctx, recipients, delta)
	p.logger.Info("announced new data",
		zap.Int("new_conferences", len(delta.NewConferences)),
		zap.Int("new_subthemes", delta.SubthemeCount()),
		zap.Int("recipients", result.Report.Recipients),
		zap.Int("delivered", result.Report.Delivered),
		zap.Int("failed", result.Report.Failed))
	return result, nil
}

func (p *Poller) observeRefresh(err error) {
	if p.observer != nil {
		p.observer.ObserveRefresh(err)
	}
}

func (p *Poller) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	p.running = true
	return true
}

func (p *Poller) end() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func mergeChats(subscribers, extra []int64) []int64 {
	seen := make(map[int64]struct{}, len(subscribers)+len(extra))
	merged := make([]int64, 0, len(subscribers)+len(extra))
	for _, group := range [][]int64{subscribers, extra} {
		for _, chatID := range group {
			if _, ok := seen[chatID]; ok {
				continue
			}
			seen[chatID] = struct{}{}
			merged = append(merged, chatID)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
	return merged
}
