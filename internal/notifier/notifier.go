// Package notifier fans new conferences and subthemes out to subscribed chats.
package notifier

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/confdesk/backend/internal/navigation"
	"github.com/confdesk/backend/internal/snapshot"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultRatePerSecond  = 25
)

// Sender delivers a message to one chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, rows [][]navigation.Button) (int, error)
}

// Observer records delivery outcomes.
type Observer interface {
	ObserveNotification(delivered bool)
}

// Config describes the dependencies of Notifier. Zero values pick defaults.
type Config struct {
	Sender         Sender
	Limiter        *rate.Limiter
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// IsPermanent reports errors that retrying cannot fix, such as a chat that
	// blocked the bot.
	IsPermanent func(error) bool
	Observer    Observer
	Logger      *zap.Logger
}

// Report summarises one Notify call.
type Report struct {
	Recipients int
	Messages   int
	Delivered  int
	Failed     int
	Skipped    int
}

// Notifier delivers announcements best-effort: a failing recipient is logged
// and counted, never returned to the caller.
type Notifier struct {
	sender         Sender
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	isPermanent    func(error) bool
	observer       Observer
	logger         *zap.Logger
}

// New validates cfg and constructs a Notifier.
func New(cfg Config) (*Notifier, error) {
	if cfg.Sender == nil {
		return nil, errors.New("notifier: sender is required")
	}
	notifier := &Notifier{
		sender:         cfg.Sender,
		limiter:        cfg.Limiter,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		isPermanent:    cfg.IsPermanent,
		observer:       cfg.Observer,
		logger:         cfg.Logger,
	}
	if notifier.limiter == nil {
		notifier.limiter = rate.NewLimiter(rate.Limit(defaultRatePerSecond), 1)
	}
	if notifier.maxAttempts <= 0 {
		notifier.maxAttempts = defaultMaxAttempts
	}
	if notifier.initialBackoff <= 0 {
		notifier.initialBackoff = defaultInitialBackoff
	}
	if notifier.maxBackoff < notifier.initialBackoff {
		notifier.maxBackoff = defaultMaxBackoff
		if notifier.maxBackoff < notifier.initialBackoff {
			notifier.maxBackoff = notifier.initialBackoff
		}
	}
	if notifier.isPermanent == nil {
		notifier.isPermanent = func(error) bool { return false }
	}
	if notifier.logger == nil {
		notifier.logger = zap.NewNop()
	}
	return notifier, nil
}

type message struct {
	kind string
	text string
}

func messagesFor(delta snapshot.Delta) []message {
	messages := make([]message, 0, len(delta.NewConferences)+delta.SubthemeCount())
	for _, theme := range delta.NewConferences {
		messages = append(messages, message{kind: "conference", text: RenderConference(theme)})
	}
	for _, group := range delta.NewSubthemes {
		for _, subtheme := range group.Subthemes {
			messages = append(messages, message{kind: "subtheme", text: RenderSubtheme(group.ConferenceName, subtheme)})
		}
	}
	return messages
}

// Notify sends one message per new conference, then one per new subtheme, to
// every subscriber. Cancelling ctx stops the batch; undelivered messages are
// reported as skipped.
func (n *Notifier) Notify(ctx context.Context, subscribers []int64, delta snapshot.Delta) Report {
	messages := messagesFor(delta)
	report := Report{Recipients: len(subscribers), Messages: len(messages)}
	if len(messages) == 0 || len(subscribers) == 0 {
		return report
	}

	total := len(messages) * len(subscribers)
	for _, chatID := range subscribers {
		for _, item := range messages {
			if ctx.Err() != nil {
				report.Skipped = total - report.Delivered - report.Failed
				n.logger.Warn("notification batch interrupted",
					zap.Int("skipped", report.Skipped),
					zap.Error(ctx.Err()))
				return report
			}
			err := n.deliver(ctx, chatID, item.text)
			if err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					continue
				}
				report.Failed++
				n.observe(false)
				n.logger.Warn("notification delivery failed",
					zap.Int64("chat_id", chatID),
					zap.String("kind", item.kind),
					zap.Error(err))
				continue
			}
			report.Delivered++
			n.observe(true)
		}
	}
	return report
}

func (n *Notifier) deliver(ctx context.Context, chatID int64, text string) error {
	backoff := n.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := n.sender.Send(ctx, chatID, text, nil)
		if err == nil {
			return nil
		}
		lastErr = err
		if n.isPermanent(err) || attempt == n.maxAttempts {
			break
		}

		n.logger.Debug("retrying notification",
			zap.Int64("chat_id", chatID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > n.maxBackoff {
			backoff = n.maxBackoff
		}
	}
	return lastErr
}

func (n *Notifier) observe(delivered bool) {
	if n.observer != nil {
		n.observer.ObserveNotification(delivered)
	}
}
