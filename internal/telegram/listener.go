package telegram

import (
	"context"
	"errors"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const defaultPollTimeoutSeconds = 60

// Handler receives decoded updates. Calls for one chat never overlap.
type Handler interface {
	HandleCommand(ctx context.Context, chatID int64, command, args string)
	HandleText(ctx context.Context, chatID int64, text string)
	HandleCallback(ctx context.Context, chatID int64, messageID int, data string)
}

// ListenerConfig describes the dependencies of Listener.
type ListenerConfig struct {
	API                API
	Handler            Handler
	PollTimeoutSeconds int
	Logger             *zap.Logger
}

// Listener long-polls updates. Different chats are handled concurrently, the
// updates of one chat strictly in arrival order.
type Listener struct {
	api         API
	handler     Handler
	pollTimeout int
	logger      *zap.Logger

	mu      sync.Mutex
	queues  map[int64]*chatQueue
	workers sync.WaitGroup
}

type chatQueue struct {
	pending []tgbotapi.Update
}

// NewListener validates cfg.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.API == nil {
		return nil, errors.New("telegram: api is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("telegram: handler is required")
	}
	listener := &Listener{
		api:         cfg.API,
		handler:     cfg.Handler,
		pollTimeout: cfg.PollTimeoutSeconds,
		logger:      cfg.Logger,
		queues:      make(map[int64]*chatQueue),
	}
	if listener.pollTimeout <= 0 {
		listener.pollTimeout = defaultPollTimeoutSeconds
	}
	if listener.logger == nil {
		listener.logger = zap.NewNop()
	}
	return listener, nil
}

// Run consumes updates until ctx is cancelled, then waits for in-flight
// handlers to return.
func (l *Listener) Run(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = l.pollTimeout
	updates := l.api.GetUpdatesChan(updateConfig)
	l.logger.Info("telegram listener started", zap.Int("poll_timeout_seconds", l.pollTimeout))

	defer l.workers.Wait()
	defer l.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("telegram listener stopping")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			l.dispatch(ctx, update)
		}
	}
}

func updateChatID(update tgbotapi.Update) (int64, bool) {
	switch {
	case update.CallbackQuery != nil:
		if update.CallbackQuery.Message == nil || update.CallbackQuery.Message.Chat == nil {
			return 0, false
		}
		return update.CallbackQuery.Message.Chat.ID, true
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID, true
	}
	return 0, false
}

func (l *Listener) dispatch(ctx context.Context, update tgbotapi.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		return
	}

	l.mu.Lock()
	if queue, busy := l.queues[chatID]; busy {
		queue.pending = append(queue.pending, update)
		l.mu.Unlock()
		return
	}
	queue := &chatQueue{pending: []tgbotapi.Update{update}}
	l.queues[chatID] = queue
	l.workers.Add(1)
	l.mu.Unlock()

	go l.drain(ctx, chatID, queue)
}

func (l *Listener) drain(ctx context.Context, chatID int64, queue *chatQueue) {
	defer l.workers.Done()
	for {
		l.mu.Lock()
		if len(queue.pending) == 0 {
			delete(l.queues, chatID)
			l.mu.Unlock()
			return
		}
		next := queue.pending[0]
		queue.pending = queue.pending[1:]
		l.mu.Unlock()

		l.handle(ctx, chatID, next)
	}
}

func (l *Listener) handle(ctx context.Context, chatID int64, update tgbotapi.Update) {
	defer func() {
		if recovered := recover(); recovered != nil {
			l.logger.Error("update handler panicked",
				zap.Int64("chat_id", chatID),
				zap.Int("update_id", update.UpdateID),
				zap.Any("panic", recovered))
		}
	}()

	if callback := update.CallbackQuery; callback != nil {
		if _, err := l.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
			l.logger.Debug("callback answer failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		l.handler.HandleCallback(ctx, chatID, callback.Message.MessageID, callback.Data)
		return
	}

	message := update.Message
	switch {
	case message.IsCommand():
		l.handler.HandleCommand(ctx, chatID, message.Command(), message.CommandArguments())
	case message.Text != "":
		l.handler.HandleText(ctx, chatID, message.Text)
	}
}
