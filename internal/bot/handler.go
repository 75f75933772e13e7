// Package bot wires chat input to navigation, subscriptions and manual update
// checks, and keeps each chat down to a single live screen.
package bot

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/confdesk/backend/internal/navigation"
	"github.com/confdesk/backend/internal/session"
	"github.com/confdesk/backend/internal/telegram"
	"github.com/confdesk/backend/internal/updates"
)

const (
	textHelp = "<b>Available commands:</b>\n" +
		"/start - start talking to the bot\n" +
		"/setnews - subscribe to new conference and topic notifications\n" +
		"/unsetnews - unsubscribe from notifications\n" +
		"/checknews - check for updates now\n" +
		"/searcht - search a conference by name\n" +
		"/chooset - choose a conference from the list\n" +
		"/help - list all commands"
	textSubscribed        = "You are now subscribed to new conferences and topics."
	textAlreadySubscribed = "You are already subscribed to notifications."
	textUnsubscribed      = "You have unsubscribed from notifications."
	textNotSubscribed     = "You were not subscribed to notifications."
	textCheckBusy         = "An update check is already running, please try again in a moment."
	textCheckFailed       = "Could not refresh conference data right now, please try again later."
	textNoNews            = "No new conferences or topics."
	textUnknownCommand    = "Unknown command. Send /help to see what I can do."
)

// Commands is the bot command menu.
var Commands = []telegram.Command{
	{Name: "start", Description: "Start talking to the bot"},
	{Name: "setnews", Description: "Subscribe to new topic notifications"},
	{Name: "unsetnews", Description: "Unsubscribe from notifications"},
	{Name: "checknews", Description: "Check for updates now"},
	{Name: "searcht", Description: "Search a conference by name"},
	{Name: "chooset", Description: "Choose a conference from the list"},
	{Name: "help", Description: "Show all commands"},
}

// Messenger sends and deletes chat messages.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, rows [][]navigation.Button) (int, error)
	Delete(ctx context.Context, chatID int64, messageID int) error
}

// Subscriptions manages the chats that receive notifications.
type Subscriptions interface {
	Add(ctx context.Context, chatID int64) (bool, error)
	Remove(ctx context.Context, chatID int64) (bool, error)
	IDs() []int64
}

// UpdateChecker runs a refresh cycle on demand.
type UpdateChecker interface {
	CheckNow(ctx context.Context, chatIDs ...int64) (updates.Result, error)
}

// Observer records chat level gauges.
type Observer interface {
	SetSessions(count int)
	SetSubscribers(count int)
}

// Config describes the dependencies of Handler.
type Config struct {
	Messenger     Messenger
	Machine       *navigation.Machine
	Sessions      *session.Store
	Subscriptions Subscriptions
	Checker       UpdateChecker
	Observer      Observer
	Logger        *zap.Logger
}

// Handler implements telegram.Handler.
type Handler struct {
	messenger     Messenger
	machine       *navigation.Machine
	sessions      *session.Store
	subscriptions Subscriptions
	checker       UpdateChecker
	observer      Observer
	logger        *zap.Logger
}

// NewHandler validates cfg.
func NewHandler(cfg Config) (*Handler, error) {
	switch {
	case cfg.Messenger == nil:
		return nil, errors.New("bot: messenger is required")
	case cfg.Machine == nil:
		return nil, errors.New("bot: navigation machine is required")
	case cfg.Sessions == nil:
		return nil, errors.New("bot: session store is required")
	case cfg.Subscriptions == nil:
		return nil, errors.New("bot: subscriptions are required")
	case cfg.Checker == nil:
		return nil, errors.New("bot: update checker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		messenger:     cfg.Messenger,
		machine:       cfg.Machine,
		sessions:      cfg.Sessions,
		subscriptions: cfg.Subscriptions,
		checker:       cfg.Checker,
		observer:      cfg.Observer,
		logger:        logger,
	}, nil
}

// HandleCommand runs a slash command.
func (h *Handler) HandleCommand(ctx context.Context, chatID int64, command, _ string) {
	h.logger.Info("command received", zap.Int64("chat_id", chatID), zap.String("command", command))
	switch strings.ToLower(command) {
	case "start":
		h.show(ctx, chatID, navigation.Menu())
	case "help":
		h.show(ctx, chatID, navigation.Info(textHelp))
	case "setnews":
		h.subscribe(ctx, chatID)
	case "unsetnews":
		h.unsubscribe(ctx, chatID)
	case "checknews":
		h.checkNews(ctx, chatID)
	case "searcht":
		h.apply(ctx, chatID, navigation.StartSearch())
	case "chooset":
		h.apply(ctx, chatID, navigation.StartChoose())
	default:
		h.show(ctx, chatID, navigation.Info(textUnknownCommand))
	}
}

// HandleText treats free text as a search query while the chat is searching
// and ignores it otherwise.
func (h *Handler) HandleText(ctx context.Context, chatID int64, text string) {
	if h.sessions.GetOrCreate(chatID).Mode != session.ModeSearching {
		return
	}
	h.logger.Info("search requested", zap.Int64("chat_id", chatID), zap.String("query", text))
	h.apply(ctx, chatID, navigation.SearchText(text))
}

// HandleCallback runs the event behind an inline button. The pressed message is
// removed unless it is the live screen and the press was ignored.
func (h *Handler) HandleCallback(ctx context.Context, chatID int64, messageID int, data string) {
	event, ok := navigation.ParseAction(data)
	if !ok {
		h.logger.Debug("unknown callback ignored", zap.Int64("chat_id", chatID), zap.String("data", data))
		h.removePressed(ctx, chatID, messageID)
		return
	}

	var screen navigation.Screen
	var handled bool
	current := h.sessions.Update(chatID, func(s *session.Session) {
		screen, handled = h.machine.Handle(s, event)
	})

	isLiveScreen := messageID == current.LastMessageID
	if handled || !isLiveScreen || event.Kind == navigation.EventDismiss {
		h.removePressed(ctx, chatID, messageID)
	}
	if !handled {
		h.logger.Debug("stale navigation event ignored",
			zap.Int64("chat_id", chatID),
			zap.String("data", data),
			zap.String("mode", string(current.Mode)))
		return
	}

	if event.Kind == navigation.EventEndSession {
		ended, _ := h.sessions.End(chatID)
		h.sessions.Update(chatID, func(s *session.Session) { s.LastMessageID = ended.LastMessageID })
	}
	h.show(ctx, chatID, screen)
}

func (h *Handler) apply(ctx context.Context, chatID int64, event navigation.Event) {
	var screen navigation.Screen
	var handled bool
	h.sessions.Update(chatID, func(s *session.Session) {
		screen, handled = h.machine.Handle(s, event)
	})
	if handled {
		h.show(ctx, chatID, screen)
	}
}

func (h *Handler) subscribe(ctx context.Context, chatID int64) {
	added, err := h.subscriptions.Add(ctx, chatID)
	if err != nil {
		h.logger.Error("subscription not persisted", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	h.observeSubscribers()
	text := textAlreadySubscribed
	if added {
		text = textSubscribed
		h.logger.Info("chat subscribed", zap.Int64("chat_id", chatID))
	}
	h.show(ctx, chatID, navigation.Info(text))
}

func (h *Handler) unsubscribe(ctx context.Context, chatID int64) {
	removed, err := h.subscriptions.Remove(ctx, chatID)
	if err != nil {
		h.logger.Error("unsubscription not persisted", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	h.observeSubscribers()
	text := textNotSubscribed
	if removed {
		text = textUnsubscribed
		h.logger.Info("chat unsubscribed", zap.Int64("chat_id", chatID))
	}
	h.show(ctx, chatID, navigation.Info(text))
}

func (h *Handler) checkNews(ctx context.Context, chatID int64) {
	result, err := h.checker.CheckNow(ctx, chatID)
	switch {
	case errors.Is(err, updates.ErrCycleInProgress):
		h.show(ctx, chatID, navigation.Info(textCheckBusy))
	case err != nil:
		h.logger.Warn("manual update check failed", zap.Int64("chat_id", chatID), zap.Error(err))
		h.show(ctx, chatID, navigation.Info(textCheckFailed))
	case result.Delta.Empty():
		h.show(ctx, chatID, navigation.Info(textNoNews))
	}
}

// show replaces the chat's live screen with screen.
func (h *Handler) show(ctx context.Context, chatID int64, screen navigation.Screen) {
	previous := h.sessions.GetOrCreate(chatID).LastMessageID
	if previous != 0 {
		if err := h.messenger.Delete(ctx, chatID, previous); err != nil {
			h.logger.Debug("previous screen not deleted",
				zap.Int64("chat_id", chatID),
				zap.Int("message_id", previous),
				zap.Error(err))
		}
	}

	messageID, err := h.messenger.Send(ctx, chatID, screen.Text, screen.Rows)
	if err != nil {
		h.logger.Warn("screen not delivered", zap.Int64("chat_id", chatID), zap.Error(err))
		messageID = 0
	}
	h.sessions.Update(chatID, func(s *session.Session) { s.LastMessageID = messageID })
	if h.observer != nil {
		h.observer.SetSessions(h.sessions.Len())
	}
}

func (h *Handler) removePressed(ctx context.Context, chatID int64, messageID int) {
	if err := h.messenger.Delete(ctx, chatID, messageID); err != nil {
		h.logger.Debug("pressed message not deleted",
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID),
			zap.Error(err))
	}
	h.sessions.Update(chatID, func(s *session.Session) {
		if s.LastMessageID == messageID {
			s.LastMessageID = 0
		}
	})
}

func (h *Handler) observeSubscribers() {
	if h.observer != nil {
		h.observer.SetSubscribers(len(h.subscriptions.IDs()))
	}
}
