// Package telegram adapts the Bot API to the bot: outgoing messages with
// inline keyboards, message deletion and the update listener.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/confdesk/backend/internal/navigation"
)

// MaxCallbackDataBytes is the Bot API limit for inline button payloads.
const MaxCallbackDataBytes = 64

const cropMarker = "..."

// API is the subset of *tgbotapi.BotAPI the bot relies on.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Command is an entry of the bot command menu.
type Command struct {
	Name        string
	Description string
}

// Client sends and deletes messages in HTML parse mode.
type Client struct {
	api    API
	logger *zap.Logger
}

// NewClient wraps api.
func NewClient(api API, logger *zap.Logger) (*Client, error) {
	if api == nil {
		return nil, errors.New("telegram: api is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, logger: logger}, nil
}

// Send posts text to chatID with an optional inline keyboard and returns the
// new message id.
func (c *Client) Send(ctx context.Context, chatID int64, text string, rows [][]navigation.Button) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	message := tgbotapi.NewMessage(chatID, text)
	message.ParseMode = tgbotapi.ModeHTML
	if len(rows) > 0 {
		message.ReplyMarkup = Keyboard(rows)
	}
	sent, err := c.api.Send(message)
	if err != nil {
		return 0, fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// Delete removes a message previously sent to chatID.
func (c *Client) Delete(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("telegram: delete %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

// RegisterCommands publishes the command menu.
func (c *Client) RegisterCommands(ctx context.Context, commands []Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	botCommands := make([]tgbotapi.BotCommand, 0, len(commands))
	for _, command := range commands {
		botCommands = append(botCommands, tgbotapi.BotCommand{Command: command.Name, Description: command.Description})
	}
	if _, err := c.api.Request(tgbotapi.NewSetMyCommands(botCommands...)); err != nil {
		return fmt.Errorf("telegram: set commands: %w", err)
	}
	c.logger.Info("bot commands registered", zap.Int("count", len(commands)))
	return nil
}

// Keyboard converts navigation rows into an inline keyboard.
func Keyboard(rows [][]navigation.Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(button.Label, CropCallbackData(button.Action)))
		}
		keyboard = append(keyboard, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// CropCallbackData shortens data to the callback payload limit without
// splitting a UTF-8 sequence; cropped payloads end with "...".
func CropCallbackData(data string) string {
	if len(data) <= MaxCallbackDataBytes {
		return data
	}
	cut := MaxCallbackDataBytes - len(cropMarker)
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return data[:cut] + cropMarker
}

// IsPermanent reports Bot API errors that retrying will not fix: the chat is
// gone, the bot was blocked, or the request itself is malformed.
func IsPermanent(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
