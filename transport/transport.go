// Package transport defines the adapter surface over the external chat
// API (§4.C, §6): send/edit/delete text, typing indicator, inline
// keyboards, admin topic threads, and inbound update parsing.
package transport

import (
	"context"
	"errors"
)

// ErrTransportUnavailable wraps any failure talking to the chat API.
// Send-to-a-user errors are logged by callers and never fatal to the
// scheduler (§4.C).
var ErrTransportUnavailable = errors.New("chat transport unavailable")

// Button is one labeled inline-keyboard button carrying a packed callback
// token (see callback.Packer).
type Button struct {
	Label        string
	CallbackData string
}

// Keyboard is a grid of inline buttons, one row per slice entry.
type Keyboard [][]Button

// OutboundMessage is a text send or edit request.
type OutboundMessage struct {
	ChatID    int64
	Text      string
	ParseMode string // empty, "Markdown" or "HTML"
	Keyboard  Keyboard
	ReplyToID *int64
	ThreadID  *int64 // admin forum/topic thread, when set
}

// InboundKind discriminates the two shapes of inbound update (§6).
type InboundKind string

const (
	InboundMessage  InboundKind = "message"
	InboundCallback InboundKind = "callback"
)

// Inbound is either a text message or a callback query from an inline
// keyboard button.
type Inbound struct {
	Kind InboundKind

	// Present when Kind == InboundMessage.
	TelegramUserID int64
	ChatTelegramID int64
	Text           string

	// Present when Kind == InboundCallback.
	CallbackID   string
	CallbackData string
	CallbackUser int64
	CallbackChat int64
	MessageID    int64
}

// ChatTransport is the adapter over the external chat API. The Telegram
// implementation acquires the relevant ratelimit.Gates entry inside each
// method that sends to a chat; callers do not acquire gates themselves.
type ChatTransport interface {
	// Send delivers a new message and returns the provider's message id.
	Send(ctx context.Context, msg OutboundMessage) (int64, error)

	// Edit replaces the text (and optionally keyboard) of a prior message.
	Edit(ctx context.Context, chatID, messageID int64, text string, keyboard Keyboard) error

	// Delete removes a prior message. Best-effort: callers must tolerate
	// failure (the message may already be gone).
	Delete(ctx context.Context, chatID, messageID int64) error

	// SendTyping sends a typing/composing indicator. Best-effort.
	SendTyping(ctx context.Context, chatID int64) error

	// AnswerCallback dismisses a callback query's loading indicator, with
	// an optional toast text. Best-effort: callers must tolerate failure.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// CreateAdminThread creates a forum/topic thread in the admin group
	// and returns its thread id.
	CreateAdminThread(ctx context.Context, name string) (int64, error)

	// ParseInbound decodes a raw webhook payload into an Inbound event.
	ParseInbound(payload []byte) (*Inbound, error)
}
