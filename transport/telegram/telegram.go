// Package telegram implements transport.ChatTransport over the Telegram
// Bot API.
package telegram

import (
	"context"
	"encoding/json"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/ratelimit"
	"github.com/coworklink/coworklink/transport"
)

// Channel adapts the Telegram Bot API to transport.ChatTransport. Every
// send funnels through Gates before reaching the wire (§4.B).
type Channel struct {
	bot          *tgbotapi.BotAPI
	gates        *ratelimit.Gates
	adminGroupID int64
}

// New creates a Telegram channel bound to the given bot token.
func New(botToken string, adminGroupID int64, gates *ratelimit.Gates) (*Channel, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	return &Channel{bot: bot, gates: gates, adminGroupID: adminGroupID}, nil
}

func (c *Channel) Send(ctx context.Context, msg transport.OutboundMessage) (int64, error) {
	if err := c.gates.AcquireForChat(ctx, msg.ChatID); err != nil {
		return 0, err
	}

	tgMsg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	if msg.ParseMode != "" {
		tgMsg.ParseMode = msg.ParseMode
	}
	if msg.ReplyToID != nil {
		tgMsg.ReplyToMessageID = int(*msg.ReplyToID)
	}
	if msg.ThreadID != nil {
		tgMsg.MessageThreadID = int(*msg.ThreadID)
	}
	if len(msg.Keyboard) > 0 {
		tgMsg.ReplyMarkup = toInlineKeyboard(msg.Keyboard)
	}

	sent, err := c.bot.Send(tgMsg)
	if err != nil {
		return 0, errors.Wrap(transport.ErrTransportUnavailable, err.Error())
	}
	return int64(sent.MessageID), nil
}

func (c *Channel) Edit(ctx context.Context, chatID, messageID int64, text string, keyboard transport.Keyboard) error {
	if err := c.gates.AcquireForChat(ctx, chatID); err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageText(chatID, int(messageID), text)
	if len(keyboard) > 0 {
		markup := toInlineKeyboard(keyboard)
		edit.ReplyMarkup = &markup
	}
	if _, err := c.bot.Send(edit); err != nil {
		return errors.Wrap(transport.ErrTransportUnavailable, err.Error())
	}
	return nil
}

func (c *Channel) Delete(ctx context.Context, chatID, messageID int64) error {
	if err := c.gates.AcquireForChat(ctx, chatID); err != nil {
		return err
	}
	del := tgbotapi.NewDeleteMessage(chatID, int(messageID))
	if _, err := c.bot.Request(del); err != nil {
		return errors.Wrap(transport.ErrTransportUnavailable, err.Error())
	}
	return nil
}

func (c *Channel) SendTyping(ctx context.Context, chatID int64) error {
	if err := c.gates.AcquireForChat(ctx, chatID); err != nil {
		return err
	}
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := c.bot.Request(action); err != nil {
		return errors.Wrap(transport.ErrTransportUnavailable, err.Error())
	}
	return nil
}

func (c *Channel) AnswerCallback(ctx context.Context, callbackID, text string) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	if _, err := c.bot.Request(callback); err != nil {
		return errors.Wrap(transport.ErrTransportUnavailable, err.Error())
	}
	return nil
}

func (c *Channel) CreateAdminThread(ctx context.Context, name string) (int64, error) {
	if err := c.gates.AcquireForAdmin(ctx); err != nil {
		return 0, err
	}
	thread := tgbotapi.NewForumTopic(c.adminGroupID, name)
	result, err := c.bot.CreateForumTopic(thread)
	if err != nil {
		return 0, errors.Wrap(transport.ErrTransportUnavailable, err.Error())
	}
	return int64(result.MessageThreadID), nil
}

// ParseInbound decodes a raw Telegram webhook payload into either a
// message or a callback-query Inbound event (§6).
func (c *Channel) ParseInbound(payload []byte) (*transport.Inbound, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return nil, errors.Wrap(err, "failed to decode telegram update")
	}

	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		in := &transport.Inbound{
			Kind:         transport.InboundCallback,
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
			CallbackUser: cb.From.ID,
		}
		if cb.Message != nil {
			in.CallbackChat = cb.Message.Chat.ID
			in.MessageID = int64(cb.Message.MessageID)
		}
		return in, nil

	case update.Message != nil:
		m := update.Message
		return &transport.Inbound{
			Kind:           transport.InboundMessage,
			TelegramUserID: m.From.ID,
			ChatTelegramID: m.Chat.ID,
			Text:           m.Text,
		}, nil

	default:
		return nil, errors.New("unsupported telegram update type")
	}
}

func toInlineKeyboard(keyboard transport.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			data := btn.CallbackData
			buttons = append(buttons, tgbotapi.InlineKeyboardButton{
				Text:         btn.Label,
				CallbackData: &data,
			})
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}
