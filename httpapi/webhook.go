package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/coworklink/coworklink/callback"
	"github.com/coworklink/coworklink/store"
	"github.com/coworklink/coworklink/transport"
)

// handleInboundMessage resolves the sending user and chat, special-cases
// the /start greeting, and otherwise hands the text to the Message
// Coalescer (§4.F steps 1-3).
func (s *Server) handleInboundMessage(ctx context.Context, in *transport.Inbound) {
	user, err := s.store.GetOrCreateUser(ctx, in.TelegramUserID)
	if err != nil {
		slog.Error("httpapi: failed to resolve user", "telegram_id", in.TelegramUserID, "error", err)
		return
	}
	chat, err := s.store.GetOrCreateChat(ctx, user.ID)
	if err != nil {
		slog.Error("httpapi: failed to resolve chat", "user_id", user.ID, "error", err)
		return
	}

	if in.Text == "/start" {
		if _, err := s.transport.Send(ctx, transport.OutboundMessage{ChatID: chat.TelegramID, Text: startGreeting}); err != nil {
			slog.Error("httpapi: failed to send start greeting", "error", err)
		}
		return
	}

	if in.Text == "/reset" {
		s.sendResetPrompt(ctx, chat)
		return
	}

	if err := s.coalescer.HandleInboundText(ctx, chat, in.Text); err != nil {
		slog.Error("httpapi: failed to handle inbound text", "error", err)
	}
}

func (s *Server) sendResetPrompt(ctx context.Context, chat *store.Chat) {
	keyboard := transport.Keyboard{{
		{Label: "Yes, start over", CallbackData: s.packer.PackReset("confirm", chat.TelegramID)},
		{Label: "Cancel", CallbackData: s.packer.PackReset("cancel", chat.TelegramID)},
	}}
	if _, err := s.transport.Send(ctx, transport.OutboundMessage{
		ChatID:   chat.TelegramID,
		Text:     "This clears your profile and conversation history and puts you back into onboarding. Are you sure?",
		Keyboard: keyboard,
	}); err != nil {
		slog.Error("httpapi: failed to send reset prompt", "error", err)
	}
}

// handleInboundCallback verifies and unpacks the callback token, answers
// the callback query so the client dismisses its loading indicator, and
// dispatches to the family-specific handler (§6).
func (s *Server) handleInboundCallback(ctx context.Context, in *transport.Inbound) {
	decoded, err := s.packer.Unpack(in.CallbackData)
	if err != nil {
		slog.Warn("httpapi: rejected invalid callback token", "error", err)
		_ = s.transport.AnswerCallback(ctx, in.CallbackID, "This button has expired.")
		return
	}

	switch decoded.Kind {
	case callback.KindMatchAccept:
		s.handleMatchConsent(ctx, in, decoded.Match, true)
	case callback.KindMatchReject:
		s.handleMatchConsent(ctx, in, decoded.Match, false)
	case callback.KindResetConfirm:
		s.handleResetConfirm(ctx, in, decoded.Reset)
	case callback.KindResetCancel:
		_ = s.transport.AnswerCallback(ctx, in.CallbackID, "Okay, nothing changed.")
	case callback.KindActivate:
		s.handleActivate(ctx, in, decoded.Activate)
	case callback.KindAnnouncementAction:
		_ = s.transport.AnswerCallback(ctx, in.CallbackID, "Got it.")
	default:
		_ = s.transport.AnswerCallback(ctx, in.CallbackID, "")
	}
}

func (s *Server) handleMatchConsent(ctx context.Context, in *transport.Inbound, m *callback.Match, accept bool) {
	user, err := s.store.GetUser(ctx, &store.FindUser{TelegramID: &in.CallbackUser})
	if err != nil {
		slog.Error("httpapi: failed to resolve user for match consent", "error", err)
		_ = s.transport.AnswerCallback(ctx, in.CallbackID, "Something went wrong — please try again.")
		return
	}
	if err := s.intro.HandleConsent(ctx, m.MatchID, user.ID, accept); err != nil {
		slog.Error("httpapi: failed to apply match consent", "error", err)
		_ = s.transport.AnswerCallback(ctx, in.CallbackID, "Something went wrong — please try again.")
		return
	}
	text := "Thanks — you're connected once the other person also accepts."
	if !accept {
		text = "Got it, passing on this one."
	}
	_ = s.transport.AnswerCallback(ctx, in.CallbackID, text)
}

func (s *Server) handleResetConfirm(ctx context.Context, in *transport.Inbound, r *callback.Reset) {
	user, err := s.store.GetOrCreateUser(ctx, r.TelegramID)
	if err != nil {
		slog.Error("httpapi: failed to resolve user for reset", "error", err)
		_ = s.transport.AnswerCallback(ctx, in.CallbackID, "Something went wrong — please try again.")
		return
	}
	chat, err := s.store.GetOrCreateChat(ctx, user.ID)
	if err != nil {
		slog.Error("httpapi: failed to resolve chat for reset", "error", err)
		return
	}

	onboarding := store.UserStateOnboarding
	empty := ""
	now := time.Now()
	if _, err := s.store.UpdateUser(ctx, &store.UpdateUser{
		ID:                  user.ID,
		State:               &onboarding,
		MatchingSummary:     &empty,
		PracticalContext:    &empty,
		PrivateObservations: &empty,
		ProfileUpdatedAt:    &now,
	}); err != nil {
		slog.Error("httpapi: failed to reset user profile", "error", err)
		_ = s.transport.AnswerCallback(ctx, in.CallbackID, "Something went wrong — please try again.")
		return
	}

	if _, err := s.store.UpdateChat(ctx, &store.UpdateChat{ID: chat.ID, ClearHistory: true, ClearUserPrompt: true, ClearContinuationToken: true}); err != nil {
		slog.Error("httpapi: failed to clear chat history on reset", "error", err)
	}

	_ = s.transport.AnswerCallback(ctx, in.CallbackID, "All clear — tell me about yourself whenever you're ready.")
}

func (s *Server) handleActivate(ctx context.Context, in *transport.Inbound, telegramID *int64) {
	user, err := s.store.GetOrCreateUser(ctx, *telegramID)
	if err != nil {
		slog.Error("httpapi: failed to resolve user for activation", "error", err)
		_ = s.transport.AnswerCallback(ctx, in.CallbackID, "Something went wrong — please try again.")
		return
	}

	if user.State == store.UserStateOnboarding {
		_ = s.transport.AnswerCallback(ctx, in.CallbackID, "Finish telling me about yourself first.")
		return
	}

	active := store.UserStateActive
	if _, err := s.store.UpdateUser(ctx, &store.UpdateUser{ID: user.ID, State: &active}); err != nil {
		slog.Error("httpapi: failed to activate user", "error", err)
		_ = s.transport.AnswerCallback(ctx, in.CallbackID, "Something went wrong — please try again.")
		return
	}
	s.matching.Nudge()

	_ = s.transport.AnswerCallback(ctx, in.CallbackID, "You're in the matching pool now.")
}
