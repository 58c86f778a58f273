package chatengine

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/callback"
	"github.com/coworklink/coworklink/langagent"
	"github.com/coworklink/coworklink/store"
	"github.com/coworklink/coworklink/transport"
)

// CurrentProfilerVersion is stamped onto every user row the profile
// side-effect writes (§4.F.i).
const CurrentProfilerVersion int32 = 1

// Runner executes a chat-typed generation dispatched by the scheduler
// (§4.F). It satisfies scheduler.Runner's chat half.
type Runner struct {
	store     *store.Store
	transport transport.ChatTransport
	agent     langagent.Agent
	packer    *callback.Packer
}

func NewRunner(st *store.Store, tr transport.ChatTransport, ag langagent.Agent, packer *callback.Packer) *Runner {
	return &Runner{store: st, transport: tr, agent: ag, packer: packer}
}

// RunChatGeneration implements the eight steps of §4.F's chat generation
// runner.
func (r *Runner) RunChatGeneration(ctx context.Context, gen *store.Generation) error {
	if gen.ChatID == nil {
		return errors.New("chat generation has no chat_id")
	}
	chat, err := r.store.GetChat(ctx, &store.FindChat{ID: gen.ChatID})
	if err != nil {
		return errors.Wrap(err, "failed to load chat")
	}
	user, err := r.store.GetUser(ctx, &store.FindUser{ID: &chat.UserID})
	if err != nil {
		return errors.Wrap(err, "failed to load user")
	}

	placeholderID := chat.StatusMessageID
	if placeholderID != nil {
		if _, err := r.store.UpdateGeneration(ctx, &store.UpdateGeneration{
			ID:                   gen.ID,
			PlaceholderMessageID: placeholderID,
		}); err != nil {
			return errors.Wrap(err, "failed to transfer placeholder message id")
		}
	}
	chat, err = r.store.UpdateChat(ctx, &store.UpdateChat{ID: chat.ID, ClearStatusMessageID: true})
	if err != nil {
		return errors.Wrap(err, "failed to clear chat status message id")
	}

	if placeholderID != nil {
		if err := r.transport.Edit(ctx, chat.TelegramID, *placeholderID, "Thinking…", nil); err != nil {
			slog.Warn("chatengine: failed to edit placeholder to thinking indicator", "error", err)
		}
	}
	if err := r.transport.SendTyping(ctx, chat.TelegramID); err != nil {
		slog.Warn("chatengine: failed to send typing indicator", "error", err)
	}

	prompt, err := r.consumePrompt(ctx, chat)
	if err != nil {
		return r.fail(ctx, chat, err)
	}

	result, err := r.invokeAgent(ctx, chat, prompt)
	if err != nil {
		return r.fail(ctx, chat, err)
	}

	if err := r.recordUsage(ctx, gen.ID, result); err != nil {
		return r.fail(ctx, chat, err)
	}

	if result.Profile != nil {
		if err := r.applyProfileSideEffect(ctx, user, *result.Profile); err != nil {
			return r.fail(ctx, chat, err)
		}
	}

	if err := r.deliverReply(ctx, chat, placeholderID, result.Utterance); err != nil {
		return r.fail(ctx, chat, err)
	}

	if err := r.persistTurn(ctx, chat, prompt, result); err != nil {
		return r.fail(ctx, chat, err)
	}

	return nil
}

// consumePrompt atomically takes the buffered prompt, clearing it on the
// chat, per §4.F step 3. A nil prompt is an invariant violation.
func (r *Runner) consumePrompt(ctx context.Context, chat *store.Chat) (string, error) {
	if chat.UserPrompt == nil || *chat.UserPrompt == "" {
		return "", errors.New("pending generation with no buffered user prompt")
	}
	prompt := *chat.UserPrompt
	updated, err := r.store.UpdateChat(ctx, &store.UpdateChat{ID: chat.ID, ClearUserPrompt: true})
	if err != nil {
		return "", errors.Wrap(err, "failed to clear user prompt")
	}
	*chat = *updated
	return prompt, nil
}

func (r *Runner) invokeAgent(ctx context.Context, chat *store.Chat, prompt string) (*langagent.ConversationResult, error) {
	history := make([]langagent.Message, 0, len(chat.MessageHistory))
	for _, m := range chat.MessageHistory {
		history = append(history, langagent.Message{Role: m.Role, Content: m.Content})
	}
	result, err := r.agent.Converse(ctx, history, prompt, chat.ContinuationToken)
	if err != nil {
		return nil, errors.Wrap(err, "language agent conversation failed")
	}
	return result, nil
}

func (r *Runner) recordUsage(ctx context.Context, genID uuid.UUID, result *langagent.ConversationResult) error {
	cached := result.Usage.CachedInputTokens
	uncached := result.Usage.UncachedInputTokens
	output := result.Usage.OutputTokens
	cost := result.CostUSD
	responseID := result.ProviderResponseID

	_, err := r.store.UpdateGeneration(ctx, &store.UpdateGeneration{
		ID:                  genID,
		CachedInputTokens:   &cached,
		UncachedInputTokens: &uncached,
		OutputTokens:        &output,
		CostUSD:             &cost,
		ProviderResponseID:  &responseID,
	})
	if err != nil {
		return errors.Wrap(err, "failed to record generation usage")
	}
	return nil
}

// deliverReply implements the placeholder lifecycle of §4.F step 6: edit
// in place if the user kept typing, otherwise delete-and-resend.
func (r *Runner) deliverReply(ctx context.Context, chat *store.Chat, placeholderID *int64, utterance string) error {
	current, err := r.store.GetChat(ctx, &store.FindChat{ID: &chat.ID})
	if err != nil {
		return errors.Wrap(err, "failed to re-read chat before delivering reply")
	}

	userKeptTyping := current.UserPrompt != nil && *current.UserPrompt != ""

	if userKeptTyping && placeholderID != nil {
		if err := r.transport.Edit(ctx, chat.TelegramID, *placeholderID, utterance, nil); err == nil {
			return nil
		}
		slog.Warn("chatengine: failed to edit placeholder with final reply, falling back to fresh send")
	} else if placeholderID != nil {
		if err := r.transport.Delete(ctx, chat.TelegramID, *placeholderID); err != nil {
			slog.Warn("chatengine: failed to delete placeholder", "error", err)
		}
	}

	if _, err := r.transport.Send(ctx, transport.OutboundMessage{ChatID: chat.TelegramID, Text: utterance}); err != nil {
		return errors.Wrap(err, "failed to send reply")
	}
	return nil
}

// persistTurn appends the user prompt and the serialized assistant reply
// to chat.message_history, and stores a refreshed continuation token, if
// any; a stored token is cleared when the agent returns none (§4.F step 7).
func (r *Runner) persistTurn(ctx context.Context, chat *store.Chat, prompt string, result *langagent.ConversationResult) error {
	assistantPayload, err := json.Marshal(struct {
		Utterance string                `json:"utterance"`
		Profile   *langagent.ProfileData `json:"profile,omitempty"`
	}{result.Utterance, result.Profile})
	if err != nil {
		return errors.Wrap(err, "failed to serialize assistant reply")
	}

	update := &store.UpdateChat{
		ID: chat.ID,
		AppendHistory: []store.HistoryMessage{
			{Role: store.MessageRoleUser, Content: prompt},
			{Role: store.MessageRoleAssistant, Content: string(assistantPayload)},
		},
	}
	if result.ContinuationToken != nil {
		update.ContinuationToken = result.ContinuationToken
	} else if chat.ContinuationToken != nil {
		update.ClearContinuationToken = true
	}

	if _, err := r.store.UpdateChat(ctx, update); err != nil {
		return errors.Wrap(err, "failed to persist chat turn")
	}
	return nil
}

// fail implements §4.F step 8 and the propagation policy of §7: best
// effort user notification, then re-raise so the scheduler marks the
// generation failed.
func (r *Runner) fail(ctx context.Context, chat *store.Chat, cause error) error {
	if _, sendErr := r.transport.Send(ctx, transport.OutboundMessage{
		ChatID: chat.TelegramID,
		Text:   "Something went wrong on my end — please try again in a bit.",
	}); sendErr != nil {
		slog.Warn("chatengine: failed to send generation-failed notice", "error", sendErr)
	}
	return cause
}
