package chatengine

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/langagent"
	"github.com/coworklink/coworklink/store"
	"github.com/coworklink/coworklink/transport"
)

// applyProfileSideEffect implements §4.F.i: persist the extracted profile
// fields, recompute the embedding only when the matching summary actually
// changed, advance the user's lifecycle state, and present a profile card
// with an activate button.
func (r *Runner) applyProfileSideEffect(ctx context.Context, user *store.User, profile langagent.ProfileData) error {
	if err := profile.Validate(); err != nil {
		return errors.Wrap(err, "profile extraction failed validation")
	}

	embedding := user.Embedding
	if profile.MatchingSummary != user.MatchingSummary {
		vec, err := r.agent.Embed(ctx, profile.MatchingSummary)
		if err != nil {
			return errors.Wrap(err, "failed to recompute matching embedding")
		}
		embedding = vec
	}

	nextState := store.UserStateUpdated
	if user.State == store.UserStateOnboarding {
		nextState = store.UserStateReady
	}

	now := time.Now()
	version := CurrentProfilerVersion
	updated, err := r.store.UpdateUser(ctx, &store.UpdateUser{
		ID:                  user.ID,
		IsSeeker:            &profile.IsSeeker,
		IsProvider:          &profile.IsProvider,
		State:               &nextState,
		MatchingSummary:     &profile.MatchingSummary,
		PracticalContext:    &profile.PracticalContext,
		PrivateObservations: &profile.PrivateObservations,
		Embedding:           embedding,
		ProfilerVersion:     &version,
		ProfileUpdatedAt:    &now,
	})
	if err != nil {
		return errors.Wrap(err, "failed to persist profile side effect")
	}
	*user = *updated

	return r.presentProfileCard(ctx, user)
}

// presentProfileCard sends the user their updated profile plus an inline
// "activate" button that enters them into the matching pool (§4.F.i,
// §6 activate callback).
func (r *Runner) presentProfileCard(ctx context.Context, user *store.User) error {
	chat, err := r.store.GetOrCreateChat(ctx, user.ID)
	if err != nil {
		return errors.Wrap(err, "failed to load chat for profile card")
	}

	card := "Here's what I've got so far:\n\n" + user.MatchingSummary
	if user.PracticalContext != "" {
		card += "\n\n" + user.PracticalContext
	}

	keyboard := transport.Keyboard{{
		{Label: "Activate", CallbackData: r.packer.PackActivate(user.TelegramID)},
	}}

	if _, err := r.transport.Send(ctx, transport.OutboundMessage{
		ChatID:   chat.TelegramID,
		Text:     card,
		Keyboard: keyboard,
	}); err != nil {
		return errors.Wrap(err, "failed to send profile card")
	}
	return nil
}
