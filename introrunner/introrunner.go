// Package introrunner implements the Match Rationale & Intro Runner
// (§4.H): the two-phase language-model call dispatched for a
// match-typed generation, and the consent state machine driven by the
// accept/reject callbacks it sets up.
package introrunner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/google/uuid"

	"github.com/coworklink/coworklink/callback"
	"github.com/coworklink/coworklink/langagent"
	"github.com/coworklink/coworklink/matching"
	"github.com/coworklink/coworklink/store"
	"github.com/coworklink/coworklink/transport"
)

// Restarter is notified when the matching loop should run again, once a
// match-typed generation has finished (success or failure) (§4.G step 5).
type Restarter interface {
	Restart(ctx context.Context)
}

// Runner executes match-typed generations and the accept/reject consent
// transitions for a Match row (§4.H). It satisfies scheduler.Runner's
// match half.
type Runner struct {
	store     *store.Store
	transport transport.ChatTransport
	agent     langagent.Agent
	packer    *callback.Packer
	restarter Restarter
}

func NewRunner(st *store.Store, tr transport.ChatTransport, ag langagent.Agent, packer *callback.Packer, restarter Restarter) *Runner {
	return &Runner{store: st, transport: tr, agent: ag, packer: packer, restarter: restarter}
}

// RunMatchGeneration implements §4.H's two phases: rationale, then one
// personalized intro per side.
func (r *Runner) RunMatchGeneration(ctx context.Context, gen *store.Generation) error {
	defer r.restarter.Restart(ctx)
	if gen.MatchID == nil {
		return errors.New("match generation has no match_id")
	}

	match, err := r.store.GetMatch(ctx, *gen.MatchID)
	if err != nil {
		return errors.Wrap(err, "failed to load match")
	}
	if match.UserBID == nil {
		return errors.Wrap(store.ErrInvariant, "match generation dispatched for a participation record")
	}

	userA, err := r.store.GetUser(ctx, &store.FindUser{ID: &match.UserAID})
	if err != nil {
		return errors.Wrap(err, "failed to load user_a")
	}
	userB, err := r.store.GetUser(ctx, &store.FindUser{ID: match.UserBID})
	if err != nil {
		return errors.Wrap(err, "failed to load user_b")
	}

	partyA := matchingParty(userA)
	partyB := matchingParty(userB)

	rationale, err := r.agent.Rationale(ctx, partyA, partyB)
	if err != nil {
		return errors.Wrap(err, "rationale phase failed")
	}

	rationaleText := rationale.Explanation
	if len(rationale.KeyAlignments) > 0 {
		rationaleText += "\n\n- " + strings.Join(rationale.KeyAlignments, "\n- ")
	}

	if _, err := r.store.UpdateMatch(ctx, &store.UpdateMatch{ID: match.ID, MatchRationale: &rationaleText}); err != nil {
		return errors.Wrap(err, "failed to persist match rationale")
	}

	if err := r.sendIntro(ctx, match.ID, userA, partyA, displayProfile(userB), rationaleText); err != nil {
		return errors.Wrap(err, "intro phase failed for user_a")
	}
	if err := r.sendIntro(ctx, match.ID, userB, partyB, displayProfile(userA), rationaleText); err != nil {
		return errors.Wrap(err, "intro phase failed for user_b")
	}

	return nil
}

func (r *Runner) sendIntro(ctx context.Context, matchID uuid.UUID, self *store.User, selfParty langagent.MatchingParty, counterpart langagent.DisplayProfile, rationale string) error {
	intro, err := r.agent.Intro(ctx, selfParty, counterpart, rationale)
	if err != nil {
		return err
	}

	chat, err := r.store.GetOrCreateChat(ctx, self.ID)
	if err != nil {
		return errors.Wrap(err, "failed to load chat for intro")
	}

	keyboard := transport.Keyboard{{
		{Label: "Accept", CallbackData: r.packer.PackMatch("accept", matchID)},
		{Label: "Pass", CallbackData: r.packer.PackMatch("reject", matchID)},
	}}

	if _, err := r.transport.Send(ctx, transport.OutboundMessage{
		ChatID:   chat.TelegramID,
		Text:     intro.Utterance,
		Keyboard: keyboard,
	}); err != nil {
		return errors.Wrap(err, "failed to send intro message")
	}
	return nil
}

// HandleConsent applies one accept/reject event to the consent state
// machine (§4.H table) and sends the resulting notifications.
func (r *Runner) HandleConsent(ctx context.Context, matchID uuid.UUID, accepter int64, accept bool) error {
	match, err := r.store.GetMatch(ctx, matchID)
	if err != nil {
		return errors.Wrap(err, "failed to load match for consent")
	}
	if match.UserBID == nil {
		return errors.Wrap(store.ErrInvariant, "consent event on a participation record")
	}

	isUserA := accepter == match.UserAID

	if !accept {
		rejected := store.MatchRejected
		if _, err := r.store.UpdateMatch(ctx, &store.UpdateMatch{ID: match.ID, Status: &rejected}); err != nil {
			return errors.Wrap(err, "failed to mark match rejected")
		}
		return r.notifyBothSides(ctx, match, "The other person passed on this match. No hard feelings — the search continues.")
	}

	var next store.MatchStatus
	switch {
	case (match.Status == store.MatchPending || match.Status == store.MatchQualified) && isUserA:
		next = store.MatchAAccepted
	case (match.Status == store.MatchPending || match.Status == store.MatchQualified) && !isUserA:
		next = store.MatchBAccepted
	case match.Status == store.MatchAAccepted && !isUserA:
		next = store.MatchConnected
	case match.Status == store.MatchBAccepted && isUserA:
		next = store.MatchConnected
	default:
		return nil // already acted upon; ignore duplicate accept
	}

	if _, err := r.store.UpdateMatch(ctx, &store.UpdateMatch{ID: match.ID, Status: &next}); err != nil {
		return errors.Wrap(err, "failed to advance consent state")
	}

	if next == store.MatchConnected {
		return r.notifyConnected(ctx, match)
	}
	return nil
}

func (r *Runner) notifyConnected(ctx context.Context, match *store.Match) error {
	userA, err := r.store.GetUser(ctx, &store.FindUser{ID: &match.UserAID})
	if err != nil {
		return errors.Wrap(err, "failed to load user_a for connected notice")
	}
	userB, err := r.store.GetUser(ctx, &store.FindUser{ID: match.UserBID})
	if err != nil {
		return errors.Wrap(err, "failed to load user_b for connected notice")
	}

	if err := r.sendDisplayProfile(ctx, userA, userB); err != nil {
		return err
	}
	return r.sendDisplayProfile(ctx, userB, userA)
}

func (r *Runner) sendDisplayProfile(ctx context.Context, to, other *store.User) error {
	chat, err := r.store.GetOrCreateChat(ctx, to.ID)
	if err != nil {
		return errors.Wrap(err, "failed to load chat for connected notice")
	}
	text := fmt.Sprintf("You're connected! Here's who you're matched with:\n\n%s\n\n%s", other.MatchingSummary, other.PracticalContext)
	if _, err := r.transport.Send(ctx, transport.OutboundMessage{ChatID: chat.TelegramID, Text: text}); err != nil {
		return errors.Wrap(err, "failed to send connected notice")
	}
	return nil
}

func (r *Runner) notifyBothSides(ctx context.Context, match *store.Match, text string) error {
	for _, userID := range []int64{match.UserAID, *match.UserBID} {
		chat, err := r.store.GetOrCreateChat(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "failed to load chat for notice")
		}
		if _, err := r.transport.Send(ctx, transport.OutboundMessage{ChatID: chat.TelegramID, Text: text}); err != nil {
			slog.Warn("introrunner: failed to notify side of rejection", "error", err)
		}
	}
	return nil
}

func matchingParty(u *store.User) langagent.MatchingParty {
	return langagent.MatchingParty{
		MatchingSummary:     u.MatchingSummary,
		PracticalContext:    u.PracticalContext,
		PrivateObservations: u.PrivateObservations,
	}
}

func displayProfile(u *store.User) langagent.DisplayProfile {
	return langagent.DisplayProfile{
		MatchingSummary:  u.MatchingSummary,
		PracticalContext: u.PracticalContext,
	}
}

// restartingMatchingEngine adapts *matching.Engine to Restarter: each
// restart runs the engine loop once more in its own goroutine until it
// creates (or fails to create) the next match (§4.G step 5).
type restartingMatchingEngine struct {
	engine *matching.Engine
}

func NewRestarter(engine *matching.Engine) Restarter {
	return &restartingMatchingEngine{engine: engine}
}

func (m *restartingMatchingEngine) Restart(ctx context.Context) {
	go func() {
		if err := m.engine.Run(ctx); err != nil {
			slog.Error("introrunner: failed to restart matching engine", "error", err)
		}
	}()
}
