// Package matching implements the Matching Engine (§4.G): a long-lived,
// round-robin loop that pairs at most one candidate per iteration and
// hands the pair off to the Generation Scheduler for rationale and
// intro generation.
package matching

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/scheduler"
	"github.com/coworklink/coworklink/store"
)

// Engine drives the matching loop.
type Engine struct {
	store     *store.Store
	scheduler *scheduler.Scheduler

	threshold   float64
	maxCandidates int
	retryWait   time.Duration

	round int32
	nudge chan struct{}
}

func New(st *store.Store, sch *scheduler.Scheduler, threshold float64, maxCandidates int, retryWait time.Duration) *Engine {
	return &Engine{
		store:         st,
		scheduler:     sch,
		threshold:     threshold,
		maxCandidates: maxCandidates,
		retryWait:     retryWait,
		round:         1,
		nudge:         make(chan struct{}, 1),
	}
}

// Nudge interrupts a loop parked in the §4.G retry sleep, so an
// externally-observed change (e.g. a user activating) is picked up
// immediately instead of waiting out retryWait. Safe to call from any
// goroutine, any number of times; coalesces to a single pending wake-up.
func (e *Engine) Nudge() {
	select {
	case e.nudge <- struct{}{}:
	default:
	}
}

// Run drives the loop until it creates a match (step 5: the loop then
// exits and is restarted later) or ctx is cancelled (§4.G, §5: "the
// matching task" is cancellable; in-flight work is not preempted).
func (e *Engine) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		done, err := e.runIteration(ctx)
		if err != nil {
			slog.Error("matching: iteration failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if done {
			return nil
		}
	}
}

// runIteration implements steps 1-5 of §4.G. done reports whether a
// match was created and the loop should exit (to be restarted by the
// Match Rationale Runner once that generation completes).
func (e *Engine) runIteration(ctx context.Context) (done bool, err error) {
	userA, err := e.store.NextUserForMatching(ctx, e.round)
	if err != nil {
		return false, errors.Wrap(err, "failed to find next user for matching")
	}

	if userA == nil {
		maxRound, err := e.store.MaxRoundWithParticipants(ctx)
		if err != nil {
			return false, errors.Wrap(err, "failed to read max round with participants")
		}
		if maxRound == e.round {
			select {
			case <-ctx.Done():
				return true, nil
			case <-e.nudge:
			case <-time.After(e.retryWait):
			}
			return false, nil
		}
		e.round++
		return false, nil
	}

	exclusions, err := e.store.MatchExclusionSet(ctx, userA.ID)
	if err != nil {
		return false, errors.Wrap(err, "failed to build match exclusion set")
	}

	candidates, err := e.store.SimilarOppositeRoleUsers(ctx, userA, e.threshold, e.maxCandidates, exclusions)
	if err != nil {
		return false, errors.Wrap(err, "failed to find similar opposite-role users")
	}

	if len(candidates) == 0 {
		_, err := e.store.CreateMatch(ctx, &store.Match{
			UserAID:                userA.ID,
			Status:                 store.MatchUnmatched,
			MatchingRound:          e.round,
			LatestProfileUpdatedAt: userA.ProfileUpdatedAt,
		})
		if err != nil {
			return false, errors.Wrap(err, "failed to persist participation record")
		}
		return false, nil
	}

	top := candidates[0]
	latest := userA.ProfileUpdatedAt
	if top.User.ProfileUpdatedAt.After(latest) {
		latest = top.User.ProfileUpdatedAt
	}

	similarity := top.Similarity
	match, err := e.store.CreateMatch(ctx, &store.Match{
		UserAID:                userA.ID,
		UserBID:                &top.User.ID,
		SimilarityScore:        &similarity,
		Status:                 store.MatchPending,
		MatchingRound:          e.round,
		LatestProfileUpdatedAt: latest,
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to create match")
	}

	if _, err := e.scheduler.Enqueue(ctx, store.TaskRef{MatchID: &match.ID}); err != nil {
		return false, errors.Wrap(err, "failed to enqueue match generation")
	}

	return true, nil
}
