// Package scheduler implements the central serialized queue for every
// language-model call (§4.E): budget-based spacing between generations,
// a race-safe nudge wake-up, and a per-item pending/started/completed/
// failed lifecycle.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/store"
)

const secondsPerWeek = 7 * 24 * 60 * 60

// Runner dispatches a started generation to the Chat Generation Runner
// (§4.F) or the Match Rationale & Intro Runner (§4.H), chosen by which
// of ChatID/MatchID the generation carries.
type Runner interface {
	RunChatGeneration(ctx context.Context, gen *store.Generation) error
	RunMatchGeneration(ctx context.Context, gen *store.Generation) error
}

// Scheduler owns the nudge flag and the generation loop.
type Scheduler struct {
	store  *store.Store
	runner Runner
	budget float64 // weekly budget in USD

	nudge chan struct{}
}

// New builds a Scheduler. weeklyBudgetUSD must be positive (enforced at
// the process level by profile.Profile.Validate). runner may be nil at
// construction time and supplied later via SetRunner, to break the
// construction cycle between the scheduler and the runners that depend
// on it (the Matching Engine and Match Rationale Runner both need a
// *Scheduler before their own Runner half can be built).
func New(st *store.Store, runner Runner, weeklyBudgetUSD float64) *Scheduler {
	return &Scheduler{
		store:  st,
		runner: runner,
		budget: weeklyBudgetUSD,
		nudge:  make(chan struct{}, 1),
	}
}

// SetRunner binds the dispatch target. Must be called before Run if New
// was given a nil runner.
func (s *Scheduler) SetRunner(runner Runner) {
	s.runner = runner
}

// Nudge wakes the loop. Safe to call from any goroutine, any number of
// times; the flag coalesces to a single pending wake-up (§4.E: "set
// before check").
func (s *Scheduler) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// Enqueue computes scheduled_for from the current budget pacing,
// persists a pending generation, and nudges the loop (§4.E).
func (s *Scheduler) Enqueue(ctx context.Context, task store.TaskRef) (*store.Generation, error) {
	interval, err := s.budgetInterval(ctx)
	if err != nil {
		return nil, err
	}

	maxScheduled, err := s.store.MaxScheduledFor(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read max scheduled_for")
	}

	now := time.Now()
	base := now
	if maxScheduled != nil && maxScheduled.After(base) {
		base = *maxScheduled
	}
	scheduledFor := base.Add(interval)

	gen, err := s.store.CreateGeneration(ctx, task, scheduledFor)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create generation")
	}

	s.Nudge()
	return gen, nil
}

// budgetInterval implements budget_interval() (§4.E): the spacing
// derived from the most recent costed generation and the weekly budget.
// Zero if no prior cost exists.
func (s *Scheduler) budgetInterval(ctx context.Context) (time.Duration, error) {
	last, err := s.store.LastCostGeneration(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read last cost generation")
	}
	if last == nil || last.CostUSD == nil {
		return 0, nil
	}
	seconds := *last.CostUSD * secondsPerWeek / s.budget
	return time.Duration(seconds * float64(time.Second)), nil
}

// Run drives the loop until ctx is cancelled. It never returns a non-nil
// error for a runner failure — those are recorded on the generation row
// and logged; Run only returns when ctx is done (§4.E, §5 propagation
// policy: "the scheduler loop converts any otherwise-uncaught exception
// into a 1-second pause, never a crash").
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		worked, err := s.runOnce(ctx)
		if err != nil {
			slog.Error("scheduler: iteration failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if worked {
			continue
		}

		if err := s.waitForNext(ctx); err != nil {
			return nil
		}
	}
}

// runOnce pops and dispatches exactly one due generation, if any.
func (s *Scheduler) runOnce(ctx context.Context) (worked bool, err error) {
	gen, err := s.store.NextPendingGeneration(ctx, time.Now())
	if err != nil {
		return false, errors.Wrap(err, "failed to read next pending generation")
	}
	if gen == nil {
		return false, nil
	}

	startedAt := time.Now()
	started := store.GenerationStarted
	if _, err := s.store.UpdateGeneration(ctx, &store.UpdateGeneration{
		ID:        gen.ID,
		Status:    &started,
		StartedAt: &startedAt,
	}); err != nil {
		return false, errors.Wrap(err, "failed to mark generation started")
	}
	gen.Status = store.GenerationStarted
	gen.StartedAt = &startedAt

	runErr := s.dispatch(ctx, gen)

	finalStatus := store.GenerationCompleted
	if runErr != nil {
		finalStatus = store.GenerationFailed
		slog.Error("scheduler: generation failed", "generation_id", gen.ID, "error", runErr)
	}
	if _, err := s.store.UpdateGeneration(ctx, &store.UpdateGeneration{
		ID:     gen.ID,
		Status: &finalStatus,
	}); err != nil {
		return true, errors.Wrap(err, "failed to record generation outcome")
	}

	return true, nil
}

func (s *Scheduler) dispatch(ctx context.Context, gen *store.Generation) error {
	switch {
	case gen.ChatID != nil:
		return s.runner.RunChatGeneration(ctx, gen)
	case gen.MatchID != nil:
		return s.runner.RunMatchGeneration(ctx, gen)
	default:
		return errors.New("generation has neither chat_id nor match_id")
	}
}

// waitForNext clears the nudge flag, then blocks until either the flag
// is set again or the earliest pending scheduled_for elapses, whichever
// comes first (§4.E). Returns a non-nil error only when ctx is done.
func (s *Scheduler) waitForNext(ctx context.Context) error {
	select {
	case <-s.nudge:
	default:
	}

	next, err := s.store.MinPendingScheduledFor(ctx)
	if err != nil {
		slog.Error("scheduler: failed to read min pending scheduled_for", "error", err)
		next = nil
	}

	if next == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.nudge:
			return nil
		}
	}

	wait := time.Until(*next)
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.nudge:
		return nil
	case <-timer.C:
		return nil
	}
}
