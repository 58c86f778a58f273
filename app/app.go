// Package app wires every long-lived piece of the process together: the
// store, the chat transport, the language agent, the Generation
// Scheduler, the Matching Engine, and the HTTP surface, then drives them
// as a group of cancellable goroutines (SPEC_FULL ambient stack: process
// bootstrap).
package app

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/coworklink/coworklink/announce"
	"github.com/coworklink/coworklink/callback"
	"github.com/coworklink/coworklink/chatengine"
	"github.com/coworklink/coworklink/httpapi"
	"github.com/coworklink/coworklink/internal/profile"
	"github.com/coworklink/coworklink/introrunner"
	"github.com/coworklink/coworklink/langagent"
	"github.com/coworklink/coworklink/matching"
	"github.com/coworklink/coworklink/metrics"
	"github.com/coworklink/coworklink/ratelimit"
	"github.com/coworklink/coworklink/scheduler"
	"github.com/coworklink/coworklink/store"
	"github.com/coworklink/coworklink/store/postgres"
	"github.com/coworklink/coworklink/transport/telegram"
)

// combinedRunner adapts the Chat Generation Runner and the Match
// Rationale & Intro Runner onto the single scheduler.Runner interface the
// Generation Scheduler dispatches to (§4.E/F/H).
type combinedRunner struct {
	chat  *chatengine.Runner
	match *introrunner.Runner
}

func (c *combinedRunner) RunChatGeneration(ctx context.Context, gen *store.Generation) error {
	return c.chat.RunChatGeneration(ctx, gen)
}

func (c *combinedRunner) RunMatchGeneration(ctx context.Context, gen *store.Generation) error {
	return c.match.RunMatchGeneration(ctx, gen)
}

// App holds every wired component for Run to drive.
type App struct {
	store     *store.Store
	scheduler *scheduler.Scheduler
	matching  *matching.Engine
	http      *httpapi.Server
	addr      string
}

// New builds the App from a validated Profile (§6 configuration surface).
func New(p *profile.Profile) (*App, error) {
	driver, err := postgres.NewDB(p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	st := store.New(driver, p)

	agent, err := langagent.New(p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build language agent")
	}

	gates := ratelimit.New()
	tr, err := telegram.New(p.TelegramBotToken, p.AdminGroupID, gates)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build telegram transport")
	}

	packer := callback.New(p.CallbackSecret)

	metrics.Register()

	sch := scheduler.New(st, nil, p.WeeklyBudgetUSD)

	matchingEngine := matching.New(st, sch, p.SimilarityThreshold, p.MaxCandidates, p.MatchingRetryWait)
	restarter := introrunner.NewRestarter(matchingEngine)

	chatRunner := chatengine.NewRunner(st, tr, agent, packer)
	matchRunner := introrunner.NewRunner(st, tr, agent, packer, restarter)

	sch.SetRunner(&combinedRunner{chat: chatRunner, match: matchRunner})

	coalescer := chatengine.NewCoalescer(st, sch, tr)
	announcer := announce.NewSender(st, tr)

	httpServer := httpapi.New(st, tr, packer, coalescer, matchRunner, announcer, matchingEngine, p.AdminJWTSecret)

	addr := p.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", p.Port)
	}

	return &App{
		store:     st,
		scheduler: sch,
		matching:  matchingEngine,
		http:      httpServer,
		addr:      addr,
	}, nil
}

// Run drives the scheduler loop, the matching loop, and the HTTP server
// concurrently until ctx is cancelled or one of them returns an error
// (§5: each subsystem loop is independently cancellable; a generation or
// matching iteration in flight is allowed to finish, never preempted).
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.scheduler.Run(ctx)
	})
	g.Go(func() error {
		return a.matching.Run(ctx)
	})
	g.Go(func() error {
		return a.http.Start(ctx, a.addr)
	})

	return g.Wait()
}

// Close releases the store's underlying connection.
func (a *App) Close() error {
	return a.store.Close()
}
