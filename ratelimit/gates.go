// Package ratelimit implements the three single-process outbound-send
// throttlers described in §4.B: a global send rate, a per-chat minimum
// interval, and an admin-channel interval. Every outbound chat-transport
// call funnels through Gates before it reaches the wire.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

const (
	globalMinInterval = 1.0 / 30.0 // 30 messages/sec, §4.B
	perChatInterval   = 1.0        // seconds between sends to the same chat
	adminInterval     = 3.0        // seconds between admin-channel posts
)

// Gates bundles the three rate limiters and enforces a deterministic
// acquire ordering (chat before global, admin before global) so that
// gate waits never compound in a data-dependent order.
type Gates struct {
	global *rate.Limiter

	mu       sync.Mutex
	perChat  map[int64]*rate.Limiter
	admin    *rate.Limiter
}

// New constructs the rate gates. Each limiter uses burst=1: it behaves as
// a "next-available-instant" scheduler rather than allowing bursts, for
// single-process interval-gate semantics.
func New() *Gates {
	return &Gates{
		global:  rate.NewLimiter(rate.Limit(1.0/globalMinInterval), 1),
		perChat: make(map[int64]*rate.Limiter),
		admin:   rate.NewLimiter(rate.Limit(1.0/adminInterval), 1),
	}
}

func (g *Gates) chatLimiter(chatID int64) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.perChat[chatID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(1.0/perChatInterval), 1)
		g.perChat[chatID] = l
	}
	return l
}

// AcquireForChat blocks until both the per-chat gate and the global gate
// are open, acquiring them in that order (§4.B: "per-chat -> global").
func (g *Gates) AcquireForChat(ctx context.Context, chatID int64) error {
	if err := g.chatLimiter(chatID).Wait(ctx); err != nil {
		return err
	}
	return g.global.Wait(ctx)
}

// AcquireForAdmin blocks until both the admin gate and the global gate are
// open, acquiring them in that order (§4.B: "admin -> global").
func (g *Gates) AcquireForAdmin(ctx context.Context) error {
	if err := g.admin.Wait(ctx); err != nil {
		return err
	}
	return g.global.Wait(ctx)
}
