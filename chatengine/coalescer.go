// Package chatengine implements the Message Coalescer and the Chat
// Generation Runner (§4.F): buffering inbound text onto a pending
// generation, and executing the Language Agent call the scheduler
// dispatches for a chat.
package chatengine

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/scheduler"
	"github.com/coworklink/coworklink/store"
	"github.com/coworklink/coworklink/transport"
)

// Coalescer intercepts inbound user text, buffers it onto the chat's
// pending prompt, and ensures exactly one generation is queued per
// burst of messages (§4.F steps 1-3).
type Coalescer struct {
	store     *store.Store
	scheduler *scheduler.Scheduler
	transport transport.ChatTransport
}

func NewCoalescer(st *store.Store, sch *scheduler.Scheduler, tr transport.ChatTransport) *Coalescer {
	return &Coalescer{store: st, scheduler: sch, transport: tr}
}

// HandleInboundText runs steps 1-3 of §4.F for one inbound text message.
func (c *Coalescer) HandleInboundText(ctx context.Context, chat *store.Chat, incoming string) error {
	prompt := incoming
	if chat.UserPrompt != nil && *chat.UserPrompt != "" {
		prompt = *chat.UserPrompt + "\n\n" + incoming
	}

	updated, err := c.store.UpdateChat(ctx, &store.UpdateChat{
		ID:         chat.ID,
		UserPrompt: &prompt,
	})
	if err != nil {
		return errors.Wrap(err, "failed to buffer user prompt")
	}
	*chat = *updated

	pending, err := c.store.PendingGenerationForChat(ctx, chat.ID)
	if err != nil {
		return errors.Wrap(err, "failed to look up pending generation")
	}

	var gen *store.Generation
	if pending != nil && pending.Status == store.GenerationPending {
		gen = pending
	} else {
		gen, err = c.scheduler.Enqueue(ctx, store.TaskRef{ChatID: &chat.ID})
		if err != nil {
			return errors.Wrap(err, "failed to enqueue chat generation")
		}
	}

	eta := formatETA(time.Until(gen.ScheduledFor))
	statusID, err := c.transport.Send(ctx, transport.OutboundMessage{
		ChatID: chat.TelegramID,
		Text:   fmt.Sprintf("Got it — I'll get back to you %s.", eta),
	})
	if err != nil {
		return errors.Wrap(err, "failed to send status message")
	}

	if _, err := c.store.UpdateChat(ctx, &store.UpdateChat{
		ID:              chat.ID,
		StatusMessageID: &statusID,
	}); err != nil {
		return errors.Wrap(err, "failed to persist status message id")
	}

	return nil
}

// formatETA renders a wait estimate as "soon", "shortly", or "~H h M min"
// (§4.F step 3).
func formatETA(d time.Duration) string {
	switch {
	case d <= time.Minute:
		return "soon"
	case d <= 10*time.Minute:
		return "shortly"
	default:
		d = d.Round(time.Minute)
		hours := d / time.Hour
		minutes := (d % time.Hour) / time.Minute
		if hours > 0 {
			return fmt.Sprintf("in ~%dh %dmin", hours, minutes)
		}
		return fmt.Sprintf("in ~%dmin", minutes)
	}
}
