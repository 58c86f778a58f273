// Package announce sends a broadcast Announcement to the dynamically
// filtered set of users described by its UserGroup's CEL membership
// expression (SPEC_FULL §3 Announcement/UserGroup supplement).
package announce

import (
	"context"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/store"
	"github.com/coworklink/coworklink/transport"
)

// userGroupEnv declares the fields a UserGroup filter expression may
// reference, mirroring the columns on store.User that matter for
// targeting (state, declared roles).
func userGroupEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("state", cel.StringType),
		cel.Variable("is_seeker", cel.BoolType),
		cel.Variable("is_provider", cel.BoolType),
	)
}

// CompileFilter validates and compiles a UserGroup's filter_expr. Its only
// caller is Sender.Send, so an invalid expression is reported when an
// announcement to the group is sent, not when the group is created.
func CompileFilter(expr string) (cel.Program, error) {
	env, err := userGroupEnv()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build CEL environment")
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "invalid user group filter: %s", expr)
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build CEL program")
	}
	return program, nil
}

// Matches evaluates a compiled filter against one user.
func Matches(program cel.Program, u *store.User) (bool, error) {
	out, _, err := program.Eval(map[string]any{
		"state":       string(u.State),
		"is_seeker":   u.IsSeeker != nil && *u.IsSeeker,
		"is_provider": u.IsProvider != nil && *u.IsProvider,
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to evaluate user group filter")
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("user group filter must evaluate to a boolean")
	}
	return matched, nil
}

// Sender broadcasts an Announcement to its UserGroup's current members.
type Sender struct {
	store     *store.Store
	transport transport.ChatTransport
}

func NewSender(st *store.Store, tr transport.ChatTransport) *Sender {
	return &Sender{store: st, transport: tr}
}

// Send evaluates the group's filter against every user, materializes
// membership, and delivers the announcement body through the per-chat
// rate gate already enforced by transport.ChatTransport.Send. No per-member
// delivery record is kept: calling Send again for the same announcement
// sends the body to every matching user again.
func (s *Sender) Send(ctx context.Context, announcementID int64) error {
	ann, err := s.store.GetAnnouncement(ctx, &store.FindAnnouncement{ID: &announcementID})
	if err != nil {
		return errors.Wrap(err, "failed to load announcement")
	}

	group, err := s.store.GetUserGroup(ctx, &store.FindUserGroup{ID: &ann.UserGroupID})
	if err != nil {
		return errors.Wrap(err, "failed to load user group")
	}

	program, err := CompileFilter(group.FilterExpr)
	if err != nil {
		return err
	}

	users, err := s.store.ListUsers(ctx, &store.FindUser{})
	if err != nil {
		return errors.Wrap(err, "failed to list users")
	}

	sending := store.AnnouncementSending
	if _, err := s.store.UpdateAnnouncement(ctx, &store.UpdateAnnouncement{ID: ann.ID, Status: &sending}); err != nil {
		return errors.Wrap(err, "failed to mark announcement sending")
	}

	var memberIDs []int64
	var sendErr error
	for _, u := range users {
		matched, err := Matches(program, u)
		if err != nil {
			sendErr = err
			continue
		}
		if !matched {
			continue
		}
		memberIDs = append(memberIDs, u.ID)

		chat, err := s.store.GetOrCreateChat(ctx, u.ID)
		if err != nil {
			slog.Warn("announce: failed to load chat for group member", "user_id", u.ID, "error", err)
			continue
		}
		if _, err := s.transport.Send(ctx, transport.OutboundMessage{ChatID: chat.TelegramID, Text: ann.Body}); err != nil {
			slog.Warn("announce: failed to send to group member", "user_id", u.ID, "error", err)
		}
	}

	if err := s.store.ReplaceUserGroupMembers(ctx, group.ID, memberIDs); err != nil {
		return errors.Wrap(err, "failed to persist user group membership")
	}

	finalStatus := store.AnnouncementSent
	if sendErr != nil {
		finalStatus = store.AnnouncementFailed
	}
	if _, err := s.store.UpdateAnnouncement(ctx, &store.UpdateAnnouncement{ID: ann.ID, Status: &finalStatus}); err != nil {
		return errors.Wrap(err, "failed to mark announcement outcome")
	}
	return sendErr
}
