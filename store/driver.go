package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Driver is implemented by a concrete storage backend (store/postgres).
// Store delegates every operation to a Driver; it never implements query
// logic itself (§9 design note: runtime components hold references but
// never cache mutable copies across commits).
type Driver interface {
	Close() error

	// Users.
	GetOrCreateUser(ctx context.Context, telegramID int64) (*User, error)
	GetUser(ctx context.Context, find *FindUser) (*User, error)
	ListUsers(ctx context.Context, find *FindUser) ([]*User, error)
	UpdateUser(ctx context.Context, update *UpdateUser) (*User, error)

	// next_user_for_matching(round): oldest profile_updated_at active user
	// with role + embedding, not blocked by a pending handshake, not
	// already user_a in the current round (§4.A).
	NextUserForMatching(ctx context.Context, round int32) (*User, error)

	// max_round_with_participants(): the highest matching_round for which
	// at least one Match row (pair or participation) already exists.
	MaxRoundWithParticipants(ctx context.Context) (int32, error)

	// similar_opposite_role_users(user, threshold, k, exclusions).
	SimilarOppositeRoleUsers(ctx context.Context, user *User, threshold float64, k int, exclusions []int64) ([]CandidateUser, error)

	// match_exclusion_set(user): counterpart ids user must not be
	// re-paired with (§4.A, §4.G re-matching rules).
	MatchExclusionSet(ctx context.Context, userID int64) ([]int64, error)

	// Chats.
	GetOrCreateChat(ctx context.Context, userID int64) (*Chat, error)
	GetChat(ctx context.Context, find *FindChat) (*Chat, error)
	UpdateChat(ctx context.Context, update *UpdateChat) (*Chat, error)

	// Generations.
	CreateGeneration(ctx context.Context, ref TaskRef, scheduledFor time.Time) (*Generation, error)
	GetGeneration(ctx context.Context, id uuid.UUID) (*Generation, error)
	UpdateGeneration(ctx context.Context, update *UpdateGeneration) (*Generation, error)

	// next_pending_generation(now): least scheduled_for <= now, pending,
	// ties broken by id (§4.A).
	NextPendingGeneration(ctx context.Context, now time.Time) (*Generation, error)

	// min_pending_scheduled_for(): earliest scheduled_for among pending
	// generations (past-due ones included), or nil if none pending.
	MinPendingScheduledFor(ctx context.Context) (*time.Time, error)

	// max_scheduled_for(): latest scheduled_for across all generations,
	// used so enqueue order is preserved.
	MaxScheduledFor(ctx context.Context) (*time.Time, error)

	// last_cost_generation(): most recently started generation with a
	// non-null cost, for budget pacing.
	LastCostGeneration(ctx context.Context) (*Generation, error)

	// PendingGenerationForChat returns the chat's latest generation if it
	// is still pending (not started), for coalescer reuse (§4.F.2).
	PendingGenerationForChat(ctx context.Context, chatID int64) (*Generation, error)

	// Matches.
	CreateMatch(ctx context.Context, match *Match) (*Match, error)
	GetMatch(ctx context.Context, id uuid.UUID) (*Match, error)
	UpdateMatch(ctx context.Context, update *UpdateMatch) (*Match, error)
	ListMatches(ctx context.Context, find *FindMatch) ([]*Match, error)

	// Announcements & user groups.
	CreateAnnouncement(ctx context.Context, a *Announcement) (*Announcement, error)
	GetAnnouncement(ctx context.Context, find *FindAnnouncement) (*Announcement, error)
	UpdateAnnouncement(ctx context.Context, update *UpdateAnnouncement) (*Announcement, error)
	GetUserGroup(ctx context.Context, find *FindUserGroup) (*UserGroup, error)
	ListUserGroups(ctx context.Context) ([]*UserGroup, error)
	ListUsersForGroup(ctx context.Context, groupID int64) ([]*User, error)
	ReplaceUserGroupMembers(ctx context.Context, groupID int64, userIDs []int64) error
}
