package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coworklink/coworklink/internal/profile"
)

// Store provides database access to users, chats, generations, matches,
// announcements and user groups. It is a thin delegator over a Driver; it
// holds no mutable state of its own so that every read observes the
// committed row (§9 design note: no object graph is cached).
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a Store bound to the given driver.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{driver: driver, profile: profile}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) GetOrCreateUser(ctx context.Context, telegramID int64) (*User, error) {
	return s.driver.GetOrCreateUser(ctx, telegramID)
}

func (s *Store) GetUser(ctx context.Context, find *FindUser) (*User, error) {
	return s.driver.GetUser(ctx, find)
}

func (s *Store) ListUsers(ctx context.Context, find *FindUser) ([]*User, error) {
	return s.driver.ListUsers(ctx, find)
}

func (s *Store) UpdateUser(ctx context.Context, update *UpdateUser) (*User, error) {
	return s.driver.UpdateUser(ctx, update)
}

func (s *Store) NextUserForMatching(ctx context.Context, round int32) (*User, error) {
	return s.driver.NextUserForMatching(ctx, round)
}

func (s *Store) MaxRoundWithParticipants(ctx context.Context) (int32, error) {
	return s.driver.MaxRoundWithParticipants(ctx)
}

func (s *Store) SimilarOppositeRoleUsers(ctx context.Context, user *User, threshold float64, k int, exclusions []int64) ([]CandidateUser, error) {
	return s.driver.SimilarOppositeRoleUsers(ctx, user, threshold, k, exclusions)
}

func (s *Store) MatchExclusionSet(ctx context.Context, userID int64) ([]int64, error) {
	return s.driver.MatchExclusionSet(ctx, userID)
}

func (s *Store) GetOrCreateChat(ctx context.Context, userID int64) (*Chat, error) {
	return s.driver.GetOrCreateChat(ctx, userID)
}

func (s *Store) GetChat(ctx context.Context, find *FindChat) (*Chat, error) {
	return s.driver.GetChat(ctx, find)
}

func (s *Store) UpdateChat(ctx context.Context, update *UpdateChat) (*Chat, error) {
	return s.driver.UpdateChat(ctx, update)
}

func (s *Store) CreateGeneration(ctx context.Context, ref TaskRef, scheduledFor time.Time) (*Generation, error) {
	return s.driver.CreateGeneration(ctx, ref, scheduledFor)
}

func (s *Store) GetGeneration(ctx context.Context, id uuid.UUID) (*Generation, error) {
	return s.driver.GetGeneration(ctx, id)
}

func (s *Store) UpdateGeneration(ctx context.Context, update *UpdateGeneration) (*Generation, error) {
	return s.driver.UpdateGeneration(ctx, update)
}

func (s *Store) NextPendingGeneration(ctx context.Context, now time.Time) (*Generation, error) {
	return s.driver.NextPendingGeneration(ctx, now)
}

func (s *Store) MinPendingScheduledFor(ctx context.Context) (*time.Time, error) {
	return s.driver.MinPendingScheduledFor(ctx)
}

func (s *Store) MaxScheduledFor(ctx context.Context) (*time.Time, error) {
	return s.driver.MaxScheduledFor(ctx)
}

func (s *Store) LastCostGeneration(ctx context.Context) (*Generation, error) {
	return s.driver.LastCostGeneration(ctx)
}

func (s *Store) PendingGenerationForChat(ctx context.Context, chatID int64) (*Generation, error) {
	return s.driver.PendingGenerationForChat(ctx, chatID)
}

func (s *Store) CreateMatch(ctx context.Context, match *Match) (*Match, error) {
	return s.driver.CreateMatch(ctx, match)
}

func (s *Store) GetMatch(ctx context.Context, id uuid.UUID) (*Match, error) {
	return s.driver.GetMatch(ctx, id)
}

func (s *Store) UpdateMatch(ctx context.Context, update *UpdateMatch) (*Match, error) {
	return s.driver.UpdateMatch(ctx, update)
}

func (s *Store) ListMatches(ctx context.Context, find *FindMatch) ([]*Match, error) {
	return s.driver.ListMatches(ctx, find)
}

func (s *Store) CreateAnnouncement(ctx context.Context, a *Announcement) (*Announcement, error) {
	return s.driver.CreateAnnouncement(ctx, a)
}

func (s *Store) GetAnnouncement(ctx context.Context, find *FindAnnouncement) (*Announcement, error) {
	return s.driver.GetAnnouncement(ctx, find)
}

func (s *Store) UpdateAnnouncement(ctx context.Context, update *UpdateAnnouncement) (*Announcement, error) {
	return s.driver.UpdateAnnouncement(ctx, update)
}

func (s *Store) GetUserGroup(ctx context.Context, find *FindUserGroup) (*UserGroup, error) {
	return s.driver.GetUserGroup(ctx, find)
}

func (s *Store) ListUserGroups(ctx context.Context) ([]*UserGroup, error) {
	return s.driver.ListUserGroups(ctx)
}

func (s *Store) ListUsersForGroup(ctx context.Context, groupID int64) ([]*User, error) {
	return s.driver.ListUsersForGroup(ctx, groupID)
}

func (s *Store) ReplaceUserGroupMembers(ctx context.Context, groupID int64, userIDs []int64) error {
	return s.driver.ReplaceUserGroupMembers(ctx, groupID, userIDs)
}
