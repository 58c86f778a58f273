package matching

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coworklink/coworklink/store"
)

// fakeDriver is a minimal, scripted store.Driver exercising just the
// calls the Matching Engine makes in one iteration.
type fakeDriver struct {
	nextUser          *store.User
	maxRoundWithParts int32
	exclusions        []int64
	candidates        []store.CandidateUser

	createdMatches     []*store.Match
	createdGenerations []store.TaskRef
}

func (f *fakeDriver) Close() error { return nil }

func (f *fakeDriver) NextUserForMatching(ctx context.Context, round int32) (*store.User, error) {
	return f.nextUser, nil
}

func (f *fakeDriver) MaxRoundWithParticipants(ctx context.Context) (int32, error) {
	return f.maxRoundWithParts, nil
}

func (f *fakeDriver) MatchExclusionSet(ctx context.Context, userID int64) ([]int64, error) {
	return f.exclusions, nil
}

func (f *fakeDriver) SimilarOppositeRoleUsers(ctx context.Context, user *store.User, threshold float64, k int, exclusions []int64) ([]store.CandidateUser, error) {
	return f.candidates, nil
}

func (f *fakeDriver) CreateMatch(ctx context.Context, match *store.Match) (*store.Match, error) {
	match.ID = uuid.New()
	f.createdMatches = append(f.createdMatches, match)
	return match, nil
}

func (f *fakeDriver) CreateGeneration(ctx context.Context, ref store.TaskRef, scheduledFor time.Time) (*store.Generation, error) {
	f.createdGenerations = append(f.createdGenerations, ref)
	return &store.Generation{ID: uuid.New(), MatchID: ref.MatchID, ScheduledFor: scheduledFor, Status: store.GenerationPending}, nil
}

func (f *fakeDriver) MaxScheduledFor(ctx context.Context) (*time.Time, error) { return nil, nil }
func (f *fakeDriver) LastCostGeneration(ctx context.Context) (*store.Generation, error) {
	return nil, nil
}

// Unused by the matching engine tests.
func (f *fakeDriver) GetOrCreateUser(ctx context.Context, telegramID int64) (*store.User, error) {
	panic("not used")
}
func (f *fakeDriver) GetUser(ctx context.Context, find *store.FindUser) (*store.User, error) {
	panic("not used")
}
func (f *fakeDriver) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	panic("not used")
}
func (f *fakeDriver) UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error) {
	panic("not used")
}
func (f *fakeDriver) GetOrCreateChat(ctx context.Context, userID int64) (*store.Chat, error) {
	panic("not used")
}
func (f *fakeDriver) GetChat(ctx context.Context, find *store.FindChat) (*store.Chat, error) {
	panic("not used")
}
func (f *fakeDriver) UpdateChat(ctx context.Context, update *store.UpdateChat) (*store.Chat, error) {
	panic("not used")
}
func (f *fakeDriver) GetGeneration(ctx context.Context, id uuid.UUID) (*store.Generation, error) {
	panic("not used")
}
func (f *fakeDriver) UpdateGeneration(ctx context.Context, update *store.UpdateGeneration) (*store.Generation, error) {
	panic("not used")
}
func (f *fakeDriver) NextPendingGeneration(ctx context.Context, now time.Time) (*store.Generation, error) {
	panic("not used")
}
func (f *fakeDriver) MinPendingScheduledFor(ctx context.Context) (*time.Time, error) {
	panic("not used")
}
func (f *fakeDriver) PendingGenerationForChat(ctx context.Context, chatID int64) (*store.Generation, error) {
	return nil, nil
}
func (f *fakeDriver) GetMatch(ctx context.Context, id uuid.UUID) (*store.Match, error) {
	panic("not used")
}
func (f *fakeDriver) UpdateMatch(ctx context.Context, update *store.UpdateMatch) (*store.Match, error) {
	panic("not used")
}
func (f *fakeDriver) ListMatches(ctx context.Context, find *store.FindMatch) ([]*store.Match, error) {
	panic("not used")
}
func (f *fakeDriver) CreateAnnouncement(ctx context.Context, a *store.Announcement) (*store.Announcement, error) {
	panic("not used")
}
func (f *fakeDriver) GetAnnouncement(ctx context.Context, find *store.FindAnnouncement) (*store.Announcement, error) {
	panic("not used")
}
func (f *fakeDriver) UpdateAnnouncement(ctx context.Context, update *store.UpdateAnnouncement) (*store.Announcement, error) {
	panic("not used")
}
func (f *fakeDriver) GetUserGroup(ctx context.Context, find *store.FindUserGroup) (*store.UserGroup, error) {
	panic("not used")
}
func (f *fakeDriver) ListUserGroups(ctx context.Context) ([]*store.UserGroup, error) {
	panic("not used")
}
func (f *fakeDriver) ListUsersForGroup(ctx context.Context, groupID int64) ([]*store.User, error) {
	panic("not used")
}
func (f *fakeDriver) ReplaceUserGroupMembers(ctx context.Context, groupID int64, userIDs []int64) error {
	panic("not used")
}
