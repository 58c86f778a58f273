package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coworklink/coworklink/store"
)

// fakeDriver is a minimal, configurable store.Driver backing the
// scheduler tests. Only the methods the scheduler actually calls are
// meaningfully implemented; everything else panics if reached, so a
// test exercising an unexpected path fails loudly.
type fakeDriver struct {
	mu          sync.Mutex
	generations map[uuid.UUID]*store.Generation
	order       []uuid.UUID
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{generations: make(map[uuid.UUID]*store.Generation)}
}

func (f *fakeDriver) Close() error { return nil }

func (f *fakeDriver) CreateGeneration(ctx context.Context, ref store.TaskRef, scheduledFor time.Time) (*store.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gen := &store.Generation{
		ID:           uuid.New(),
		ChatID:       ref.ChatID,
		MatchID:      ref.MatchID,
		ScheduledFor: scheduledFor,
		Status:       store.GenerationPending,
	}
	f.generations[gen.ID] = gen
	f.order = append(f.order, gen.ID)
	return gen, nil
}

func (f *fakeDriver) GetGeneration(ctx context.Context, id uuid.UUID) (*store.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gen, ok := f.generations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return gen, nil
}

func (f *fakeDriver) UpdateGeneration(ctx context.Context, update *store.UpdateGeneration) (*store.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gen, ok := f.generations[update.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.Status != nil {
		gen.Status = *update.Status
	}
	if update.StartedAt != nil {
		gen.StartedAt = update.StartedAt
	}
	if update.CostUSD != nil {
		gen.CostUSD = update.CostUSD
	}
	return gen, nil
}

func (f *fakeDriver) NextPendingGeneration(ctx context.Context, now time.Time) (*store.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		gen := f.generations[id]
		if gen.Status == store.GenerationPending && !gen.ScheduledFor.After(now) {
			return gen, nil
		}
	}
	return nil, nil
}

func (f *fakeDriver) MinPendingScheduledFor(ctx context.Context) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var min *time.Time
	for _, gen := range f.generations {
		if gen.Status != store.GenerationPending {
			continue
		}
		if min == nil || gen.ScheduledFor.Before(*min) {
			t := gen.ScheduledFor
			min = &t
		}
	}
	return min, nil
}

func (f *fakeDriver) MaxScheduledFor(ctx context.Context) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max *time.Time
	for _, gen := range f.generations {
		if max == nil || gen.ScheduledFor.After(*max) {
			t := gen.ScheduledFor
			max = &t
		}
	}
	return max, nil
}

func (f *fakeDriver) LastCostGeneration(ctx context.Context) (*store.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *store.Generation
	for i := len(f.order) - 1; i >= 0; i-- {
		gen := f.generations[f.order[i]]
		if gen.CostUSD != nil {
			last = gen
			break
		}
	}
	return last, nil
}

func (f *fakeDriver) PendingGenerationForChat(ctx context.Context, chatID int64) (*store.Generation, error) {
	return nil, nil
}

// Unused by the scheduler; panic so a test that reaches these fails loudly.
func (f *fakeDriver) GetOrCreateUser(ctx context.Context, telegramID int64) (*store.User, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) GetUser(ctx context.Context, find *store.FindUser) (*store.User, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) NextUserForMatching(ctx context.Context, round int32) (*store.User, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) MaxRoundWithParticipants(ctx context.Context) (int32, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) SimilarOppositeRoleUsers(ctx context.Context, user *store.User, threshold float64, k int, exclusions []int64) ([]store.CandidateUser, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) MatchExclusionSet(ctx context.Context, userID int64) ([]int64, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) GetOrCreateChat(ctx context.Context, userID int64) (*store.Chat, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) GetChat(ctx context.Context, find *store.FindChat) (*store.Chat, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) UpdateChat(ctx context.Context, update *store.UpdateChat) (*store.Chat, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) CreateMatch(ctx context.Context, match *store.Match) (*store.Match, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) GetMatch(ctx context.Context, id uuid.UUID) (*store.Match, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) UpdateMatch(ctx context.Context, update *store.UpdateMatch) (*store.Match, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) ListMatches(ctx context.Context, find *store.FindMatch) ([]*store.Match, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) CreateAnnouncement(ctx context.Context, a *store.Announcement) (*store.Announcement, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) GetAnnouncement(ctx context.Context, find *store.FindAnnouncement) (*store.Announcement, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) UpdateAnnouncement(ctx context.Context, update *store.UpdateAnnouncement) (*store.Announcement, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) GetUserGroup(ctx context.Context, find *store.FindUserGroup) (*store.UserGroup, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) ListUserGroups(ctx context.Context) ([]*store.UserGroup, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) ListUsersForGroup(ctx context.Context, groupID int64) ([]*store.User, error) {
	panic("not used by scheduler tests")
}
func (f *fakeDriver) ReplaceUserGroupMembers(ctx context.Context, groupID int64, userIDs []int64) error {
	panic("not used by scheduler tests")
}
