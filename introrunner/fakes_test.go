package introrunner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coworklink/coworklink/langagent"
	"github.com/coworklink/coworklink/store"
	"github.com/coworklink/coworklink/transport"
)

// fakeDriver is a minimal, scripted store.Driver exercising just the
// calls the intro runner makes.
type fakeDriver struct {
	users map[int64]*store.User
	chats map[int64]*store.Chat
	match *store.Match
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{users: make(map[int64]*store.User), chats: make(map[int64]*store.Chat)}
}

func (f *fakeDriver) Close() error { return nil }

func (f *fakeDriver) GetUser(ctx context.Context, find *store.FindUser) (*store.User, error) {
	u, ok := f.users[*find.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeDriver) GetOrCreateChat(ctx context.Context, userID int64) (*store.Chat, error) {
	chat, ok := f.chats[userID]
	if !ok {
		chat = &store.Chat{TelegramID: userID}
		f.chats[userID] = chat
	}
	return chat, nil
}

func (f *fakeDriver) GetMatch(ctx context.Context, id uuid.UUID) (*store.Match, error) {
	if f.match == nil || f.match.ID != id {
		return nil, store.ErrNotFound
	}
	return f.match, nil
}

func (f *fakeDriver) UpdateMatch(ctx context.Context, update *store.UpdateMatch) (*store.Match, error) {
	if f.match == nil || f.match.ID != update.ID {
		return nil, store.ErrNotFound
	}
	if update.MatchRationale != nil {
		f.match.MatchRationale = *update.MatchRationale
	}
	if update.Status != nil {
		f.match.Status = *update.Status
	}
	if update.SimilarityScore != nil {
		f.match.SimilarityScore = update.SimilarityScore
	}
	return f.match, nil
}

// Unused by the intro runner tests.
func (f *fakeDriver) GetOrCreateUser(ctx context.Context, telegramID int64) (*store.User, error) {
	panic("not used")
}
func (f *fakeDriver) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	panic("not used")
}
func (f *fakeDriver) UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error) {
	panic("not used")
}
func (f *fakeDriver) NextUserForMatching(ctx context.Context, round int32) (*store.User, error) {
	panic("not used")
}
func (f *fakeDriver) MaxRoundWithParticipants(ctx context.Context) (int32, error) {
	panic("not used")
}
func (f *fakeDriver) MatchExclusionSet(ctx context.Context, userID int64) ([]int64, error) {
	panic("not used")
}
func (f *fakeDriver) SimilarOppositeRoleUsers(ctx context.Context, user *store.User, threshold float64, k int, exclusions []int64) ([]store.CandidateUser, error) {
	panic("not used")
}
func (f *fakeDriver) CreateMatch(ctx context.Context, match *store.Match) (*store.Match, error) {
	panic("not used")
}
func (f *fakeDriver) ListMatches(ctx context.Context, find *store.FindMatch) ([]*store.Match, error) {
	panic("not used")
}
func (f *fakeDriver) GetChat(ctx context.Context, find *store.FindChat) (*store.Chat, error) {
	panic("not used")
}
func (f *fakeDriver) UpdateChat(ctx context.Context, update *store.UpdateChat) (*store.Chat, error) {
	panic("not used")
}
func (f *fakeDriver) CreateGeneration(ctx context.Context, ref store.TaskRef, scheduledFor time.Time) (*store.Generation, error) {
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
func (f *fakeDriver) MaxScheduledFor(ctx context.Context) (*time.Time, error) {
	panic("not used")
}
func (f *fakeDriver) LastCostGeneration(ctx context.Context) (*store.Generation, error) {
	panic("not used")
}
func (f *fakeDriver) PendingGenerationForChat(ctx context.Context, chatID int64) (*store.Generation, error) {
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

// fakeTransport records every outbound send; it implements the subset of
// transport.ChatTransport the intro runner exercises.
type fakeTransport struct {
	sent []transport.OutboundMessage
}

func (f *fakeTransport) Send(ctx context.Context, msg transport.OutboundMessage) (int64, error) {
	f.sent = append(f.sent, msg)
	return int64(len(f.sent)), nil
}
func (f *fakeTransport) Edit(ctx context.Context, chatID, messageID int64, text string, keyboard transport.Keyboard) error {
	panic("not used")
}
func (f *fakeTransport) Delete(ctx context.Context, chatID, messageID int64) error {
	panic("not used")
}
func (f *fakeTransport) SendTyping(ctx context.Context, chatID int64) error { return nil }
func (f *fakeTransport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return nil
}
func (f *fakeTransport) CreateAdminThread(ctx context.Context, name string) (int64, error) {
	panic("not used")
}
func (f *fakeTransport) ParseInbound(payload []byte) (*transport.Inbound, error) {
	panic("not used")
}

// fakeAgent returns scripted rationale/intro results.
type fakeAgent struct {
	rationale *langagent.RationaleResult
	intro     *langagent.IntroResult
}

func (f *fakeAgent) Converse(ctx context.Context, history []langagent.Message, prompt string, continuationToken *string) (*langagent.ConversationResult, error) {
	panic("not used")
}
func (f *fakeAgent) Rationale(ctx context.Context, a, b langagent.MatchingParty) (*langagent.RationaleResult, error) {
	return f.rationale, nil
}
func (f *fakeAgent) Intro(ctx context.Context, self langagent.MatchingParty, counterpart langagent.DisplayProfile, rationale string) (*langagent.IntroResult, error) {
	return f.intro, nil
}
func (f *fakeAgent) Embed(ctx context.Context, text string) ([]float32, error) {
	panic("not used")
}

// noopRestarter satisfies Restarter without touching the matching engine.
type noopRestarter struct {
	restarted int
}

func (n *noopRestarter) Restart(ctx context.Context) { n.restarted++ }
