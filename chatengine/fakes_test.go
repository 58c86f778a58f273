package chatengine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coworklink/coworklink/langagent"
	"github.com/coworklink/coworklink/store"
	"github.com/coworklink/coworklink/transport"
)

// fakeDriver is a minimal, scripted store.Driver exercising just the
// calls the chat generation runner makes.
type fakeDriver struct {
	user *store.User
	chat *store.Chat
	gens map[uuid.UUID]*store.Generation
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{gens: make(map[uuid.UUID]*store.Generation)}
}

func (f *fakeDriver) Close() error { return nil }

func (f *fakeDriver) GetChat(ctx context.Context, find *store.FindChat) (*store.Chat, error) {
	if f.chat == nil || (find.ID != nil && *find.ID != f.chat.ID) {
		return nil, store.ErrNotFound
	}
	return f.chat, nil
}

func (f *fakeDriver) GetOrCreateChat(ctx context.Context, userID int64) (*store.Chat, error) {
	if f.chat == nil || f.chat.UserID != userID {
		return nil, store.ErrNotFound
	}
	return f.chat, nil
}

func (f *fakeDriver) GetUser(ctx context.Context, find *store.FindUser) (*store.User, error) {
	if f.user == nil || (find.ID != nil && *find.ID != f.user.ID) {
		return nil, store.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeDriver) UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error) {
	if f.user == nil || f.user.ID != update.ID {
		return nil, store.ErrNotFound
	}
	if update.IsSeeker != nil {
		f.user.IsSeeker = update.IsSeeker
	}
	if update.IsProvider != nil {
		f.user.IsProvider = update.IsProvider
	}
	if update.State != nil {
		f.user.State = *update.State
	}
	if update.MatchingSummary != nil {
		f.user.MatchingSummary = *update.MatchingSummary
	}
	if update.PracticalContext != nil {
		f.user.PracticalContext = *update.PracticalContext
	}
	if update.PrivateObservations != nil {
		f.user.PrivateObservations = *update.PrivateObservations
	}
	if update.Embedding != nil {
		f.user.Embedding = update.Embedding
	}
	if update.ProfilerVersion != nil {
		f.user.ProfilerVersion = *update.ProfilerVersion
	}
	if update.ProfileUpdatedAt != nil {
		f.user.ProfileUpdatedAt = *update.ProfileUpdatedAt
	}
	return f.user, nil
}

func (f *fakeDriver) UpdateChat(ctx context.Context, update *store.UpdateChat) (*store.Chat, error) {
	if f.chat == nil || f.chat.ID != update.ID {
		return nil, store.ErrNotFound
	}
	switch {
	case update.ClearHistory:
		f.chat.MessageHistory = nil
	case len(update.AppendHistory) > 0:
		f.chat.MessageHistory = append(f.chat.MessageHistory, update.AppendHistory...)
	}
	if update.ClearUserPrompt {
		f.chat.UserPrompt = nil
	} else if update.UserPrompt != nil {
		f.chat.UserPrompt = update.UserPrompt
	}
	if update.ClearContinuationToken {
		f.chat.ContinuationToken = nil
	} else if update.ContinuationToken != nil {
		f.chat.ContinuationToken = update.ContinuationToken
	}
	if update.ClearStatusMessageID {
		f.chat.StatusMessageID = nil
	} else if update.StatusMessageID != nil {
		f.chat.StatusMessageID = update.StatusMessageID
	}
	if update.AdminThreadID != nil {
		f.chat.AdminThreadID = update.AdminThreadID
	}
	return f.chat, nil
}

func (f *fakeDriver) UpdateGeneration(ctx context.Context, update *store.UpdateGeneration) (*store.Generation, error) {
	gen, ok := f.gens[update.ID]
	if !ok {
		gen = &store.Generation{ID: update.ID}
		f.gens[update.ID] = gen
	}
	if update.Status != nil {
		gen.Status = *update.Status
	}
	if update.CostUSD != nil {
		gen.CostUSD = update.CostUSD
	}
	if update.ProviderResponseID != nil {
		gen.ProviderResponseID = update.ProviderResponseID
	}
	if update.PlaceholderMessageID != nil {
		gen.PlaceholderMessageID = update.PlaceholderMessageID
	}
	return gen, nil
}

// Unused by the chat engine tests.
func (f *fakeDriver) GetOrCreateUser(ctx context.Context, telegramID int64) (*store.User, error) {
	panic("not used")
}
func (f *fakeDriver) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
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
func (f *fakeDriver) GetMatch(ctx context.Context, id uuid.UUID) (*store.Match, error) {
	panic("not used")
}
func (f *fakeDriver) UpdateMatch(ctx context.Context, update *store.UpdateMatch) (*store.Match, error) {
	panic("not used")
}
func (f *fakeDriver) ListMatches(ctx context.Context, find *store.FindMatch) ([]*store.Match, error) {
	panic("not used")
}
func (f *fakeDriver) CreateGeneration(ctx context.Context, ref store.TaskRef, scheduledFor time.Time) (*store.Generation, error) {
	panic("not used")
}
func (f *fakeDriver) GetGeneration(ctx context.Context, id uuid.UUID) (*store.Generation, error) {
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

// fakeTransport records outbound sends/edits/deletes.
type fakeTransport struct {
	sent    []transport.OutboundMessage
	edited  []int64
	deleted []int64
	editErr error
}

func (f *fakeTransport) Send(ctx context.Context, msg transport.OutboundMessage) (int64, error) {
	f.sent = append(f.sent, msg)
	return int64(len(f.sent)), nil
}
func (f *fakeTransport) Edit(ctx context.Context, chatID, messageID int64, text string, keyboard transport.Keyboard) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edited = append(f.edited, messageID)
	return nil
}
func (f *fakeTransport) Delete(ctx context.Context, chatID, messageID int64) error {
	f.deleted = append(f.deleted, messageID)
	return nil
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

// fakeAgent returns a scripted conversation result and records the prompt
// it was invoked with.
type fakeAgent struct {
	result     *langagent.ConversationResult
	err        error
	lastPrompt string
	duringCall func()
}

func (f *fakeAgent) Converse(ctx context.Context, history []langagent.Message, prompt string, continuationToken *string) (*langagent.ConversationResult, error) {
	f.lastPrompt = prompt
	if f.duringCall != nil {
		f.duringCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
func (f *fakeAgent) Rationale(ctx context.Context, a, b langagent.MatchingParty) (*langagent.RationaleResult, error) {
	panic("not used")
}
func (f *fakeAgent) Intro(ctx context.Context, self langagent.MatchingParty, counterpart langagent.DisplayProfile, rationale string) (*langagent.IntroResult, error) {
	panic("not used")
}
func (f *fakeAgent) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}
