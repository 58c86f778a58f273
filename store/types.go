// Package store defines the persistence-layer entities and the operations
// the scheduler, coalescer and matching engine rely on (§3, §4.A).
package store

import (
	"time"

	"github.com/google/uuid"
)

// UserState is the lifecycle state of a User.
type UserState string

const (
	UserStateOnboarding UserState = "onboarding"
	UserStateReady      UserState = "ready"
	UserStateActive     UserState = "active"
	UserStateUpdated    UserState = "updated"
	UserStatePaused     UserState = "paused"
)

// User is a chat participant with an extracted matching profile.
type User struct {
	ID                  int64
	TelegramID           int64
	IsSeeker             *bool
	IsProvider           *bool
	State                UserState
	MatchingSummary      string
	PracticalContext     string
	PrivateObservations  string
	Embedding            []float32
	ProfilerVersion      int32
	ProfileUpdatedAt     time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasRole reports whether the user has declared at least one matching role.
func (u *User) HasRole() bool {
	return (u.IsSeeker != nil && *u.IsSeeker) || (u.IsProvider != nil && *u.IsProvider)
}

// FindUser is the filter struct for user lookups.
type FindUser struct {
	ID         *int64
	TelegramID *int64
	State      *UserState
}

// UpdateUser carries a partial update to a user row.
type UpdateUser struct {
	ID                  int64
	IsSeeker            *bool
	IsProvider          *bool
	State               *UserState
	MatchingSummary     *string
	PracticalContext    *string
	PrivateObservations *string
	Embedding           []float32
	ProfilerVersion     *int32
	ProfileUpdatedAt    *time.Time
}

// MessageRole discriminates a history entry (design note: sum-type messages).
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// HistoryMessage is one role-tagged entry in a chat's message history.
type HistoryMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Chat is the per-user conversational session and its mutable state.
type Chat struct {
	ID                 int64
	UserID              int64
	TelegramID          int64
	MessageHistory      []HistoryMessage
	UserPrompt          *string
	ContinuationToken   *string
	StatusMessageID     *int64
	AdminThreadID       *int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// FindChat is the filter struct for chat lookups.
type FindChat struct {
	ID         *int64
	UserID     *int64
	TelegramID *int64
}

// UpdateChat carries a partial update to a chat row. Nil fields are left
// untouched; the Clear* flags let callers explicitly clear a nullable
// column (an explicit distinction from "not supplied").
type UpdateChat struct {
	ID                     int64
	AppendHistory          []HistoryMessage
	ClearHistory           bool
	UserPrompt             *string
	ClearUserPrompt        bool
	ContinuationToken      *string
	ClearContinuationToken bool
	StatusMessageID        *int64
	ClearStatusMessageID   bool
	AdminThreadID          *int64
}

// GenerationStatus is the lifecycle state of a Generation (§3, invariant:
// pending -> started -> {completed|failed}).
type GenerationStatus string

const (
	GenerationPending   GenerationStatus = "pending"
	GenerationStarted   GenerationStatus = "started"
	GenerationCompleted GenerationStatus = "completed"
	GenerationFailed    GenerationStatus = "failed"
)

// Generation is a single unit of Language Agent work, discriminated by
// exactly one of ChatID or MatchID. Generation rows use a uuid.UUID
// primary key (grounded on the original system's own uuid4 generation
// ids), unlike the telegram-anchored int64 ids of User/Chat.
type Generation struct {
	ID                   uuid.UUID
	ChatID               *int64
	MatchID              *uuid.UUID
	ScheduledFor         time.Time
	Status               GenerationStatus
	StartedAt            *time.Time
	CachedInputTokens    int32
	UncachedInputTokens  int32
	OutputTokens         int32
	CostUSD              *float64
	ProviderResponseID   *string
	PlaceholderMessageID *int64
	CreatedAt            time.Time
}

// TaskRef names the exactly-one-of task discriminant for a new Generation.
type TaskRef struct {
	ChatID  *int64
	MatchID *uuid.UUID
}

// FindGeneration is the filter struct for generation lookups.
type FindGeneration struct {
	ID      *uuid.UUID
	ChatID  *int64
	MatchID *uuid.UUID
	Status  *GenerationStatus
}

// UpdateGeneration carries a partial update to a generation row.
type UpdateGeneration struct {
	ID                   uuid.UUID
	Status               *GenerationStatus
	StartedAt            *time.Time
	CachedInputTokens    *int32
	UncachedInputTokens  *int32
	OutputTokens         *int32
	CostUSD              *float64
	ProviderResponseID   *string
	PlaceholderMessageID *int64
	ClearPlaceholder     bool
}

// MatchStatus is the consent state machine on a Match (§4.H).
type MatchStatus string

const (
	MatchPending      MatchStatus = "pending"
	MatchQualified    MatchStatus = "qualified"
	MatchDisqualified MatchStatus = "disqualified"
	MatchAAccepted    MatchStatus = "a_accepted"
	MatchBAccepted    MatchStatus = "b_accepted"
	MatchConnected    MatchStatus = "connected"
	MatchRejected     MatchStatus = "rejected"
	MatchUnmatched    MatchStatus = "unmatched"
)

// Match is a directed pair record, or a participation record when
// UserBID is nil (§3, design note: match tri-state). Match rows use a
// uuid.UUID primary key, the same rationale as Generation.
type Match struct {
	ID                     uuid.UUID
	UserAID                int64
	UserBID                *int64
	SimilarityScore        *float64
	MatchRationale         string
	MatchingRound          int32
	Status                 MatchStatus
	LatestProfileUpdatedAt time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// FindMatch is the filter struct for match lookups.
type FindMatch struct {
	ID            *uuid.UUID
	UserAID       *int64
	UserBID       *int64
	MatchingRound *int32
	Status        *MatchStatus
}

// UpdateMatch carries a partial update to a match row.
type UpdateMatch struct {
	ID              uuid.UUID
	SimilarityScore *float64
	MatchRationale  *string
	Status          *MatchStatus
}

// CandidateUser is one result row of a similarity search: the candidate
// plus its cosine similarity to the seeker.
type CandidateUser struct {
	User       *User
	Similarity float64
}

// AnnouncementStatus is the broadcast lifecycle (§3).
type AnnouncementStatus string

const (
	AnnouncementPending AnnouncementStatus = "pending"
	AnnouncementSending AnnouncementStatus = "sending"
	AnnouncementSent    AnnouncementStatus = "sent"
	AnnouncementFailed  AnnouncementStatus = "failed"
)

// Announcement is a broadcast text targeted at a dynamically-filtered
// UserGroup.
type Announcement struct {
	ID              int64
	UserGroupID     int64
	Body            string
	SourceMessageID int64
	Status          AnnouncementStatus
	CreatedAt       time.Time
	SentAt          *time.Time
}

// FindAnnouncement is the filter struct for announcement lookups.
type FindAnnouncement struct {
	ID              *int64
	SourceMessageID *int64
	Status          *AnnouncementStatus
}

// UpdateAnnouncement carries a partial update to an announcement row.
type UpdateAnnouncement struct {
	ID     int64
	Status *AnnouncementStatus
	SentAt *time.Time
}

// UserGroup is a dynamically-filtered set of users (CEL membership
// expression evaluated against a User's declared fields).
type UserGroup struct {
	ID         int64
	Name       string
	FilterExpr string
	CreatedAt  time.Time
}

// FindUserGroup is the filter struct for user-group lookups.
type FindUserGroup struct {
	ID   *int64
	Name *string
}

// UserGroupMember is a materialized membership row, refreshed whenever an
// announcement targeting the group is sent.
type UserGroupMember struct {
	UserGroupID int64
	UserID      int64
	AddedAt     time.Time
}
