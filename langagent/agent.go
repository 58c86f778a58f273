// Package langagent adapts a generation endpoint to the two call modes
// described in §4.D: stateless-with-history and stateful-continuation.
// Every call returns typed output, a usage record, a provider response id
// and a computed cost estimate so callers can persist them onto a
// store.Generation row.
package langagent

import (
	"context"
	"errors"

	"github.com/coworklink/coworklink/store"
)

// ErrContinuationExpired is returned when the provider reports that a
// continuation token (thread/container) is no longer valid. Callers must
// fall back to stateless-with-history mode for the same turn and clear
// the stored token (§4.D).
var ErrContinuationExpired = errors.New("continuation expired")

// Message is one role-tagged turn passed to the agent in stateless mode.
type Message struct {
	Role    store.MessageRole
	Content string
}

// Usage is the token accounting for a single agent call.
type Usage struct {
	CachedInputTokens   int32
	UncachedInputTokens int32
	OutputTokens        int32
}

// ProfileData is the structured profile extraction the chat agent may
// return alongside its utterance (§4.F.i).
type ProfileData struct {
	IsSeeker            bool   `json:"is_seeker"`
	IsProvider          bool   `json:"is_provider"`
	MatchingSummary     string `json:"matching_summary"`
	PracticalContext    string `json:"practical_context"`
	PrivateObservations string `json:"private_observations"`
}

// Validate enforces the profile side-effect invariant (§4.F.i).
func (p *ProfileData) Validate() error {
	if p.MatchingSummary == "" {
		return errors.New("matching_summary must be non-empty")
	}
	if !p.IsSeeker && !p.IsProvider {
		return errors.New("profile must declare at least one of is_seeker, is_provider")
	}
	return nil
}

// ConversationResult is the chat agent's typed output plus call
// bookkeeping (§4.D: "typed output, a usage record... a response id, and
// a computed cost_usd").
type ConversationResult struct {
	Utterance         string
	Profile           *ProfileData
	Usage             Usage
	CostUSD           float64
	ProviderResponseID string
	ContinuationToken *string // new/refreshed token, nil if stateless mode
}

// RationaleResult is the output of the match-rationale phase (§4.H.1).
type RationaleResult struct {
	Explanation      string
	KeyAlignments    []string
	ConfidenceScore  float64
	Usage            Usage
	CostUSD          float64
	ProviderResponseID string
}

// IntroResult is the output of the per-user intro phase (§4.H.2).
type IntroResult struct {
	Utterance          string
	Usage              Usage
	CostUSD            float64
	ProviderResponseID string
}

// MatchingParty is one side of a match, scoped to what the rationale and
// intro phases may see. PrivateObservations is included only in the
// rationale call, never in the display profile passed to Intro.
type MatchingParty struct {
	MatchingSummary     string
	PracticalContext    string
	PrivateObservations string
}

// DisplayProfile is what the other party is shown: matching_summary +
// practical_context, never private_observations (§4.H.2).
type DisplayProfile struct {
	MatchingSummary  string
	PracticalContext string
}

// Agent is the Language Agent adapter (§4.D).
type Agent interface {
	// Converse runs one chat turn. Exactly one of history or
	// continuationToken drives context reconstruction, chosen by the
	// agent's configured mode. If continuationToken is non-nil and the
	// provider reports it expired, Converse falls back to stateless mode
	// within the same call and returns a nil ContinuationToken.
	Converse(ctx context.Context, history []Message, prompt string, continuationToken *string) (*ConversationResult, error)

	// Rationale generates the match explanation (§4.H.1).
	Rationale(ctx context.Context, a, b MatchingParty) (*RationaleResult, error)

	// Intro generates one party's personalized introduction (§4.H.2).
	Intro(ctx context.Context, self MatchingParty, counterpart DisplayProfile, rationale string) (*IntroResult, error)

	// Embed computes the embedding vector for a matching_summary (§3:
	// "embedding regenerated if and only if matching_summary changes").
	Embed(ctx context.Context, text string) ([]float32, error)
}
