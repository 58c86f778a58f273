package langagent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/internal/profile"
)

// HistoryTruncationLimit bounds how many prior messages are sent in
// stateless mode (§4.D: "N ~ 20-50").
const HistoryTruncationLimit = 30

const truncationNotice = "earlier messages truncated"

type agent struct {
	client      *openai.Client
	model       string
	assistantID string
	mode        profile.AgentMode
	timeout     time.Duration
	embeddings  *embeddingClient
}

// New builds the Language Agent from process configuration. The client
// is a single OpenAI-compatible HTTP client shared across chat
// completions, assistants/threads calls, and embeddings (§5: "the
// language-model client is shared").
func New(p *profile.Profile) (Agent, error) {
	clientConfig := openai.DefaultConfig(p.LLMAPIKey)
	if p.LLMBaseURL != "" {
		clientConfig.BaseURL = p.LLMBaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	client := openai.NewClientWithConfig(clientConfig)

	return &agent{
		client:      client,
		model:       p.LLMModel,
		assistantID: p.AssistantID,
		mode:        p.AgentMode,
		timeout:     p.LLMTimeout,
		embeddings:  newEmbeddingClient(client, p.EmbeddingModel, p.EmbeddingDimensions),
	}, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// conversationResponsePayload is what we ask the model to emit as its
// final message content: an utterance plus an optional profile (§4.F.5).
type conversationResponsePayload struct {
	Utterance string       `json:"utterance"`
	Profile   *ProfileData `json:"profile,omitempty"`
}

func (a *agent) Converse(ctx context.Context, history []Message, prompt string, continuationToken *string) (*ConversationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if a.mode == profile.AgentModeContinuation && continuationToken != nil {
		result, err := a.converseWithContinuation(ctx, *continuationToken, prompt)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrContinuationExpired) {
			return nil, err
		}
		slog.Warn("langagent: continuation token expired, falling back to stateless mode for this turn")
	}

	return a.converseStateless(ctx, history, prompt)
}

func (a *agent) converseStateless(ctx context.Context, history []Message, prompt string) (*ConversationResult, error) {
	messages := truncateHistory(history)
	messages = append(messages, Message{Role: "user", Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: toOpenAIMessages(messages),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty chat completion response")
	}

	payload, err := parseConversationPayload(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	usage := usageFromOpenAI(resp.Usage)
	return &ConversationResult{
		Utterance:          payload.Utterance,
		Profile:            payload.Profile,
		Usage:              usage,
		CostUSD:            estimateCost(a.model, usage),
		ProviderResponseID: resp.ID,
	}, nil
}

// converseWithContinuation drives the stateful-continuation mode via the
// Assistants/Threads API: the continuation token is the thread id, so
// subsequent calls inherit prior context without resending history
// (§4.D mode 2).
func (a *agent) converseWithContinuation(ctx context.Context, threadID, prompt string) (*ConversationResult, error) {
	_, err := a.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(openai.ChatMessageRoleUser),
		Content: prompt,
	})
	if err != nil {
		if isContinuationExpiredErr(err) {
			return nil, ErrContinuationExpired
		}
		return nil, errors.Wrap(err, "failed to append message to thread")
	}

	run, err := a.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: a.assistantID})
	if err != nil {
		if isContinuationExpiredErr(err) {
			return nil, ErrContinuationExpired
		}
		return nil, errors.Wrap(err, "failed to create run")
	}

	run, err = a.pollRun(ctx, threadID, run.ID)
	if err != nil {
		return nil, err
	}

	messages, err := a.client.ListMessage(ctx, threadID, nil, nil, nil, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list thread messages")
	}
	if len(messages.Messages) == 0 || len(messages.Messages[0].Content) == 0 {
		return nil, errors.New("empty assistant response")
	}

	text := messages.Messages[0].Content[0].Text.Value
	payload, err := parseConversationPayload(text)
	if err != nil {
		return nil, err
	}

	usage := Usage{} // the Assistants API does not expose per-run token detail uniformly; cost is tracked as zero-floor
	token := threadID
	return &ConversationResult{
		Utterance:          payload.Utterance,
		Profile:            payload.Profile,
		Usage:              usage,
		CostUSD:            estimateCost(a.model, usage),
		ProviderResponseID: run.ID,
		ContinuationToken:  &token,
	}, nil
}

func (a *agent) pollRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	for {
		run, err := a.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			if isContinuationExpiredErr(err) {
				return openai.Run{}, ErrContinuationExpired
			}
			return openai.Run{}, errors.Wrap(err, "failed to retrieve run")
		}
		switch run.Status {
		case openai.RunStatusCompleted:
			return run, nil
		case openai.RunStatusFailed, openai.RunStatusExpired, openai.RunStatusCancelled:
			return openai.Run{}, errors.Errorf("run ended with status %s", run.Status)
		}

		select {
		case <-ctx.Done():
			return openai.Run{}, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// isContinuationExpiredErr maps provider "container is expired" / "not
// found" errors to the ContinuationExpired condition (§4.D).
func isContinuationExpiredErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "expired") || strings.Contains(msg, "not found") || strings.Contains(msg, "no such thread")
}

func (a *agent) NewThread(ctx context.Context) (string, error) {
	thread, err := a.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", errors.Wrap(err, "failed to create thread")
	}
	return thread.ID, nil
}

func (a *agent) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.embeddings.embed(ctx, text)
}

func truncateHistory(history []Message) []Message {
	if len(history) <= HistoryTruncationLimit {
		return append([]Message{}, history...)
	}
	truncated := history[len(history)-HistoryTruncationLimit:]
	out := make([]Message, 0, len(truncated)+1)
	out = append(out, Message{Role: "system", Content: truncationNotice})
	out = append(out, truncated...)
	return out
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func usageFromOpenAI(u openai.Usage) Usage {
	usage := Usage{
		UncachedInputTokens: int32(u.PromptTokens),
		OutputTokens:        int32(u.CompletionTokens),
	}
	if u.PromptTokensDetails != nil && u.PromptTokensDetails.CachedTokens > 0 {
		cached := int32(u.PromptTokensDetails.CachedTokens)
		usage.CachedInputTokens = cached
		usage.UncachedInputTokens -= cached
	}
	return usage
}

func parseConversationPayload(content string) (*conversationResponsePayload, error) {
	var payload conversationResponsePayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		// Not every deployment forces JSON mode; fall back to a plain
		// utterance with no profile extraction.
		return &conversationResponsePayload{Utterance: content}, nil
	}
	if payload.Profile != nil {
		if err := payload.Profile.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid profile in agent response")
		}
	}
	return &payload, nil
}
