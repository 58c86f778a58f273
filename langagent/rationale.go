package langagent

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pkg/errors"
)

// rationalePayload is the structured output asked of the model for the
// match-rationale phase (§4.H.1).
type rationalePayload struct {
	Explanation     string   `json:"explanation"`
	KeyAlignments   []string `json:"key_alignments"`
	ConfidenceScore float64  `json:"confidence_score"`
}

func (a *agent) Rationale(ctx context.Context, partyA, partyB MatchingParty) (*RationaleResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	system := "You evaluate two coworking matching profiles and produce a rationale for why they were paired. " +
		"Respond as JSON with keys: explanation, key_alignments (array of short strings), confidence_score (0-1)."

	body, err := json.Marshal(map[string]MatchingParty{"party_a": partyA, "party_b": partyB})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode matching parties")
	}

	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: string(body)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "rationale completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty rationale response")
	}

	var payload rationalePayload
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode rationale payload")
	}

	usage := usageFromOpenAI(resp.Usage)
	return &RationaleResult{
		Explanation:        payload.Explanation,
		KeyAlignments:      payload.KeyAlignments,
		ConfidenceScore:    payload.ConfidenceScore,
		Usage:              usage,
		CostUSD:            estimateCost(a.model, usage),
		ProviderResponseID: resp.ID,
	}, nil
}

// introPayload is the structured output for one party's personalized
// introduction (§4.H.2).
type introPayload struct {
	Utterance string `json:"utterance"`
}

func (a *agent) Intro(ctx context.Context, self MatchingParty, counterpart DisplayProfile, rationale string) (*IntroResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	system := "You write a short, warm introduction message for one side of a coworking match. " +
		"The other party's private observations are never visible to you or to them. " +
		"Respond as JSON with a single key: utterance."

	input := struct {
		Self        MatchingParty  `json:"self"`
		Counterpart DisplayProfile `json:"counterpart"`
		Rationale   string         `json:"rationale"`
	}{self, counterpart, rationale}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode intro input")
	}

	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: string(body)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "intro completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty intro response")
	}

	var payload introPayload
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode intro payload")
	}

	usage := usageFromOpenAI(resp.Usage)
	return &IntroResult{
		Utterance:          payload.Utterance,
		Usage:              usage,
		CostUSD:            estimateCost(a.model, usage),
		ProviderResponseID: resp.ID,
	}, nil
}
