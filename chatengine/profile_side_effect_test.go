package chatengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coworklink/coworklink/langagent"
	"github.com/coworklink/coworklink/store"
)

func TestApplyProfileSideEffectRejectsInvalidProfile(t *testing.T) {
	driver := newFakeDriver()
	driver.user = &store.User{ID: 1, TelegramID: 1, State: store.UserStateOnboarding}
	driver.chat = &store.Chat{ID: 1, UserID: 1, TelegramID: 1}
	runner, _ := newTestRunner(driver, &fakeAgent{})

	err := runner.applyProfileSideEffect(context.Background(), driver.user, langagent.ProfileData{})
	assert.Error(t, err)
}

func TestApplyProfileSideEffectAdvancesOnboardingToReady(t *testing.T) {
	driver := newFakeDriver()
	driver.user = &store.User{ID: 1, TelegramID: 1, State: store.UserStateOnboarding, MatchingSummary: "old summary"}
	driver.chat = &store.Chat{ID: 1, UserID: 1, TelegramID: 1}
	agent := &fakeAgent{}
	runner, tr := newTestRunner(driver, agent)

	profile := langagent.ProfileData{IsSeeker: true, MatchingSummary: "new summary", PracticalContext: "remote"}
	err := runner.applyProfileSideEffect(context.Background(), driver.user, profile)
	require.NoError(t, err)

	assert.Equal(t, store.UserStateReady, driver.user.State)
	assert.Equal(t, "new summary", driver.user.MatchingSummary)
	require.Len(t, tr.sent, 1)
	assert.Contains(t, tr.sent[0].Text, "new summary")
}

func TestApplyProfileSideEffectMarksNonOnboardingUserUpdated(t *testing.T) {
	driver := newFakeDriver()
	driver.user = &store.User{ID: 1, TelegramID: 1, State: store.UserStateActive, MatchingSummary: "old summary"}
	driver.chat = &store.Chat{ID: 1, UserID: 1, TelegramID: 1}
	runner, _ := newTestRunner(driver, &fakeAgent{})

	profile := langagent.ProfileData{IsProvider: true, MatchingSummary: "old summary"}
	err := runner.applyProfileSideEffect(context.Background(), driver.user, profile)
	require.NoError(t, err)

	assert.Equal(t, store.UserStateUpdated, driver.user.State)
}

func TestApplyProfileSideEffectOnlyRecomputesEmbeddingWhenSummaryChanges(t *testing.T) {
	driver := newFakeDriver()
	driver.user = &store.User{ID: 1, TelegramID: 1, State: store.UserStateActive, MatchingSummary: "same summary", Embedding: []float32{9, 9}}
	driver.chat = &store.Chat{ID: 1, UserID: 1, TelegramID: 1}
	agent := &fakeAgent{}
	runner, _ := newTestRunner(driver, agent)

	profile := langagent.ProfileData{IsSeeker: true, MatchingSummary: "same summary"}
	err := runner.applyProfileSideEffect(context.Background(), driver.user, profile)
	require.NoError(t, err)

	assert.Equal(t, []float32{9, 9}, driver.user.Embedding, "embedding must be left untouched when matching_summary is unchanged")
}

func TestApplyProfileSideEffectRecomputesEmbeddingWhenSummaryChanges(t *testing.T) {
	driver := newFakeDriver()
	driver.user = &store.User{ID: 1, TelegramID: 1, State: store.UserStateActive, MatchingSummary: "old summary", Embedding: []float32{9, 9}}
	driver.chat = &store.Chat{ID: 1, UserID: 1, TelegramID: 1}
	agent := &fakeAgent{}
	runner, _ := newTestRunner(driver, agent)

	profile := langagent.ProfileData{IsSeeker: true, MatchingSummary: "new summary"}
	err := runner.applyProfileSideEffect(context.Background(), driver.user, profile)
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2}, driver.user.Embedding)
}
