package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coworklink/coworklink/store"
)

type recordingRunner struct {
	chatCalls  int
	matchCalls int
	err        error
}

func (r *recordingRunner) RunChatGeneration(ctx context.Context, gen *store.Generation) error {
	r.chatCalls++
	return r.err
}

func (r *recordingRunner) RunMatchGeneration(ctx context.Context, gen *store.Generation) error {
	r.matchCalls++
	return r.err
}

func newTestScheduler(t *testing.T, runner Runner, budget float64) (*Scheduler, *fakeDriver) {
	t.Helper()
	driver := newFakeDriver()
	st := store.New(driver, nil)
	return New(st, runner, budget), driver
}

func TestBudgetIntervalZeroWithNoPriorCost(t *testing.T) {
	sch, _ := newTestScheduler(t, &recordingRunner{}, 5.0)

	interval, err := sch.budgetInterval(context.Background())
	require.NoError(t, err)
	assert.Zero(t, interval)
}

func TestBudgetIntervalScalesWithLastCost(t *testing.T) {
	sch, driver := newTestScheduler(t, &recordingRunner{}, 7.0) // $7/week budget

	chatID := int64(1)
	cost := 1.0 // $1 spent on the last generation
	gen, err := driver.CreateGeneration(context.Background(), store.TaskRef{ChatID: &chatID}, time.Now())
	require.NoError(t, err)
	gen.CostUSD = &cost

	interval, err := sch.budgetInterval(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Duration(secondsPerWeek/7)*time.Second, interval)
}

func TestEnqueueNudgesAndPersists(t *testing.T) {
	sch, _ := newTestScheduler(t, &recordingRunner{}, 5.0)
	chatID := int64(42)

	gen, err := sch.Enqueue(context.Background(), store.TaskRef{ChatID: &chatID})
	require.NoError(t, err)
	assert.Equal(t, store.GenerationPending, gen.Status)
	assert.Equal(t, &chatID, gen.ChatID)

	select {
	case <-sch.nudge:
	default:
		t.Fatal("expected Enqueue to leave a pending nudge")
	}
}

func TestRunOnceDispatchesChatGeneration(t *testing.T) {
	runner := &recordingRunner{}
	sch, _ := newTestScheduler(t, runner, 5.0)
	chatID := int64(1)

	_, err := sch.Enqueue(context.Background(), store.TaskRef{ChatID: &chatID})
	require.NoError(t, err)

	worked, err := sch.runOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, 1, runner.chatCalls)
	assert.Equal(t, 0, runner.matchCalls)
}

func TestRunOnceMarksGenerationFailedOnRunnerError(t *testing.T) {
	runner := &recordingRunner{err: assert.AnError}
	sch, driver := newTestScheduler(t, runner, 5.0)
	chatID := int64(1)

	gen, err := sch.Enqueue(context.Background(), store.TaskRef{ChatID: &chatID})
	require.NoError(t, err)

	worked, err := sch.runOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	updated, err := driver.GetGeneration(context.Background(), gen.ID)
	require.NoError(t, err)
	assert.Equal(t, store.GenerationFailed, updated.Status)
}

func TestRunOnceReportsNoWorkWhenQueueEmpty(t *testing.T) {
	sch, _ := newTestScheduler(t, &recordingRunner{}, 5.0)

	worked, err := sch.runOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestNudgeCoalescesToOnePendingWakeup(t *testing.T) {
	sch, _ := newTestScheduler(t, &recordingRunner{}, 5.0)

	sch.Nudge()
	sch.Nudge()
	sch.Nudge()

	select {
	case <-sch.nudge:
	default:
		t.Fatal("expected at least one pending nudge")
	}
	select {
	case <-sch.nudge:
		t.Fatal("expected nudges to coalesce to a single pending wakeup")
	default:
	}
}
