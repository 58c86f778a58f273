package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireForChatAllowsFirstCallImmediately(t *testing.T) {
	g := New()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, g.AcquireForChat(ctx, 1))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquireForChatThrottlesRepeatedCallsToSameChat(t *testing.T) {
	g := New()
	ctx := context.Background()

	require.NoError(t, g.AcquireForChat(ctx, 1))

	deadline, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := g.AcquireForChat(deadline, 1)
	assert.Error(t, err, "second send to the same chat within the interval should block past a short deadline")
}

func TestAcquireForChatDoesNotThrottleDistinctChats(t *testing.T) {
	g := New()

	require.NoError(t, g.AcquireForChat(context.Background(), 1))

	deadline, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := g.AcquireForChat(deadline, 2)
	assert.NoError(t, err, "a different chat has its own gate and should not wait on chat 1's interval")
}

func TestAcquireForAdminThrottlesRepeatedCalls(t *testing.T) {
	g := New()
	ctx := context.Background()

	require.NoError(t, g.AcquireForAdmin(ctx))

	deadline, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := g.AcquireForAdmin(deadline)
	assert.Error(t, err)
}
