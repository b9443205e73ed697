package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_ZeroDelayNeverWaits(t *testing.T) {
	rl := NewRateLimiter(0, testLogger())
	rl.MarkRequest("example.com")

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background(), "example.com"))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestRateLimiter_FirstRequestNotDelayed(t *testing.T) {
	rl := NewRateLimiter(500*time.Millisecond, testLogger())

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background(), "fresh.example.com"))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestRateLimiter_EnforcesDelayPerHost(t *testing.T) {
	rl := NewRateLimiter(100*time.Millisecond, testLogger())
	rl.MarkRequest("slow.example.com")

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background(), "slow.example.com"))
	// Jitter is +/- 10%, so at least ~90ms must have passed
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// A different host is unaffected
	start = time.Now()
	require.NoError(t, rl.Wait(context.Background(), "other.example.com"))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestRateLimiter_WaitRespectsCancellation(t *testing.T) {
	rl := NewRateLimiter(5*time.Second, testLogger())
	rl.MarkRequest("example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := rl.Wait(ctx, "example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
