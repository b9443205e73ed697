package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostSemaphorePool_LimitsPerHost(t *testing.T) {
	p := NewHostSemaphorePool(2, testLogger())
	ctx := context.Background()

	require.NoError(t, p.Acquire(ctx, "example.com"))
	require.NoError(t, p.Acquire(ctx, "example.com"))

	// Third acquire must block until a permit is released
	blocked, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := p.Acquire(blocked, "example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Release("example.com")
	require.NoError(t, p.Acquire(ctx, "example.com"))
}

func TestHostSemaphorePool_HostsAreIndependent(t *testing.T) {
	p := NewHostSemaphorePool(1, testLogger())
	ctx := context.Background()

	require.NoError(t, p.Acquire(ctx, "a.example.com"))
	require.NoError(t, p.Acquire(ctx, "b.example.com"))
	assert.Equal(t, 2, p.Len())
}

func TestHostSemaphorePool_InvalidLimitDefaults(t *testing.T) {
	p := NewHostSemaphorePool(0, testLogger())
	ctx := context.Background()

	require.NoError(t, p.Acquire(ctx, "example.com"))
	require.NoError(t, p.Acquire(ctx, "example.com"))

	blocked, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Acquire(blocked, "example.com"))
}

func TestHostSemaphorePool_ReleaseUnknownHostIsSafe(t *testing.T) {
	p := NewHostSemaphorePool(1, testLogger())
	assert.NotPanics(t, func() { p.Release("never.seen.example.com") })
}
