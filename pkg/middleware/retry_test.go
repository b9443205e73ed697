package middleware

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcrawl/pkg/config"
	"webcrawl/pkg/stats"
)

func newTestRetry(t *testing.T, overrides map[string]any, st stats.Collector) *Retry {
	t.Helper()
	m, err := NewRetry(config.NewFromMap(overrides), st, testLogger())
	require.NoError(t, err)
	return m
}

func TestRetry_RetryableStatus(t *testing.T) {
	st := stats.NewMemory()
	m := newTestRetry(t, nil, st)
	spider := &testSpider{name: "test"}

	req := mustRequest(t, "https://example.com/flaky")
	req.Priority = 5
	resp := makeResponse(req, 503, nil, "")

	out := m.ProcessResponse(req, resp, spider)

	require.Equal(t, KindRequest, out.Kind())
	next := out.Request()
	assert.Equal(t, req.URL, next.URL)
	assert.Equal(t, 1, next.Meta.RetryTimes)
	assert.True(t, next.DontFilter)
	assert.Equal(t, 4, next.Priority) // -1 default adjust

	assert.Equal(t, int64(1), st.Get("retry/count"))
	assert.Equal(t, int64(1), st.Get("retry/reason_count/503 Service Unavailable"))
}

func TestRetry_NonRetryableStatusPasses(t *testing.T) {
	m := newTestRetry(t, nil, stats.NewMemory())
	req := mustRequest(t, "https://example.com/")

	for _, status := range []int{200, 301, 404} {
		out := m.ProcessResponse(req, makeResponse(req, status, nil, ""), &testSpider{name: "test"})
		assert.Equal(t, KindPass, out.Kind(), status)
	}
}

func TestRetry_BudgetExhaustionPassesThrough(t *testing.T) {
	st := stats.NewMemory()
	m := newTestRetry(t, nil, st) // default budget: 2 retries
	spider := &testSpider{name: "test"}

	req := mustRequest(t, "https://example.com/flaky")
	req.Meta.RetryTimes = 2

	out := m.ProcessResponse(req, makeResponse(req, 503, nil, ""), spider)

	assert.Equal(t, KindPass, out.Kind())
	assert.Equal(t, int64(1), st.Get("retry/max_reached"))
	assert.Equal(t, int64(0), st.Get("retry/count"))
}

func TestRetry_MetaBudgetOverride(t *testing.T) {
	st := stats.NewMemory()
	m := newTestRetry(t, nil, st)
	spider := &testSpider{name: "test"}

	t.Run("raised budget keeps retrying", func(t *testing.T) {
		req := mustRequest(t, "https://example.com/")
		req.Meta.RetryTimes = 4
		req.Meta.SetMaxRetryTimes(5)

		out := m.ProcessResponse(req, makeResponse(req, 503, nil, ""), spider)
		require.Equal(t, KindRequest, out.Kind())
		assert.Equal(t, 5, out.Request().Meta.RetryTimes)
	})

	t.Run("zero budget never retries", func(t *testing.T) {
		req := mustRequest(t, "https://example.com/")
		req.Meta.SetMaxRetryTimes(0)

		out := m.ProcessResponse(req, makeResponse(req, 503, nil, ""), spider)
		assert.Equal(t, KindPass, out.Kind())
	})
}

func TestRetry_DontRetry(t *testing.T) {
	m := newTestRetry(t, nil, stats.NewMemory())
	req := mustRequest(t, "https://example.com/")
	req.Meta.DontRetry = true

	out := m.ProcessResponse(req, makeResponse(req, 503, nil, ""), &testSpider{name: "test"})
	assert.Equal(t, KindPass, out.Kind())

	out = m.ProcessException(req, io.ErrUnexpectedEOF, &testSpider{name: "test"})
	assert.Equal(t, KindPass, out.Kind())
}

func TestRetry_TransientException(t *testing.T) {
	st := stats.NewMemory()
	m := newTestRetry(t, nil, st)
	req := mustRequest(t, "https://example.com/")

	out := m.ProcessException(req, fmt.Errorf("reading body: %w", io.ErrUnexpectedEOF), &testSpider{name: "test"})

	require.Equal(t, KindRequest, out.Kind())
	assert.Equal(t, 1, out.Request().Meta.RetryTimes)
	assert.Equal(t, int64(1), st.Get("retry/reason_count/Network_TruncatedResponse"))
}

func TestRetry_NonTransientExceptionPropagates(t *testing.T) {
	m := newTestRetry(t, nil, stats.NewMemory())
	req := mustRequest(t, "https://example.com/")

	// Cancellation must never be retried
	out := m.ProcessException(req, context.Canceled, &testSpider{name: "test"})
	assert.Equal(t, KindPass, out.Kind())

	out = m.ProcessException(req, fmt.Errorf("some application error"), &testSpider{name: "test"})
	assert.Equal(t, KindPass, out.Kind())
}

func TestRetry_ExhaustedExceptionKeepsPropagating(t *testing.T) {
	m := newTestRetry(t, map[string]any{"RETRY_TIMES": 1}, stats.NewMemory())
	req := mustRequest(t, "https://example.com/")
	req.Meta.RetryTimes = 1

	out := m.ProcessException(req, io.ErrUnexpectedEOF, &testSpider{name: "test"})
	assert.Equal(t, KindPass, out.Kind())
}

func TestRetry_CustomHTTPCodes(t *testing.T) {
	m := newTestRetry(t, map[string]any{"RETRY_HTTP_CODES": []int{418}}, stats.NewMemory())
	req := mustRequest(t, "https://example.com/")

	out := m.ProcessResponse(req, makeResponse(req, 418, nil, ""), &testSpider{name: "test"})
	assert.Equal(t, KindRequest, out.Kind())

	out = m.ProcessResponse(req, makeResponse(req, 503, nil, ""), &testSpider{name: "test"})
	assert.Equal(t, KindPass, out.Kind())
}

func TestRetry_CloneIsolation(t *testing.T) {
	m := newTestRetry(t, nil, stats.NewMemory())
	req := mustRequest(t, "https://example.com/")
	req.Headers.Set("X-Marker", "v1")

	out := m.ProcessResponse(req, makeResponse(req, 503, nil, ""), &testSpider{name: "test"})
	require.Equal(t, KindRequest, out.Kind())

	out.Request().Headers.Set("X-Marker", "v2")
	assert.Equal(t, "v1", req.Headers.Get("X-Marker"))
	assert.Equal(t, 0, req.Meta.RetryTimes)
	assert.False(t, req.DontFilter)
}
