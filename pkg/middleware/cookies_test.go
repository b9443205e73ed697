package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcrawl/pkg/config"
	"webcrawl/pkg/web"
)

func newTestCookies(t *testing.T, overrides map[string]any) *Cookies {
	t.Helper()
	m, err := NewCookies(config.NewFromMap(overrides), testLogger())
	require.NoError(t, err)
	return m
}

func TestCookies_RoundTrip(t *testing.T) {
	m := newTestCookies(t, nil)
	spider := &testSpider{name: "test"}

	// Server sets a cookie on the first response
	first := mustRequest(t, "https://example.com/login")
	resp := makeResponse(first, 200, map[string]string{"Set-Cookie": "session=abc123; Path=/"}, "")
	out := m.ProcessResponse(first, resp, spider)
	assert.Equal(t, KindPass, out.Kind())

	// The next request to the same site carries it back
	second := mustRequest(t, "https://example.com/account")
	out = m.ProcessRequest(second, spider)
	assert.Equal(t, KindPass, out.Kind())
	assert.Equal(t, "session=abc123", second.Headers.Get("Cookie"))
}

func TestCookies_JarIsolation(t *testing.T) {
	m := newTestCookies(t, nil)
	spider := &testSpider{name: "test"}

	reqA := mustRequest(t, "https://example.com/")
	reqA.Meta.CookieJar = "session-a"
	m.ProcessResponse(reqA, makeResponse(reqA, 200, map[string]string{"Set-Cookie": "user=alice"}, ""), spider)

	reqB := mustRequest(t, "https://example.com/")
	reqB.Meta.CookieJar = "session-b"
	m.ProcessResponse(reqB, makeResponse(reqB, 200, map[string]string{"Set-Cookie": "user=bob"}, ""), spider)

	nextA := mustRequest(t, "https://example.com/page")
	nextA.Meta.CookieJar = "session-a"
	m.ProcessRequest(nextA, spider)
	assert.Equal(t, "user=alice", nextA.Headers.Get("Cookie"))

	nextB := mustRequest(t, "https://example.com/page")
	nextB.Meta.CookieJar = "session-b"
	m.ProcessRequest(nextB, spider)
	assert.Equal(t, "user=bob", nextB.Headers.Get("Cookie"))

	// The default jar saw neither
	nextDefault := mustRequest(t, "https://example.com/page")
	m.ProcessRequest(nextDefault, spider)
	assert.Empty(t, nextDefault.Headers.Get("Cookie"))
}

func TestCookies_RequestAttachedCookies(t *testing.T) {
	m := newTestCookies(t, nil)
	spider := &testSpider{name: "test"}

	req := mustRequest(t, "https://example.com/")
	req.Cookies = []web.Cookie{{Name: "currency", Value: "USD"}}
	m.ProcessRequest(req, spider)
	assert.Equal(t, "currency=USD", req.Headers.Get("Cookie"))

	// The attached cookie persists in the jar for later requests
	later := mustRequest(t, "https://example.com/prices")
	m.ProcessRequest(later, spider)
	assert.Equal(t, "currency=USD", later.Headers.Get("Cookie"))
}

func TestCookies_HeaderIsCanonicalNotAppended(t *testing.T) {
	m := newTestCookies(t, nil)
	spider := &testSpider{name: "test"}

	req := mustRequest(t, "https://example.com/")
	req.Headers.Set("Cookie", "stale=value")
	m.ProcessRequest(req, spider)

	// The hand-set header is replaced by the (empty) jar's view
	assert.Empty(t, req.Headers.Get("Cookie"))
}

func TestCookies_DontMergeCookies(t *testing.T) {
	m := newTestCookies(t, nil)
	spider := &testSpider{name: "test"}

	// Seed the default jar
	seed := mustRequest(t, "https://example.com/")
	m.ProcessResponse(seed, makeResponse(seed, 200, map[string]string{"Set-Cookie": "session=abc"}, ""), spider)

	req := mustRequest(t, "https://example.com/raw")
	req.Meta.DontMergeCookies = true
	req.Headers.Set("Cookie", "handmade=1")
	m.ProcessRequest(req, spider)

	// Untouched: no jar injection, hand-set header survives
	assert.Equal(t, "handmade=1", req.Headers.Get("Cookie"))

	// Responses on such requests are not absorbed either
	resp := makeResponse(req, 200, map[string]string{"Set-Cookie": "tracker=x"}, "")
	m.ProcessResponse(req, resp, spider)
	later := mustRequest(t, "https://example.com/later")
	m.ProcessRequest(later, spider)
	assert.Equal(t, "session=abc", later.Headers.Get("Cookie"))
}

func TestCookies_DomainScoping(t *testing.T) {
	m := newTestCookies(t, nil)
	spider := &testSpider{name: "test"}

	seed := mustRequest(t, "https://example.com/")
	m.ProcessResponse(seed, makeResponse(seed, 200, map[string]string{"Set-Cookie": "session=abc"}, ""), spider)

	other := mustRequest(t, "https://other.example.org/")
	m.ProcessRequest(other, spider)
	assert.Empty(t, other.Headers.Get("Cookie"))
}

func TestCookies_MultipleSetCookieHeaders(t *testing.T) {
	m := newTestCookies(t, nil)
	spider := &testSpider{name: "test"}

	req := mustRequest(t, "https://example.com/")
	resp := makeResponse(req, 200, nil, "")
	resp.Headers.Add("Set-Cookie", "a=1")
	resp.Headers.Add("Set-Cookie", "b=2")
	m.ProcessResponse(req, resp, spider)

	next := mustRequest(t, "https://example.com/page")
	m.ProcessRequest(next, spider)
	assert.Contains(t, next.Headers.Get("Cookie"), "a=1")
	assert.Contains(t, next.Headers.Get("Cookie"), "b=2")
}
