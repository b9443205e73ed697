package web

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Cookie is a name/value pair attached directly to a Request, optionally
// scoped to a domain and path. It feeds the cookie jar, which applies the
// standard acceptance rules before anything reaches the wire.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
	Secure bool
}

// Request is an outgoing crawl task. Instances are immutable by convention:
// middlewares never modify a request they were handed, only clones derived
// from it. Meta is shared state for the whole task chain — each generation
// clones it before stamping new values, so histories extend monotonically.
type Request struct {
	URL        string
	Method     string
	Headers    http.Header
	Body       []byte
	Cookies    []Cookie
	Priority   int  // higher is scheduled sooner
	DontFilter bool // bypass de-duplication downstream
	Meta       *Meta
}

// NewRequest builds a GET request for the given URL with empty headers and
// a fresh Meta.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme in request URL %q", rawURL)
	}
	return &Request{
		URL:     u.String(),
		Method:  http.MethodGet,
		Headers: make(http.Header),
		Meta:    &Meta{},
	}, nil
}

// Clone returns a deep-enough copy for safe mutation: headers, body and meta
// all get fresh storage. Used by the retry middleware, which re-issues the
// same request unchanged.
func (r *Request) Clone() *Request {
	cp := *r
	cp.Headers = cloneHeader(r.Headers)
	cp.Body = append([]byte(nil), r.Body...)
	cp.Cookies = append([]Cookie(nil), r.Cookies...)
	cp.Meta = r.Meta.Clone()
	return &cp
}

// ReplaceURL returns a clone of r pointing at a new URL, preserving method,
// body and headers. Used for 301/307/308 redirects and HEAD requests.
func (r *Request) ReplaceURL(newURL string) *Request {
	cp := r.Clone()
	cp.URL = newURL
	return cp
}

// ReplaceWithGet returns a clone of r rewritten as a bodyless GET at a new
// URL, with entity headers stripped. Used for 302/303 redirects of non-HEAD
// requests and for meta-refresh redirects.
func (r *Request) ReplaceWithGet(newURL string) *Request {
	cp := r.Clone()
	cp.URL = newURL
	cp.Method = http.MethodGet
	cp.Body = nil
	cp.Headers.Del("Content-Type")
	cp.Headers.Del("Content-Length")
	return cp
}

// ParsedURL parses the request URL. Construction validates it, so failures
// here indicate a hand-built Request.
func (r *Request) ParsedURL() (*url.URL, error) {
	return url.Parse(r.URL)
}

// Host returns the lowercase hostname component of the request URL.
func (r *Request) Host() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func (r *Request) String() string {
	return fmt.Sprintf("<%s %s>", r.Method, r.URL)
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	cp := make(http.Header, len(h))
	for k, vv := range h {
		cp[k] = append([]string(nil), vv...)
	}
	return cp
}
