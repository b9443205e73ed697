package web

import (
	"fmt"
	"net/http"
	"strings"
)

// Response is the result of exactly one transport attempt. It is immutable
// after construction. Request points at the originating request, so
// Meta() reads through to the same annotation bag the middlewares stamped.
type Response struct {
	URL     string
	Status  int
	Headers http.Header
	Body    []byte
	Request *Request
}

// Meta returns the originating request's annotation bag. Never nil.
func (r *Response) Meta() *Meta {
	if r.Request == nil || r.Request.Meta == nil {
		return &Meta{}
	}
	return r.Request.Meta
}

// IsHTML reports whether the response declares an HTML content type.
func (r *Response) IsHTML() bool {
	ct := strings.ToLower(r.Headers.Get("Content-Type"))
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// StatusMessage renders the status line used as a human-readable retry or
// redirect reason, e.g. "503 Service Unavailable".
func (r *Response) StatusMessage() string {
	text := http.StatusText(r.Status)
	if text == "" {
		text = "Unknown Status"
	}
	return fmt.Sprintf("%d %s", r.Status, text)
}

func (r *Response) String() string {
	return fmt.Sprintf("<%d %s>", r.Status, r.URL)
}
