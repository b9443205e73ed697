package utils

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrNotConfigured    = errors.New("middleware not configured")      // Constructor signal: omit from the chain
	ErrIgnoreRequest    = errors.New("request ignored")                // Task abandoned (e.g. redirect budget exhausted)
	ErrConfigValidation = errors.New("configuration validation error") // Fatal at construction time
	ErrRequestCreation  = errors.New("failed to create HTTP request")  // Wraps http.NewRequest errors
	ErrResponseBodyRead = errors.New("failed to read response body")   // Wraps body read errors
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	ErrDatabase         = errors.New("database error") // Wraps badger errors
	ErrQueueClosed      = errors.New("scheduler queue closed")
)

// IsTransient reports whether err is a transport-level failure worth retrying:
// timeouts, DNS failures, connection resets/refusals, truncated responses.
// Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Unwrap url.Error from http.Client.Do
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	// Truncated or prematurely closed response bodies
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	return false
}

// CategorizeError maps an error to a short category string used as a stats
// counter suffix and as the stored error type for abandoned tasks.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrIgnoreRequest):
		return "IgnoreRequest"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Network_Timeout"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "Network_DNSLookup"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "Network_ConnectionRefused"
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return "Network_ConnectionReset"
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return "Network_TruncatedResponse"
	}

	// Fallback substring checks for errors that lost their type through wrapping
	lowerMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerMsg, "timeout") || strings.Contains(lowerMsg, "deadline exceeded"):
		return "Network_Timeout"
	case strings.Contains(lowerMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerMsg, "reset by peer"):
		return "Network_ConnectionReset"
	case strings.Contains(lowerMsg, "broken pipe"):
		return "Network_BrokenPipe"
	case strings.Contains(lowerMsg, "tls") || strings.Contains(lowerMsg, "certificate"):
		return "Network_TLS"
	}

	return "Unknown"
}
