package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter spaces out request attempts per host for politeness.
type RateLimiter struct {
	hostLastRequest   map[string]time.Time
	hostLastRequestMu sync.Mutex
	delay             time.Duration
	log               *logrus.Logger
}

// NewRateLimiter creates a RateLimiter with the given inter-request delay
// per host. A zero delay disables waiting.
func NewRateLimiter(delay time.Duration, log *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		hostLastRequest: make(map[string]time.Time),
		delay:           delay,
		log:             log,
	}
}

// Wait sleeps until the configured delay since the last request to host has
// elapsed, with +/- 10% jitter to desynchronize workers. Respects context
// cancellation during the wait.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl.delay <= 0 {
		return nil
	}

	rl.hostLastRequestMu.Lock()
	lastReqTime, exists := rl.hostLastRequest[host]
	rl.hostLastRequestMu.Unlock() // unlock before sleeping

	if !exists {
		return nil
	}
	remaining := rl.delay - time.Since(lastReqTime)
	if remaining <= 0 {
		return nil
	}

	// +/- 10% jitter
	var jitter time.Duration
	if jitterRange := int64(remaining) / 5; jitterRange > 0 {
		jitter = time.Duration(rand.Int63n(jitterRange)) - (remaining / 10)
	}
	sleep := remaining + jitter
	if sleep <= 0 {
		return nil
	}

	rl.log.WithFields(logrus.Fields{"host": host, "sleep": sleep}).Debug("Rate limit applying sleep")
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MarkRequest records the current time as the last request attempt time for
// the host. Call after each transport attempt.
func (rl *RateLimiter) MarkRequest(host string) {
	rl.hostLastRequestMu.Lock()
	rl.hostLastRequest[host] = time.Now()
	rl.hostLastRequestMu.Unlock()
}
