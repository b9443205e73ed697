package fetch

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// HostSemaphorePool bounds concurrent in-flight requests per host. One pool
// is shared across all engine workers so the per-host limit holds globally.
type HostSemaphorePool struct {
	sems  map[string]*semaphore.Weighted
	mu    sync.Mutex
	limit int64
	log   *logrus.Logger
}

// NewHostSemaphorePool creates a pool with the given per-host limit.
func NewHostSemaphorePool(maxPerHost int, log *logrus.Logger) *HostSemaphorePool {
	limit := int64(maxPerHost)
	if limit <= 0 {
		limit = 2
		log.Warnf("per-host concurrency invalid or zero, defaulting to %d", limit)
	}
	return &HostSemaphorePool{
		sems:  make(map[string]*semaphore.Weighted),
		limit: limit,
		log:   log,
	}
}

// Acquire gets or creates the host's semaphore and acquires one permit,
// blocking until available or ctx is cancelled.
func (p *HostSemaphorePool) Acquire(ctx context.Context, host string) error {
	p.mu.Lock()
	sem, ok := p.sems[host]
	if !ok {
		sem = semaphore.NewWeighted(p.limit)
		p.sems[host] = sem
		p.log.WithFields(logrus.Fields{"host": host, "limit": p.limit}).Debug("Created host semaphore")
	}
	p.mu.Unlock()

	return sem.Acquire(ctx, 1)
}

// Release returns one permit for the host.
func (p *HostSemaphorePool) Release(host string) {
	p.mu.Lock()
	sem, ok := p.sems[host]
	p.mu.Unlock()
	if !ok {
		p.log.Errorf("hostsemaphore: Release called for unknown host: %s", host)
		return
	}
	sem.Release(1)
}

// Len returns the number of tracked hosts.
func (p *HostSemaphorePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sems)
}
