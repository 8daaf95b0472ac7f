package importer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxConcurrent is the default number of files parsed at once.
	DefaultMaxConcurrent = 5

	// DefaultMaxWait is how long a request waits for a parse slot.
	DefaultMaxWait = 30 * time.Second
)

// Limiter bounds how many uploads are parsed at the same time. A request
// that cannot get a slot within maxWait fails with core.ErrTooManyUploads.
type Limiter struct {
	sem     *semaphore.Weighted
	max     int
	maxWait time.Duration
	active  atomic.Int64
}

// NewLimiter allows at most maxConcurrent parses.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Limiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     maxConcurrent,
		maxWait: maxWait,
	}
}

// Acquire takes a slot. The caller must Release it.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.ErrTooManyUploads
	}
	l.active.Add(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// ActiveCount returns the number of uploads holding a slot.
func (l *Limiter) ActiveCount() int {
	return int(l.active.Load())
}

// WaitForDrain blocks until no upload holds a slot or ctx is done.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot for health output.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

func (l *Limiter) Status() LimiterStatus {
	active := l.ActiveCount()
	return LimiterStatus{
		Active:        active,
		Available:     l.max - active,
		MaxConcurrent: l.max,
	}
}
