// Package limiter bounds the number of network and storage operations in
// flight across every record of a batch.
package limiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting semaphore that also tracks how many operations are
// running and the highest concurrency it has observed.
type Limiter struct {
	sem      *semaphore.Weighted
	size     int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// New returns a limiter admitting at most size concurrent operations.
func New(size int) *Limiter {
	if size < 1 {
		size = 1
	}
	return &Limiter{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Do runs fn once a slot is free. It returns ctx.Err() without running fn if
// the context ends first.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	n := l.inFlight.Add(1)
	defer l.inFlight.Add(-1)
	for {
		peak := l.peak.Load()
		if n <= peak || l.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	return fn(ctx)
}

// Size is the configured bound.
func (l *Limiter) Size() int { return int(l.size) }

// InFlight is the number of operations currently running.
func (l *Limiter) InFlight() int { return int(l.inFlight.Load()) }

// Peak is the highest number of simultaneous operations seen so far.
func (l *Limiter) Peak() int { return int(l.peak.Load()) }
