package detection

import (
	"context"
	"sync/atomic"
)

// AdaptiveLimiter is an AIMD admission gate for the detection worker pool:
// it grows its concurrency ceiling by one slot per successful follow-up
// (OnSuccess) and queues a halving on every failure (OnFailure), bounding
// how many -sV follow-ups run concurrently. The rate controller does not
// use this shape; it redistributes per-target quotas from EWMA rates.
type AdaptiveLimiter struct {
	sem             chan struct{}
	capacity        int32
	maxCapacity     int32
	reductionNeeded int32
}

// NewAdaptiveLimiter starts at initial concurrency slots, capped at max.
func NewAdaptiveLimiter(initial, max int) *AdaptiveLimiter {
	if initial < 1 {
		initial = 1
	}
	if max < initial {
		max = initial
	}
	l := &AdaptiveLimiter{
		sem:         make(chan struct{}, max),
		capacity:    int32(initial),
		maxCapacity: int32(max),
	}
	for i := 0; i < initial; i++ {
		l.sem <- struct{}{}
	}
	return l
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (l *AdaptiveLimiter) Acquire(ctx context.Context) error {
	select {
	case <-l.sem:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot, applying any capacity reduction queued by a
// recent OnFailure before the slot re-enters circulation.
func (l *AdaptiveLimiter) Release() {
	if atomic.LoadInt32(&l.reductionNeeded) > 0 {
		atomic.AddInt32(&l.reductionNeeded, -1)
		atomic.AddInt32(&l.capacity, -1)
		return
	}
	l.sem <- struct{}{}
}

// OnSuccess additively grows capacity by one slot, up to maxCapacity.
func (l *AdaptiveLimiter) OnSuccess() {
	if atomic.LoadInt32(&l.capacity) >= l.maxCapacity {
		return
	}
	atomic.AddInt32(&l.capacity, 1)
	select {
	case l.sem <- struct{}{}:
	default:
	}
}

// OnFailure halves capacity, queuing the reduction so it is paid for by
// the next Release calls rather than shrinking the channel buffer
// directly (which Go's channels don't support in place).
func (l *AdaptiveLimiter) OnFailure() {
	cur := atomic.LoadInt32(&l.capacity)
	reduceBy := cur / 2
	if reduceBy < 1 {
		reduceBy = 1
	}
	atomic.AddInt32(&l.reductionNeeded, reduceBy)
}

// Capacity reports the current concurrency ceiling.
func (l *AdaptiveLimiter) Capacity() int {
	return int(atomic.LoadInt32(&l.capacity))
}
