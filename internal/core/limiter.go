package core

// limiter.go bounds how many dependency cascades run at once.
//
// A cascade rebuilds every table merged from an updated source, which can
// mean re-running several joins and calculated columns. The limiter is a
// semaphore: when all slots are taken a new cascade waits up to maxWait and
// then fails with ErrTooManyCascades. WaitForDrain blocks shutdown until
// running cascades finish.

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMaxActiveCascades = 2
	DefaultCascadeWait       = 30 * time.Second
)

// CascadeLimiter is a semaphore over cascade runs.
type CascadeLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.Mutex
	active int
	idle   *sync.Cond
}

// NewCascadeLimiter allows maxActive concurrent cascades. Non-positive
// arguments select the defaults.
func NewCascadeLimiter(maxActive int, maxWait time.Duration) *CascadeLimiter {
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveCascades
	}
	if maxWait <= 0 {
		maxWait = DefaultCascadeWait
	}
	l := &CascadeLimiter{
		semaphore: make(chan struct{}, maxActive),
		maxWait:   maxWait,
	}
	l.idle = sync.NewCond(&l.mu)
	return l
}

// Acquire takes a slot, waiting at most maxWait. The caller must call
// Release exactly once after a nil return.
func (l *CascadeLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-timer.C:
		return ErrTooManyCascades
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *CascadeLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *CascadeLimiter) Release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		l.idle.Broadcast()
	}
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of running cascades.
func (l *CascadeLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// WaitForDrain blocks until no cascade is running or ctx is done.
func (l *CascadeLimiter) WaitForDrain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.mu.Lock()
		for l.active > 0 && ctx.Err() == nil {
			l.idle.Wait()
		}
		l.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// wake the waiter so it observes ctx.Err and exits
		l.mu.Lock()
		l.idle.Broadcast()
		l.mu.Unlock()
		return ctx.Err()
	}
}

// LimiterStatus is a point-in-time view of the limiter.
type LimiterStatus struct {
	Active    int `json:"active"`
	Available int `json:"available"`
	MaxActive int `json:"max_active"`
}

// Status returns the current limiter state for health output.
func (l *CascadeLimiter) Status() LimiterStatus {
	l.mu.Lock()
	active := l.active
	l.mu.Unlock()

	return LimiterStatus{
		Active:    active,
		Available: cap(l.semaphore) - len(l.semaphore),
		MaxActive: cap(l.semaphore),
	}
}
