// Package libroutine provides a circuit breaker and a keyed background
// loop group for supervising periodic operations.
package libroutine

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker blocks calls.
var ErrCircuitOpen = errors.New("libroutine: circuit open")

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Routine is a circuit breaker around one recurring operation. After
// threshold consecutive failures it opens; after resetTimeout it lets a
// single probe call through and closes again on success.
type Routine struct {
	mu           sync.Mutex
	state        State
	failures     int
	threshold    int
	resetTimeout time.Duration
	openedAt     time.Time
	probing      bool
}

// NewRoutine creates a breaker in the closed state.
func NewRoutine(threshold int, resetTimeout time.Duration) *Routine {
	return &Routine{
		state:        Closed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
	}
}

// Allow reports whether a call may proceed, transitioning Open to
// HalfOpen once the reset timeout elapsed. In HalfOpen the first Allow
// claims the probe slot; further calls are blocked until the probe
// resolves.
func (r *Routine) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case Closed:
		return true
	case Open:
		if time.Since(r.openedAt) >= r.resetTimeout {
			r.state = HalfOpen
			r.probing = true
			return true
		}
		return false
	case HalfOpen:
		if r.probing {
			return false
		}
		r.probing = true
		return true
	default:
		return false
	}
}

// Execute runs fn under the breaker. It returns ErrCircuitOpen without
// calling fn when the breaker blocks.
func (r *Routine) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(ctx); err != nil {
		r.markFailure()
		return err
	}
	r.markSuccess()
	return nil
}

// ExecuteWithRetry runs fn up to maxAttempts times, waiting interval
// between attempts. It gives up immediately when the breaker opens.
func (r *Routine) ExecuteWithRetry(ctx context.Context, interval time.Duration, maxAttempts int, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := r.Execute(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		lastErr = err
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return lastErr
}

// Loop runs fn under the breaker on every tick of interval and on every
// signal from trigger, until ctx is cancelled. onError receives every
// non-nil Execute error, ErrCircuitOpen included.
func (r *Routine) Loop(ctx context.Context, interval time.Duration, trigger chan struct{}, fn func(ctx context.Context) error, onError func(error)) {
	run := func() {
		if err := r.Execute(ctx, fn); err != nil && onError != nil {
			onError(err)
		}
	}
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		case <-trigger:
			run()
		}
	}
}

func (r *Routine) markSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Closed
	r.failures = 0
	r.probing = false
}

func (r *Routine) markFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures++
	if r.state == HalfOpen || r.failures >= r.threshold {
		r.state = Open
		r.openedAt = time.Now()
		r.probing = false
	}
}

// GetState returns the current breaker state.
func (r *Routine) GetState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Surface the pending transition so pollers observe HalfOpen
	// without having to race an Allow call.
	if r.state == Open && time.Since(r.openedAt) >= r.resetTimeout {
		return HalfOpen
	}
	return r.state
}

// GetThreshold returns the configured failure threshold.
func (r *Routine) GetThreshold() int {
	return r.threshold
}

// GetResetTimeout returns the configured reset timeout.
func (r *Routine) GetResetTimeout() time.Duration {
	return r.resetTimeout
}

// ForceOpen opens the breaker regardless of failure count.
func (r *Routine) ForceOpen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Open
	r.openedAt = time.Now()
	r.probing = false
}

// ForceClose closes the breaker and clears the failure count.
func (r *Routine) ForceClose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Closed
	r.failures = 0
	r.probing = false
}
