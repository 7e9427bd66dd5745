package libroutine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parley-dev/parley/libroutine"
)

func TestUnit_BreakerClosedStateAllowsExecution(t *testing.T) {
	rm := libroutine.NewRoutine(3, time.Second)

	if !rm.Allow() {
		t.Errorf("expected Allow to return true in closed state")
	}

	err := rm.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("expected Execute to succeed, got error: %v", err)
	}
}

func TestUnit_BreakerOpensAfterFailures(t *testing.T) {
	rm := libroutine.NewRoutine(1, time.Minute)

	err := rm.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})
	if err == nil {
		t.Errorf("expected Execute to return an error")
	}

	if rm.Allow() {
		t.Errorf("expected Allow to return false after failure threshold exceeded")
	}
}

func TestUnit_BreakerHalfOpenAfterTimeout(t *testing.T) {
	rm := libroutine.NewRoutine(1, 100*time.Millisecond)

	_ = rm.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})

	time.Sleep(150 * time.Millisecond)

	// First call claims the half-open probe slot, the second is blocked
	// until the probe resolves.
	if !rm.Allow() {
		t.Errorf("expected Allow to return true in half-open state")
	}
	if rm.Allow() {
		t.Errorf("expected Allow to return false while the probe is in progress")
	}
}

func TestUnit_BreakerRecoversFromHalfOpenOnSuccess(t *testing.T) {
	rm := libroutine.NewRoutine(1, 100*time.Millisecond)

	_ = rm.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})

	time.Sleep(150 * time.Millisecond)

	err := rm.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("expected Execute to succeed in half-open state, got error: %v", err)
	}

	if !rm.Allow() {
		t.Errorf("expected Allow to return true after recovering from half-open state")
	}
}

func TestUnit_BreakerReopensAfterFailureInHalfOpen(t *testing.T) {
	rm := libroutine.NewRoutine(1, 100*time.Millisecond)

	_ = rm.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})

	time.Sleep(150 * time.Millisecond)

	_ = rm.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})

	if rm.Allow() {
		t.Errorf("expected Allow to return false after failure in half-open state")
	}
}

func TestUnit_BreakerLoopExecutesFunction(t *testing.T) {
	rm := libroutine.NewRoutine(1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	triggerChan := make(chan struct{})
	var callCount atomic.Int32
	fn := func(ctx context.Context) error {
		callCount.Add(1)
		return nil
	}

	go rm.Loop(ctx, 50*time.Millisecond, triggerChan, fn, func(err error) {})

	time.Sleep(175 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	if callCount.Load() < 2 {
		t.Errorf("expected loop to execute at least 2 calls, got %d", callCount.Load())
	}
}

func TestUnit_BreakerGetState(t *testing.T) {
	rm := libroutine.NewRoutine(2, time.Minute)

	if rm.GetState() != libroutine.Closed {
		t.Errorf("expected initial state to be Closed, got %v", rm.GetState())
	}

	rm.ForceOpen()
	if rm.GetState() != libroutine.Open {
		t.Errorf("expected state to be Open after ForceOpen, got %v", rm.GetState())
	}

	rm.ForceClose()
	if rm.GetState() != libroutine.Closed {
		t.Errorf("expected state to be Closed after ForceClose, got %v", rm.GetState())
	}
}

func TestUnit_BreakerAccessors(t *testing.T) {
	rm := libroutine.NewRoutine(3, 2*time.Second)

	if rm.GetThreshold() != 3 {
		t.Errorf("expected threshold to be 3, got %d", rm.GetThreshold())
	}
	if rm.GetResetTimeout() != 2*time.Second {
		t.Errorf("expected reset timeout to be 2 seconds, got %v", rm.GetResetTimeout())
	}
}

func TestUnit_BreakerForceOpenBlocks(t *testing.T) {
	rm := libroutine.NewRoutine(2, time.Minute)

	rm.ForceOpen()
	if rm.Allow() {
		t.Errorf("expected Allow to return false after ForceOpen")
	}

	rm.ForceClose()
	if !rm.Allow() {
		t.Errorf("expected Allow to return true after ForceClose")
	}
}

func TestUnit_ExecuteReturnsErrCircuitOpen(t *testing.T) {
	rm := libroutine.NewRoutine(1, time.Minute)
	rm.ForceOpen()

	err := rm.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("function should not have been executed when circuit is open")
		return nil
	})
	if !errors.Is(err, libroutine.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestUnit_ExecuteWithRetry(t *testing.T) {
	t.Run("SuccessFirstTry", func(t *testing.T) {
		rm := libroutine.NewRoutine(1, time.Minute)
		var callCount atomic.Int32
		err := rm.ExecuteWithRetry(context.Background(), 10*time.Millisecond, 3, func(ctx context.Context) error {
			callCount.Add(1)
			return nil
		})
		if err != nil {
			t.Errorf("expected success, got error: %v", err)
		}
		if callCount.Load() != 1 {
			t.Errorf("expected 1 call, got %d", callCount.Load())
		}
	})

	t.Run("SuccessAfterRetry", func(t *testing.T) {
		rm := libroutine.NewRoutine(5, time.Minute)
		var callCount atomic.Int32
		testErr := errors.New("retry error")
		err := rm.ExecuteWithRetry(context.Background(), 10*time.Millisecond, 5, func(ctx context.Context) error {
			if callCount.Add(1) < 3 {
				return testErr
			}
			return nil
		})
		if err != nil {
			t.Errorf("expected success after retries, got error: %v", err)
		}
		if callCount.Load() != 3 {
			t.Errorf("expected 3 calls, got %d", callCount.Load())
		}
	})

	t.Run("FailureAllRetries", func(t *testing.T) {
		rm := libroutine.NewRoutine(5, time.Minute)
		var callCount atomic.Int32
		testErr := errors.New("persistent error")
		err := rm.ExecuteWithRetry(context.Background(), 10*time.Millisecond, 3, func(ctx context.Context) error {
			callCount.Add(1)
			return testErr
		})
		if !errors.Is(err, testErr) {
			t.Errorf("expected persistent error %v, got %v", testErr, err)
		}
		if callCount.Load() != 3 {
			t.Errorf("expected 3 calls, got %d", callCount.Load())
		}
	})

	t.Run("FailureCircuitOpen", func(t *testing.T) {
		rm := libroutine.NewRoutine(1, time.Minute)
		var callCount atomic.Int32
		fail := func(ctx context.Context) error {
			callCount.Add(1)
			return errors.New("failure")
		}
		_ = rm.Execute(context.Background(), fail)
		if rm.GetState() != libroutine.Open {
			t.Fatalf("circuit should be open")
		}

		callCount.Store(0)
		err := rm.ExecuteWithRetry(context.Background(), 10*time.Millisecond, 3, fail)
		if !errors.Is(err, libroutine.ErrCircuitOpen) {
			t.Errorf("expected ErrCircuitOpen, got %v", err)
		}
		if callCount.Load() != 0 {
			t.Errorf("expected 0 calls while open, got %d", callCount.Load())
		}
	})
}
