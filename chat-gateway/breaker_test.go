package main

import (
	"sync"
	"testing"
	"time"
)

func TestCircuitBreaker_TripThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		failures  int
		wantOpen  bool
	}{
		{"below threshold", 3, 2, false},
		{"at threshold", 3, 3, true},
		{"above threshold", 3, 5, true},
		{"single failure threshold", 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker(tt.threshold, 30)
			for i := 0; i < tt.failures; i++ {
				cb.RecordFailure()
			}
			isOpen := cb.State() == CircuitBreakerOpen
			if isOpen != tt.wantOpen {
				t.Errorf("Expected open=%v, got open=%v (state=%v)", tt.wantOpen, isOpen, cb.State())
			}
		})
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 30)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != CircuitBreakerClosed {
		t.Errorf("Expected state to be Closed after a success reset the count, got %v", cb.State())
	}
}

func TestCircuitBreaker_OpenBlocksUntilCooldown(t *testing.T) {
	cb := NewCircuitBreaker(1, 1)

	cb.RecordFailure()
	if cb.Allow() {
		t.Error("Expected Allow() to return false while open")
	}

	time.Sleep(1100 * time.Millisecond)

	if !cb.Allow() {
		t.Error("Expected Allow() to return true after cooldown period (half-open)")
	}
	if cb.State() != CircuitBreakerHalfOpen {
		t.Errorf("Expected state to be HalfOpen after cooldown, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenOutcome(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		cb := NewCircuitBreaker(1, 1)
		cb.RecordFailure()
		time.Sleep(1100 * time.Millisecond)
		cb.Allow()
		cb.RecordSuccess()
		if cb.State() != CircuitBreakerClosed {
			t.Errorf("Expected state to be Closed after probe success, got %v", cb.State())
		}
	})

	t.Run("failure reopens", func(t *testing.T) {
		cb := NewCircuitBreaker(5, 1)
		for i := 0; i < 5; i++ {
			cb.RecordFailure()
		}
		time.Sleep(1100 * time.Millisecond)
		cb.Allow()
		cb.RecordFailure()
		if cb.State() != CircuitBreakerOpen {
			t.Errorf("Expected state to be Open after probe failure, got %v", cb.State())
		}
		if cb.Allow() {
			t.Error("Expected Allow() to return false right after reopening")
		}
	})
}

func TestCircuitBreaker_Concurrency(t *testing.T) {
	cb := NewCircuitBreaker(100, 30)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				cb.Allow()
				cb.RecordFailure()
				cb.RecordSuccess()
			}
		}()
	}
	wg.Wait()

	if cb.State() != CircuitBreakerClosed {
		t.Errorf("Expected state to be Closed after balanced load, got %v", cb.State())
	}
}
