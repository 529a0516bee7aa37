package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_StateClosed(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state to be Closed, got %s", cb.GetState())
	}

	if !cb.allowRequest() {
		t.Error("Expected to allow request in Closed state")
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	cb.RecordResult(false)
	cb.RecordResult(false)
	if cb.GetState() != StateClosed {
		t.Error("Expected state to still be Closed after 2 failures")
	}

	// Third failure should open circuit
	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after 3 failures")
	}

	if cb.allowRequest() {
		t.Error("Expected to not allow request in Open state")
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 50*time.Millisecond)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(false)

	if cb.GetState() != StateOpen {
		t.Fatal("Expected circuit to be Open")
	}

	time.Sleep(80 * time.Millisecond)

	if !cb.allowRequest() {
		t.Error("Expected to allow request after timeout (HalfOpen)")
	}

	state, _, _, _ := cb.GetStats()
	if state != StateHalfOpen {
		t.Errorf("Expected state to be HalfOpen, got %s", state)
	}

	// Trial requests are limited while half-open
	cb.allowRequest()
	cb.allowRequest()
	if cb.allowRequest() {
		t.Error("Expected half-open trial requests to be capped")
	}
}

func TestCircuitBreaker_CloseAfterSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 50*time.Millisecond)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(false)

	time.Sleep(80 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("Expected trial call %d to pass, got %v", i, err)
		}
	}

	if cb.GetState() != StateClosed {
		t.Error("Expected state to be Closed after successes in HalfOpen")
	}
}

func TestCircuitBreaker_OpenAfterFailureInHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 50*time.Millisecond)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(false)

	time.Sleep(80 * time.Millisecond)

	_ = cb.Call(func() error { return errors.New("still down") })

	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after failure in HalfOpen")
	}
}

func TestCircuitBreaker_Call(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	if err := cb.Call(func() error { return nil }); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if err := cb.Call(func() error { return errors.New("test error") }); err == nil {
		t.Error("Expected error from failed call")
	}
}

func TestCircuitBreaker_CallOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 1*time.Second)

	cb.RecordResult(false)

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected function not to run while the circuit is open")
	}
}

func TestCircuitBreaker_FailurePredicate(t *testing.T) {
	clientErr := errors.New("400 bad request")
	cb := NewCircuitBreaker("test", 1, 1*time.Second).
		WithFailurePredicate(func(err error) bool { return !errors.Is(err, clientErr) })

	if err := cb.Call(func() error { return clientErr }); !errors.Is(err, clientErr) {
		t.Errorf("Expected client error to pass through, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Error("Expected ignored errors not to open the circuit")
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var states []CircuitState
	cb := NewCircuitBreaker("upload", 1, 1*time.Second).
		OnStateChange(func(name string, state CircuitState) {
			if name != "upload" {
				t.Errorf("Expected name 'upload', got '%s'", name)
			}
			states = append(states, state)
		})

	cb.RecordResult(false)
	cb.Reset()

	if len(states) != 2 || states[0] != StateOpen || states[1] != StateClosed {
		t.Errorf("Expected [open closed] transitions, got %v", states)
	}
}

func TestCircuitBreaker_GetStats(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	cb.RecordResult(true)
	cb.RecordResult(true)
	cb.RecordResult(false)

	state, requestCount, failureCount, failureRate := cb.GetStats()

	if state != StateClosed {
		t.Errorf("Expected state Closed, got %s", state)
	}
	if requestCount != 3 {
		t.Errorf("Expected 3 requests, got %d", requestCount)
	}
	if failureCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failureCount)
	}
	if failureRate < 33.0 || failureRate > 34.0 {
		t.Errorf("Expected failure rate around 33.33%%, got %.2f%%", failureRate)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(false)

	if cb.GetState() != StateOpen {
		t.Fatal("Expected circuit to be Open")
	}

	cb.Reset()

	state, requestCount, failureCount, _ := cb.GetStats()
	if state != StateClosed || requestCount != 0 || failureCount != 0 {
		t.Error("Expected stats to be reset")
	}
}
