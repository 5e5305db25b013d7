package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream unavailable")

func TestCircuitBreakerPassesThroughSuccess(t *testing.T) {
	cb := NewCircuitBreaker()

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}
	if cb.State() != "closed" {
		t.Errorf("state = %q, want closed", cb.State())
	}
}

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          3,
		Timeout:              time.Minute,
		HalfOpenMaxSuccesses: 2,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(ctx, func() (interface{}, error) {
			return nil, errUpstream
		})
		if !errors.Is(err, errUpstream) {
			t.Fatalf("failure %d: err = %v, want upstream error", i, err)
		}
	}

	if cb.State() != "open" {
		t.Fatalf("state = %q, want open after 3 failures", cb.State())
	}

	// Open circuit rejects without invoking the function.
	called := false
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		called = true
		return "ok", nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("function was invoked while circuit open")
	}
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          1,
		Timeout:              10 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	})
	ctx := context.Background()

	if _, err := cb.Execute(ctx, func() (interface{}, error) { return nil, errUpstream }); err == nil {
		t.Fatal("expected failure")
	}
	if cb.State() != "open" {
		t.Fatalf("state = %q, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil }); err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}
	if cb.State() != "closed" {
		t.Errorf("state = %q, want closed after successful probe", cb.State())
	}
}

func TestCircuitBreakerRespectsContext(t *testing.T) {
	cb := NewCircuitBreaker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (interface{}, error) {
		t.Error("function should not run with cancelled context")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCircuitBreakerMetrics(t *testing.T) {
	cb := NewCircuitBreaker()
	ctx := context.Background()

	cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	cb.Execute(ctx, func() (interface{}, error) { return nil, errUpstream })

	m := cb.Metrics()
	if m.TotalRequests != 2 || m.TotalSuccesses != 1 || m.TotalFailures != 1 {
		t.Errorf("metrics = %+v", m)
	}
}
