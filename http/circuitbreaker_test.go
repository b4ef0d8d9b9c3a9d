package http

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, recovery time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:    threshold,
		RecoveryTimeout:     recovery,
		HalfOpenMaxRequests: 1,
	})
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreakerInitialState(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if got := cb.State("example.com"); got != CircuitClosed {
		t.Errorf("State() = %v, want closed", got)
	}
	if err := cb.Allow("example.com"); err != nil {
		t.Errorf("Allow() in closed state = %v", err)
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure("example.com")
	cb.RecordFailure("example.com")
	if got := cb.State("example.com"); got != CircuitClosed {
		t.Fatalf("State() after 2 failures = %v, want closed", got)
	}

	cb.RecordFailure("example.com")
	if got := cb.State("example.com"); got != CircuitOpen {
		t.Fatalf("State() after 3 failures = %v, want open", got)
	}

	err := cb.Allow("example.com")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() = %v, want ErrCircuitOpen", err)
	}
	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) || openErr.Host != "example.com" {
		t.Errorf("Allow() error = %#v, want *CircuitOpenError for example.com", err)
	}
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(2, 30*time.Second)

	cb.RecordFailure("example.com")
	cb.RecordSuccess("example.com")
	cb.RecordFailure("example.com")

	if got := cb.State("example.com"); got != CircuitClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(1, 10*time.Second)

	cb.RecordFailure("example.com")
	clock.advance(10 * time.Second)

	if got := cb.State("example.com"); got != CircuitHalfOpen {
		t.Fatalf("State() after recovery timeout = %v, want half-open", got)
	}
	if err := cb.Allow("example.com"); err != nil {
		t.Fatalf("first trial Allow() = %v", err)
	}
	if err := cb.Allow("example.com"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second trial Allow() = %v, want ErrCircuitOpen", err)
	}

	cb.RecordSuccess("example.com")
	if got := cb.State("example.com"); got != CircuitClosed {
		t.Errorf("State() after successful trial = %v, want closed", got)
	}
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, 10*time.Second)

	cb.RecordFailure("example.com")
	clock.advance(11 * time.Second)
	if err := cb.Allow("example.com"); err != nil {
		t.Fatalf("trial Allow() = %v", err)
	}

	cb.RecordFailure("example.com")
	if got := cb.State("example.com"); got != CircuitOpen {
		t.Errorf("State() after failed trial = %v, want open", got)
	}
}

func TestCircuitBreakerHostsAreIndependent(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)

	cb.RecordFailure("a.example.com")
	if err := cb.Allow("b.example.com"); err != nil {
		t.Errorf("Allow(b) = %v, want nil", err)
	}
	cb.Reset("a.example.com")
	if err := cb.Allow("a.example.com"); err != nil {
		t.Errorf("Allow(a) after Reset = %v, want nil", err)
	}
}

func TestCircuitStateString(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
