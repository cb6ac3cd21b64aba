package circuit

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/gdrivefs/gdrivefs/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func failing() error { return stderrors.New("failure") }

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state State
		want  string
	}{
		{"Closed state", StateClosed, "CLOSED"},
		{"Open state", StateOpen, "OPEN"},
		{"Half-open state", StateHalfOpen, "HALF_OPEN"},
		{"Unknown state", State(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("State.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("gdrive", Config{})

	if cb.Name() != "gdrive" {
		t.Errorf("name = %q, want %q", cb.Name(), "gdrive")
	}
	if cb.GetState() != StateClosed {
		t.Errorf("initial state = %v, want %v", cb.GetState(), StateClosed)
	}
	if cb.config.FailureThreshold != 5 {
		t.Errorf("default FailureThreshold = %d, want 5", cb.config.FailureThreshold)
	}
	if cb.config.Timeout != 30*time.Second {
		t.Errorf("default Timeout = %v, want 30s", cb.config.Timeout)
	}
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", Config{FailureThreshold: 3})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(failing)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("state after 2 failures = %v, want CLOSED", cb.GetState())
	}

	_ = cb.Execute(failing)
	if cb.GetState() != StateOpen {
		t.Fatalf("state after 3 failures = %v, want OPEN", cb.GetState())
	}

	calls := 0
	err := cb.Execute(func() error {
		calls++
		return nil
	})
	if !stderrors.Is(err, errors.ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want CIRCUIT_OPEN", err)
	}
	if calls != 0 {
		t.Error("function should not have been called when circuit is open")
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", Config{FailureThreshold: 2})

	_ = cb.Execute(failing)
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(failing)

	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want CLOSED", cb.GetState())
	}
	if got := cb.GetCounts().TotalFailures; got != 2 {
		t.Errorf("TotalFailures = %d, want 2", got)
	}
}

func TestCircuitBreaker_NotFoundIsNotAFailure(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", Config{FailureThreshold: 1})

	err := cb.Execute(func() error { return errors.NotFound("/missing") })
	if !errors.IsNotFound(err) {
		t.Errorf("error should pass through unchanged, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want CLOSED", cb.GetState())
	}
}

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	var transitions []string

	cb := NewCircuitBreaker("test", Config{
		FailureThreshold: 1,
		Timeout:          10 * time.Second,
		Now:              clock.Now,
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(failing)
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want OPEN", cb.GetState())
	}

	clock.Advance(9 * time.Second)
	if cb.GetState() != StateOpen {
		t.Fatalf("state before timeout = %v, want OPEN", cb.GetState())
	}

	clock.Advance(time.Second)
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("state after timeout = %v, want HALF_OPEN", cb.GetState())
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state after probe = %v, want CLOSED", cb.GetState())
	}

	want := []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := NewCircuitBreaker("test", Config{FailureThreshold: 1, Timeout: time.Second, Now: clock.Now})

	_ = cb.Execute(failing)
	clock.Advance(time.Second)
	_ = cb.Execute(failing)

	if cb.GetState() != StateOpen {
		t.Errorf("state = %v, want OPEN", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpen_TooManyRequests(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := NewCircuitBreaker("test", Config{FailureThreshold: 1, Timeout: time.Second, Now: clock.Now})

	_ = cb.Execute(failing)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(func() error { return nil })
	close(release)

	if errors.Code(err) != errors.ErrCodeCircuitOpen {
		t.Errorf("second probe error = %v, want CIRCUIT_OPEN", err)
	}
}

func TestCircuitBreaker_ExecuteWithContext(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", Config{})

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")

	err := cb.ExecuteWithContext(ctx, func(ctx context.Context) error {
		if ctx.Value(key{}) != "v" {
			t.Error("context not propagated")
		}
		return nil
	})
	if err != nil {
		t.Errorf("ExecuteWithContext() error = %v", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", Config{FailureThreshold: 1})
	_ = cb.Execute(failing)

	cb.Reset()

	if cb.GetState() != StateClosed {
		t.Errorf("state after reset = %v, want CLOSED", cb.GetState())
	}
	if cb.GetCounts() != (Counts{}) {
		t.Errorf("counts after reset = %+v, want zero", cb.GetCounts())
	}
}
