package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/starfall-ai/starfall-backend/pkg/errors"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestBreaker(clock *fakeClock) *Breaker {
	return New(Options{
		FailureThreshold: 3,
		FailureWindow:    time.Minute,
		OpenDuration:     30 * time.Second,
		Now:              clock.Now,
	})
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	for i := 0; i < 2; i++ {
		b.RecordFailure("kie")
		if b.IsOpen("kie") {
			t.Fatalf("circuit open after %d failures", i+1)
		}
	}
	b.RecordFailure("kie")
	if !b.IsOpen("kie") {
		t.Fatal("expected circuit open after threshold failures")
	}
}

func TestBreakerClosesAfterOpenDuration(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure("kie")
	}
	if !b.IsOpen("kie") {
		t.Fatal("expected open circuit")
	}

	clock.Advance(31 * time.Second)
	if b.IsOpen("kie") {
		t.Fatal("expected circuit closed after open duration elapsed")
	}

	// The probe call after expiry runs as a normal closed-state call.
	err := b.Run(context.Background(), "kie", func(context.Context) error {
		return errors.New("still down")
	})
	if err == nil {
		t.Fatal("expected probe error surfaced")
	}
	if b.IsOpen("kie") {
		t.Fatal("one probe failure must not reopen the circuit")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	b.RecordFailure("kie")
	b.RecordFailure("kie")
	b.RecordSuccess("kie")
	b.RecordFailure("kie")
	b.RecordFailure("kie")
	if b.IsOpen("kie") {
		t.Fatal("success should have reset the failure count")
	}
}

func TestBreakerWindowExpiryResetsCount(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	b.RecordFailure("kie")
	b.RecordFailure("kie")
	clock.Advance(2 * time.Minute)
	b.RecordFailure("kie")
	if b.IsOpen("kie") {
		t.Fatal("failures outside the window must not count toward the threshold")
	}
}

func TestBreakerRunRejectsWhenOpen(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure("kie")
	}

	called := false
	err := b.Run(context.Background(), "kie", func(context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Fatal("fn must not be invoked while the circuit is open")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeCircuitOpen) {
		t.Fatalf("expected CIRCUIT_OPEN, got %v", err)
	}
}

func TestBreakerKeysAreIndependent(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure("kie")
	}
	if b.IsOpen("minimax") {
		t.Fatal("unrelated key should stay closed")
	}
}
