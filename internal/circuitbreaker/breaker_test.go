package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/testutil"
)

const key = "transform"

func newBreaker(threshold int) (*CircuitBreaker, *testutil.FakeClock) {
	clock := testutil.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(threshold, 10*time.Second).WithClock(clock.Now), clock
}

func TestAllow_UnknownKeyAllowed(t *testing.T) {
	cb, _ := newBreaker(3)
	if err := cb.Allow(key); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if cb.State(key) != "closed" {
		t.Errorf("state = %s", cb.State(key))
	}
}

func TestAllow_BelowThresholdAllowed(t *testing.T) {
	cb, _ := newBreaker(3)
	cb.RecordFailure(key)
	cb.RecordFailure(key)
	if err := cb.Allow(key); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_AtThresholdOpens(t *testing.T) {
	cb, _ := newBreaker(3)
	for i := 0; i < 3; i++ {
		cb.RecordFailure(key)
	}
	if err := cb.Allow(key); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if cb.State(key) != "open" {
		t.Errorf("state = %s, want open", cb.State(key))
	}
}

func TestAllow_CooldownAllowsSingleProbe(t *testing.T) {
	cb, clock := newBreaker(1)
	cb.RecordFailure(key)
	clock.Advance(11 * time.Second)

	if err := cb.Allow(key); err != nil {
		t.Fatalf("probe should be allowed, got %v", err)
	}
	if err := cb.Allow(key); !errors.Is(err, ErrCircuitOpen) {
		t.Fatal("second call during probe should be rejected")
	}
	if cb.State(key) != "half_open" {
		t.Errorf("state = %s, want half_open", cb.State(key))
	}
}

func TestRecordSuccess_Closes(t *testing.T) {
	cb, clock := newBreaker(1)
	cb.RecordFailure(key)
	clock.Advance(11 * time.Second)
	_ = cb.Allow(key)
	cb.RecordSuccess(key)

	if err := cb.Allow(key); err != nil {
		t.Fatalf("expected closed after success, got %v", err)
	}
}

func TestRecordFailure_HalfOpenReopens(t *testing.T) {
	cb, clock := newBreaker(3)
	for i := 0; i < 3; i++ {
		cb.RecordFailure(key)
	}
	clock.Advance(11 * time.Second)
	_ = cb.Allow(key)
	cb.RecordSuccess(key)

	// One failure after recovery does not reopen a threshold-3 breaker...
	cb.RecordFailure(key)
	if err := cb.Allow(key); err != nil {
		t.Fatalf("expected closed, got %v", err)
	}

	// ...but a failed probe does.
	cb.RecordFailure(key)
	cb.RecordFailure(key)
	clock.Advance(11 * time.Second)
	_ = cb.Allow(key)
	cb.RecordFailure(key)
	if err := cb.Allow(key); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("failed probe should reopen, got %v", err)
	}
}

func TestIndependentKeys(t *testing.T) {
	cb, _ := newBreaker(1)
	cb.RecordFailure("transform")
	if err := cb.Allow("deploysync"); err != nil {
		t.Errorf("other key affected: %v", err)
	}
}
