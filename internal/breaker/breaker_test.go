package breaker

import (
	"testing"
	"time"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := New(3, time.Minute)

	if b.IsOpen() {
		t.Error("New breaker should be closed")
	}

	b.RecordFailure()
	b.RecordFailure()
	if b.IsOpen() {
		t.Error("Breaker should stay closed below the threshold")
	}

	b.RecordFailure()
	if !b.IsOpen() {
		t.Error("Breaker should open at the threshold")
	}
}

func TestBreaker_SuccessDecrementsCounter(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("Breaker should be open after 3 failures")
	}

	// A success drops the counter below the threshold without waiting
	// for the timeout.
	b.RecordSuccess()
	if b.Failures() != 2 {
		t.Errorf("Expected 2 failures after success, got %d", b.Failures())
	}
	if b.IsOpen() {
		t.Error("Breaker should close once the counter drops below the threshold")
	}
}

func TestBreaker_SuccessFlooredAtZero(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordSuccess()
	b.RecordSuccess()
	if b.Failures() != 0 {
		t.Errorf("Failure counter should be floored at zero, got %d", b.Failures())
	}
}

func TestBreaker_AutoResetAfterTimeout(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("Breaker should be open")
	}

	// Move the last failure back past the reset timeout to simulate the
	// window elapsing.
	b.mutex.Lock()
	b.lastFailure = time.Now().Add(-61 * time.Second)
	b.mutex.Unlock()

	if b.IsOpen() {
		t.Error("Breaker should auto-reset after the timeout elapses")
	}

	if b.Failures() != 0 {
		t.Errorf("Auto-reset should zero the counter, got %d", b.Failures())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := New(2, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("Breaker should be open")
	}

	b.Reset()
	if b.IsOpen() {
		t.Error("Breaker should be closed after explicit reset")
	}
	if b.Failures() != 0 {
		t.Errorf("Reset should zero the counter, got %d", b.Failures())
	}
}
