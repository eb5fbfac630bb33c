package auth

import (
	"testing"
	"time"
)

func TestLockoutAfterThreshold(t *testing.T) {
	rl := NewRateLimiter(5, 5*time.Minute)

	for i := 0; i < 4; i++ {
		rl.RecordFailure("KN4XYZ")
	}
	if rl.IsLocked("KN4XYZ") {
		t.Error("locked after 4 failures, threshold is 5")
	}

	rl.RecordFailure("KN4XYZ")
	if !rl.IsLocked("KN4XYZ") {
		t.Error("not locked after 5 failures")
	}

	// Other identities are unaffected
	if rl.IsLocked("W1AW") {
		t.Error("unrelated identity locked")
	}
}

func TestWindowSlides(t *testing.T) {
	rl := NewRateLimiter(5, 5*time.Minute)

	base := time.Now()
	now := base
	rl.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		rl.RecordFailure("KN4XYZ")
	}
	if !rl.IsLocked("KN4XYZ") {
		t.Fatal("expected lockout")
	}

	// Past the window the failures age out and the history is empty.
	now = base.Add(5*time.Minute + time.Second)
	if rl.IsLocked("KN4XYZ") {
		t.Error("still locked after window elapsed")
	}
	if len(rl.failures["KN4XYZ"]) != 0 {
		t.Errorf("attempt history not cleared: %d entries", len(rl.failures["KN4XYZ"]))
	}
}

func TestPartialExpiry(t *testing.T) {
	rl := NewRateLimiter(5, 5*time.Minute)

	base := time.Now()
	now := base
	rl.now = func() time.Time { return now }

	// 3 old failures, then 2 fresh ones 4 minutes later
	for i := 0; i < 3; i++ {
		rl.RecordFailure("KN4XYZ")
	}
	now = base.Add(4 * time.Minute)
	rl.RecordFailure("KN4XYZ")
	rl.RecordFailure("KN4XYZ")

	if !rl.IsLocked("KN4XYZ") {
		t.Error("5 failures inside window should lock")
	}

	// 5m30s after base: the first 3 aged out, only 2 remain
	now = base.Add(5*time.Minute + 30*time.Second)
	if rl.IsLocked("KN4XYZ") {
		t.Error("locked with only 2 failures in window")
	}
}

func TestRecordSuccessClearsWindow(t *testing.T) {
	rl := NewRateLimiter(5, 5*time.Minute)

	for i := 0; i < 5; i++ {
		rl.RecordFailure("KN4XYZ")
	}
	rl.RecordSuccess("KN4XYZ")

	if rl.IsLocked("KN4XYZ") {
		t.Error("locked after RecordSuccess")
	}
}

func TestIdentityCaseNormalized(t *testing.T) {
	rl := NewRateLimiter(2, 5*time.Minute)

	rl.RecordFailure("kn4xyz")
	rl.RecordFailure("Kn4Xyz")

	if !rl.IsLocked("KN4XYZ") {
		t.Error("failures recorded under case variants should count together")
	}
}
