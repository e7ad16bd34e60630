package limiters

import (
	"errors"
	"time"
)

// Verdict is the outcome of LockoutPolicy.Decide.
type Verdict uint8

const (
	// IncrementOnly means the failure is counted and login is refused as a
	// plain credential error.
	IncrementOnly Verdict = iota
	// ShouldLock means this failure reaches the threshold. The caller stores
	// LockUntil and refuses with the lockout error.
	ShouldLock
	// Locked means a lockout window is active. The counter must not change.
	Locked
)

func (v Verdict) String() string {
	switch v {
	case ShouldLock:
		return "should_lock"
	case Locked:
		return "locked"
	default:
		return "increment_only"
	}
}

// Decision is returned by LockoutPolicy.Decide.
type Decision struct {
	Verdict Verdict
	// Remaining is the time left on an active lock (Locked only).
	Remaining time.Duration
	// LockUntil is the new lock expiry (ShouldLock only).
	LockUntil time.Time
}

// LockoutPolicy locks an account for LockDuration once MaxAttempts
// consecutive failures are recorded.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// Validate checks the policy bounds.
func (p LockoutPolicy) Validate() error {
	if p.MaxAttempts <= 0 {
		return errors.New("lockout max attempts must be > 0")
	}
	if p.LockDuration <= 0 {
		return errors.New("lockout duration must be > 0")
	}
	return nil
}

// Decide evaluates a failed login given the stored counter and lock expiry.
// An active lock always wins; the counter is only consulted once the lock has
// lapsed or was never set.
func (p LockoutPolicy) Decide(failedAttempts int, lockUntil *time.Time, now time.Time) Decision {
	if lockUntil != nil && lockUntil.After(now) {
		return Decision{Verdict: Locked, Remaining: lockUntil.Sub(now)}
	}
	if failedAttempts+1 >= p.MaxAttempts {
		return Decision{Verdict: ShouldLock, LockUntil: now.Add(p.LockDuration)}
	}
	return Decision{Verdict: IncrementOnly}
}

// IsLocked reports whether lockUntil is still in the future at now.
func IsLocked(lockUntil *time.Time, now time.Time) bool {
	return lockUntil != nil && lockUntil.After(now)
}
