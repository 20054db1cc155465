// Package backoff describes how long to wait between retry attempts and
// when to stop retrying. A [Policy] is a plain value: it holds no state, and
// the attempt number is always supplied by the caller.
package backoff

import (
	"errors"
	"math"
	"time"
)

// Policy produces a bounded, deterministic sequence of delays.
//
// Attempts are numbered from 1. After attempt n fails, the caller waits
// NextDelay(n) before attempt n+1, unless Exhausted(n) reports that the
// budget is spent.
type Policy struct {
	InitialDelay time.Duration // delay after the first failed attempt
	Coefficient  float64       // growth factor applied per attempt, >= 1
	MaxDelay     time.Duration // cap on a single delay; 0 means uncapped
	MaxAttempts  int           // total attempts including the first, >= 1
}

// Default returns the policy used by counter operations unless overridden.
func Default() Policy {
	return Policy{
		InitialDelay: time.Millisecond,
		Coefficient:  2,
		MaxDelay:     10 * time.Second,
		MaxAttempts:  10,
	}
}

// Validate reports whether the policy's parameters are usable.
func (p Policy) Validate() error {
	var errs []error
	if p.InitialDelay < 0 {
		errs = append(errs, errors.New("backoff: initial delay cannot be negative"))
	}
	if p.MaxDelay < 0 {
		errs = append(errs, errors.New("backoff: max delay cannot be negative"))
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.InitialDelay {
		errs = append(errs, errors.New("backoff: max delay must be >= initial delay"))
	}
	if math.IsNaN(p.Coefficient) || p.Coefficient < 1 {
		errs = append(errs, errors.New("backoff: coefficient must be >= 1"))
	}
	if p.MaxAttempts < 1 {
		errs = append(errs, errors.New("backoff: max attempts must be >= 1"))
	}
	return errors.Join(errs...)
}

// NextDelay returns the delay to wait after the given failed attempt.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialDelay) * math.Pow(p.Coefficient, float64(attempt-1))

	ceiling := float64(math.MaxInt64)
	if p.MaxDelay > 0 {
		ceiling = float64(p.MaxDelay)
	}
	// Pow overflows to +Inf for large attempts; clamp before converting.
	if math.IsInf(d, 0) || math.IsNaN(d) || d >= ceiling {
		if p.MaxDelay > 0 {
			return p.MaxDelay
		}
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Exhausted reports whether no attempt may follow the given one.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// TotalDelay returns the sum of the delays slept before the given attempt
// starts. TotalDelay(1) is always zero.
func (p Policy) TotalDelay(attempt int) time.Duration {
	var total time.Duration
	for n := 1; n < attempt; n++ {
		d := p.NextDelay(n)
		if total > time.Duration(math.MaxInt64)-d {
			return time.Duration(math.MaxInt64)
		}
		total += d
	}
	return total
}
