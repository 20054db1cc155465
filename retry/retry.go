// Package retry drives an operation until it succeeds, fails terminally, or
// exhausts a [backoff.Policy].
//
// Operations classify their own result by returning an [Outcome]: Success
// carries the value, Retry carries a transient cause, Fail carries a terminal
// one. The executor never inspects the cause itself, so the retry decision
// stays with the code that knows what the error means.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/ryhazerus/kvcounter/backoff"
)

type verdict int

const (
	verdictSuccess verdict = iota
	verdictRetry
	verdictFail
)

// Outcome is the classified result of one invocation of an [Operation].
type Outcome[T any] struct {
	verdict verdict
	value   T
	err     error
}

// Success reports a completed operation.
func Success[T any](v T) Outcome[T] {
	return Outcome[T]{verdict: verdictSuccess, value: v}
}

// Retry reports a transient failure. The operation will be invoked again
// unless the policy is exhausted, in which case err is returned.
func Retry[T any](err error) Outcome[T] {
	return Outcome[T]{verdict: verdictRetry, err: err}
}

// Fail reports a terminal failure. err is returned without further attempts.
func Fail[T any](err error) Outcome[T] {
	return Outcome[T]{verdict: verdictFail, err: err}
}

// Operation is invoked once per attempt. attempt starts at 1.
type Operation[T any] func(ctx context.Context, attempt int) Outcome[T]

// Attempt describes an invocation that did not succeed.
type Attempt struct {
	Number   int           // 1-based attempt number
	Err      error         // cause returned by the operation
	Delay    time.Duration // wait before the next attempt; zero when Final
	Terminal bool          // the operation returned Fail
	Final    bool          // no further attempt follows
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type settings struct {
	sleep    SleepFunc
	observer func(Attempt)
	logger   hclog.Logger
}

// Option configures a single call to [Do].
type Option func(*settings)

// WithSleep replaces the blocking wait between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(s *settings) {
		s.sleep = fn
	}
}

// WithObserver registers a callback that is invoked for every attempt that
// did not succeed, before any wait.
func WithObserver(fn func(Attempt)) Option {
	return func(s *settings) {
		s.observer = fn
	}
}

// WithLogger sets the logger used to trace retries.
func WithLogger(l hclog.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// Do invokes op until it returns Success or Fail, or until policy is
// exhausted after a Retry. On exhaustion the last Retry cause is returned
// unchanged.
func Do[T any](ctx context.Context, policy backoff.Policy, op Operation[T], opts ...Option) (T, error) {
	var zero T

	s := settings{sleep: Sleep, logger: hclog.NewNullLogger()}
	for _, o := range opts {
		o(&s)
	}

	if err := policy.Validate(); err != nil {
		return zero, fmt.Errorf("retry: %w", err)
	}

	for attempt := 1; ; attempt++ {
		out := op(ctx, attempt)

		switch out.verdict {
		case verdictSuccess:
			return out.value, nil

		case verdictFail:
			s.observe(Attempt{Number: attempt, Err: out.err, Terminal: true, Final: true})
			return zero, out.err
		}

		if policy.Exhausted(attempt) {
			s.observe(Attempt{Number: attempt, Err: out.err, Final: true})
			s.logger.Debug("retries exhausted", "attempts", attempt,
				"waited", policy.TotalDelay(attempt), "error", out.err)
			return zero, out.err
		}

		delay := policy.NextDelay(attempt)
		s.observe(Attempt{Number: attempt, Err: out.err, Delay: delay})
		s.logger.Trace("retrying", "attempt", attempt, "delay", delay, "error", out.err)

		if err := s.sleep(ctx, delay); err != nil {
			return zero, errors.Join(err, out.err)
		}
	}
}

func (s *settings) observe(a Attempt) {
	if s.observer != nil {
		s.observer(a)
	}
}

// Sleep waits for d using a timer, returning early with ctx.Err() if the
// context is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
