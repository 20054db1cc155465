package kvcounter

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/ryhazerus/kvcounter/backoff"
	"github.com/ryhazerus/kvcounter/retry"
	"github.com/ryhazerus/kvcounter/store"
)

// Defaults of the exposed operations.
const (
	DefaultInitValue int64 = 0
	DefaultDelta     int64 = 1
)

// Counters is the main entry point of the kvcounter library. It keeps named
// int64 counters as single entries of a versioned store.Table and updates
// them with optimistic concurrency: read the entry, compute the new value,
// then write it only if the entry's version has not moved.
//
// Counters holds no counter state of its own. It is safe for concurrent use.
type Counters struct {
	table   store.Table
	policy  backoff.Policy
	runtime Runtime
	logger  hclog.Logger
	metrics *Metrics
}

// New creates Counters on top of the given table with the given options.
func New(table store.Table, opts ...Option) *Counters {
	c := &Counters{
		table:  table,
		policy: backoff.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.runtime == nil {
		c.runtime = NewRuntime(0)
	}
	if c.logger == nil {
		c.logger = hclog.NewNullLogger()
	}
	return c
}

// InitCounter sets key to initValue, creating it if needed and overwriting
// any existing value. The write is unconditional and is not retried.
func (c *Counters) InitCounter(ctx context.Context, key string, initValue int64) error {
	err := c.runtime.Run(ctx, func(ctx context.Context) error {
		_, err := c.table.Insert(ctx, key, initValue, store.Unconditional)
		return err
	})
	c.metrics.observe("init", 1, err)
	if err != nil {
		c.logger.Warn("init failed", "key", key, "error", err)
		return fmt.Errorf("kvcounter: init %q: %w", key, err)
	}
	c.logger.Debug("initialized", "key", key, "value", initValue)
	return nil
}

// GetValue returns the current value of key. Store errors are retried
// according to the policy; a missing key fails immediately.
func (c *Counters) GetValue(ctx context.Context, key string) (int64, error) {
	const op = "get"

	var value int64
	attempts := 0
	err := c.runtime.Run(ctx, func(ctx context.Context) error {
		var err error
		value, err = retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) retry.Outcome[int64] {
			attempts = attempt
			e, ok, err := c.table.Get(ctx, key)
			if err != nil {
				return classify[int64](op, key, err)
			}
			if !ok {
				return retry.Fail[int64](&KeyDoesNotExistError{Key: key, Operation: op})
			}
			return retry.Success(e.Value)
		}, c.retryOptions(op, key)...)
		return err
	})
	c.finish(op, key, attempts, err)
	return value, err
}

// Increment adds delta to key. Each attempt re-reads the counter and commits
// value+delta conditionally on the version it read, so concurrent increments
// never overwrite each other. A failed call leaves the value unchanged.
func (c *Counters) Increment(ctx context.Context, key string, delta int64) error {
	_, err := c.add(ctx, "increment", key, delta)
	return err
}

// Decrement subtracts delta from key. It behaves as Increment with -delta,
// including for delta == math.MinInt64, whose negation is not an int64.
func (c *Counters) Decrement(ctx context.Context, key string, delta int64) error {
	_, err := c.add(ctx, "decrement", key, delta)
	return err
}

// Add is Increment returning the value it committed.
func (c *Counters) Add(ctx context.Context, key string, delta int64) (int64, error) {
	return c.add(ctx, "increment", key, delta)
}

// add applies delta to key, subtracting it when op is "decrement".
func (c *Counters) add(ctx context.Context, op, key string, delta int64) (int64, error) {
	apply, sign := addInt64, "+"
	if op == "decrement" {
		apply, sign = subInt64, "-"
	}

	var committed int64
	attempts := 0
	err := c.runtime.Run(ctx, func(ctx context.Context) error {
		var err error
		committed, err = retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) retry.Outcome[int64] {
			attempts = attempt

			e, ok, err := c.table.Get(ctx, key)
			if err != nil {
				return classify[int64](op, key, err)
			}
			if !ok {
				return retry.Fail[int64](&KeyDoesNotExistError{Key: key, Operation: op})
			}

			next, overflow := apply(e.Value, delta)
			if overflow {
				return retry.Fail[int64](fmt.Errorf("%w: %s %q: %d %s %d", ErrOverflow, op, key, e.Value, sign, delta))
			}

			if _, err := c.table.Insert(ctx, key, next, e.Version); err != nil {
				return classify[int64](op, key, err)
			}
			return retry.Success(next)
		}, c.retryOptions(op, key)...)
		return err
	})
	c.finish(op, key, attempts, err)
	return committed, err
}

// Values reads several counters. Each key is read independently; there is
// no snapshot across keys. Keys that could not be read are left out of the
// map and their errors are combined in the returned error.
func (c *Counters) Values(ctx context.Context, keys ...string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	var result *multierror.Error

	for _, key := range keys {
		v, err := c.GetValue(ctx, key)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		out[key] = v
	}

	return out, result.ErrorOrNil()
}

// Close waits for in-flight operations, then closes the runtime and the
// table.
func (c *Counters) Close() error {
	var result *multierror.Error
	if err := c.runtime.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("kvcounter: close runtime: %w", err))
	}
	if err := c.table.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("kvcounter: close table: %w", err))
	}
	return result.ErrorOrNil()
}

func (c *Counters) retryOptions(op, key string) []retry.Option {
	return []retry.Option{
		retry.WithLogger(c.logger.With("op", op, "key", key)),
		retry.WithObserver(func(a retry.Attempt) {
			if a.Terminal {
				return
			}
			if a.Final {
				return
			}
			c.metrics.retried(op, a.Err)
			c.logger.Debug("retrying", "op", op, "key", key, "attempt", a.Number,
				"delay", a.Delay, "error", a.Err)
		}),
	}
}

func (c *Counters) finish(op, key string, attempts int, err error) {
	c.metrics.observe(op, attempts, err)
	if err != nil {
		c.logger.Warn("operation failed", "op", op, "key", key, "attempts", attempts, "error", err)
	}
}

// classify turns a table error into a retry outcome: transient kinds are
// retried, a missing key is reported as KeyDoesNotExistError, anything else
// terminal is returned as is.
func classify[T any](op, key string, err error) retry.Outcome[T] {
	switch kind := store.KindOf(err); {
	case kind == store.KindKeyDoesNotExist:
		return retry.Fail[T](&KeyDoesNotExistError{Key: key, Operation: op})
	case !kind.Transient():
		return retry.Fail[T](err)
	}
	return retry.Retry[T](err)
}

// addInt64 returns a+b and whether the sum overflowed.
func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	return sum, (sum > a) != (b > 0)
}

// subInt64 returns a-b and whether the difference overflowed.
func subInt64(a, b int64) (int64, bool) {
	diff := a - b
	return diff, (diff < a) != (b > 0)
}
