package kvcounter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-secure-stdlib/permitpool"
)

// ErrRuntimeClosed is returned for operations started after Close.
var ErrRuntimeClosed = errors.New("kvcounter: runtime closed")

// Runtime executes an operation and waits for it. Counters owns its runtime:
// Close must not return while any Run call is still in flight.
type Runtime interface {
	Run(ctx context.Context, fn func(context.Context) error) error
	Close() error
}

// Compile-time interface check.
var _ Runtime = (*PooledRuntime)(nil)

// PooledRuntime runs operations on the calling goroutine, optionally
// limiting how many may be in flight at once.
type PooledRuntime struct {
	pool *permitpool.Pool // nil when unbounded

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewRuntime creates a runtime allowing at most maxInFlight concurrent
// operations. Zero or less means no limit.
func NewRuntime(maxInFlight int) *PooledRuntime {
	r := &PooledRuntime{}
	if maxInFlight > 0 {
		r.pool = permitpool.New(maxInFlight)
	}
	return r
}

// Run blocks until a permit is available, then runs fn.
func (r *PooledRuntime) Run(ctx context.Context, fn func(context.Context) error) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrRuntimeClosed
	}
	r.wg.Add(1)
	r.mu.RUnlock()
	defer r.wg.Done()

	if r.pool != nil {
		if err := r.pool.Acquire(ctx); err != nil {
			return fmt.Errorf("kvcounter: waiting for runtime permit: %w", err)
		}
		defer r.pool.Release()
	}

	return fn(ctx)
}

// InFlight returns the number of operations currently holding a permit.
// It is always zero for an unbounded runtime.
func (r *PooledRuntime) InFlight() int {
	if r.pool == nil {
		return 0
	}
	return r.pool.CurrentPermits()
}

// Close rejects new operations and waits for in-flight ones to finish.
func (r *PooledRuntime) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}
