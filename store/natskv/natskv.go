// Package natskv stores counters in a NATS JetStream key-value bucket. The
// entry revision assigned by JetStream is used as the version token, and
// conditional writes use the bucket's compare-and-set Update.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ryhazerus/kvcounter/store"
)

// Compile-time interface check.
var _ store.Table = (*Table)(nil)

// Table is a store.Table backed by a JetStream key-value bucket. Values are
// stored as base-10 text.
type Table struct {
	bucket  jetstream.KeyValue
	timeout time.Duration
	onClose func() error
}

// Option configures a Table.
type Option func(*Table)

// WithTimeout bounds every bucket call. Zero leaves the caller's context
// untouched.
func WithTimeout(d time.Duration) Option {
	return func(t *Table) {
		t.timeout = d
	}
}

// WithCloser registers a function run by Close, typically draining the
// connection the bucket was opened on.
func WithCloser(fn func() error) Option {
	return func(t *Table) {
		t.onClose = fn
	}
}

// NewTable wraps an existing bucket.
func NewTable(bucket jetstream.KeyValue, opts ...Option) *Table {
	t := &Table{bucket: bucket, timeout: 5 * time.Second}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Open connects to url, creates the bucket if needed and returns a Table
// that owns the connection.
func Open(ctx context.Context, url, bucket string, opts ...Option) (*Table, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("kvcounter/natskv: connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("kvcounter/natskv: jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "kvcounter counters",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("kvcounter/natskv: bucket %s: %w", bucket, err)
	}

	opts = append(opts, WithCloser(nc.Drain))
	return NewTable(kv, opts...), nil
}

func (t *Table) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout > 0 {
		return context.WithTimeout(ctx, t.timeout)
	}
	return ctx, func() {}
}

// Get returns the entry for key.
func (t *Table) Get(ctx context.Context, key string) (store.Entry, bool, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	entry, err := t.bucket.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return store.Entry{}, false, nil
	}
	if err != nil {
		return store.Entry{}, false, store.NewError(classify(err), "get", key, err)
	}

	value, err := strconv.ParseInt(string(entry.Value()), 10, 64)
	if err != nil {
		return store.Entry{}, false, store.NewError(store.KindCorrupt, "get", key, err)
	}
	return store.Entry{Value: value, Version: store.Version(entry.Revision())}, true, nil
}

// Insert writes value to key, checking expected unless it is Unconditional.
func (t *Table) Insert(ctx context.Context, key string, value int64, expected store.Version) (store.Version, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	data := []byte(strconv.FormatInt(value, 10))

	if expected == store.Unconditional {
		rev, err := t.bucket.Put(ctx, key, data)
		if err != nil {
			return 0, store.NewError(classify(err), "insert", key, err)
		}
		return store.Version(rev), nil
	}

	rev, err := t.bucket.Update(ctx, key, data, uint64(expected))
	if err == nil {
		return store.Version(rev), nil
	}

	kind := classify(err)
	if kind == store.KindVersionMismatch {
		// JetStream reports a missing subject as a sequence mismatch too.
		if _, getErr := t.bucket.Get(ctx, key); errors.Is(getErr, jetstream.ErrKeyNotFound) ||
			errors.Is(getErr, jetstream.ErrKeyDeleted) {
			kind = store.KindKeyDoesNotExist
		}
	}
	return 0, store.NewError(kind, "insert", key, err)
}

// Close runs the closer registered with WithCloser, if any. The bucket
// itself is left in place.
func (t *Table) Close() error {
	if t.onClose != nil {
		return t.onClose()
	}
	return nil
}

func classify(err error) store.Kind {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return store.KindVersionMismatch
	}
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		return store.KindVersionMismatch
	}
	if errors.Is(err, jetstream.ErrInvalidKey) {
		return store.KindInvalid
	}
	return store.KindUnavailable
}
