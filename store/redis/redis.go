package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ryhazerus/kvcounter/store"
)

// Compile-time interface check.
var _ store.Table = (*Table)(nil)

// DefaultPrefix is prepended to every counter key unless overridden.
const DefaultPrefix = "kvcounter:"

// Table is a store.Table backed by Redis. Each counter is stored as a Redis
// hash with fields "value" and "version"; conditional writes run as a Lua
// script so the version check and the write are atomic.
type Table struct {
	client *redis.Client
	prefix string
}

// Option configures a Table.
type Option func(*Table)

// WithPrefix sets the key prefix used for every counter.
func WithPrefix(prefix string) Option {
	return func(t *Table) {
		t.prefix = prefix
	}
}

// NewTable creates a new Redis-backed table.
func NewTable(client *redis.Client, opts ...Option) *Table {
	t := &Table{client: client, prefix: DefaultPrefix}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Script results that are not a version.
const (
	resultMismatch = -1
	resultMissing  = -2
	resultCorrupt  = -3
)

// insertScript writes a counter, optionally checking its version first.
// Returns the new version, or a negative result code. Nothing is written
// unless the stored version is a valid integer.
//
// KEYS[1] = counter key
// ARGV[1] = value
// ARGV[2] = expected version, 0 for an unconditional write
var insertScript = redis.NewScript(`
local key = KEYS[1]
local expected = tonumber(ARGV[2])
local current = redis.call("HGET", key, "version")

if current and not string.match(current, "^%d+$") then
    return -3
end

if expected > 0 then
    if not current then
        return -2
    end
    if tonumber(current) ~= expected then
        return -1
    end
end

redis.call("HSET", key, "value", ARGV[1])
return redis.call("HINCRBY", key, "version", 1)
`)

// Get returns the entry for key.
func (t *Table) Get(ctx context.Context, key string) (store.Entry, bool, error) {
	vals, err := t.client.HMGet(ctx, t.redisKey(key), "value", "version").Result()
	if err != nil {
		return store.Entry{}, false, store.NewError(replyKind(err), "get", key, err)
	}
	if len(vals) != 2 {
		return store.Entry{}, false, store.NewError(store.KindCorrupt, "get", key,
			fmt.Errorf("unexpected reply length %d", len(vals)))
	}
	if vals[0] == nil && vals[1] == nil {
		return store.Entry{}, false, nil
	}

	value, err := parseField(vals[0])
	if err != nil {
		return store.Entry{}, false, store.NewError(store.KindCorrupt, "get", key, fmt.Errorf("value: %w", err))
	}
	version, err := parseField(vals[1])
	if err != nil || version <= 0 {
		return store.Entry{}, false, store.NewError(store.KindCorrupt, "get", key, fmt.Errorf("version: %v", vals[1]))
	}

	return store.Entry{Value: value, Version: store.Version(version)}, true, nil
}

// Insert writes value to key, checking expected unless it is Unconditional.
func (t *Table) Insert(ctx context.Context, key string, value int64, expected store.Version) (store.Version, error) {
	result, err := insertScript.Run(ctx, t.client, []string{t.redisKey(key)},
		strconv.FormatInt(value, 10), uint64(expected)).Int64()
	if err != nil {
		return 0, store.NewError(replyKind(err), "insert", key, err)
	}

	switch {
	case result == resultMismatch:
		return 0, store.NewError(store.KindVersionMismatch, "insert", key, nil)
	case result == resultMissing:
		return 0, store.NewError(store.KindKeyDoesNotExist, "insert", key, nil)
	case result == resultCorrupt:
		return 0, store.NewError(store.KindCorrupt, "insert", key, errors.New("stored version is not an integer"))
	case result <= 0:
		return 0, store.NewError(store.KindCorrupt, "insert", key, fmt.Errorf("unexpected script result %d", result))
	}
	return store.Version(result), nil
}

// Close closes the underlying Redis client.
func (t *Table) Close() error {
	return t.client.Close()
}

func (t *Table) redisKey(key string) string {
	return t.prefix + key
}

func parseField(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("missing or non-string field %v", v)
	}
	return strconv.ParseInt(s, 10, 64)
}

// replyKind classifies a command error. An error reply from Redis (for
// example WRONGTYPE on a key that is not a hash) means the stored data is
// unusable; anything else is treated as the connection failing.
func replyKind(err error) store.Kind {
	var re redis.Error
	if errors.As(err, &re) && !errors.Is(err, redis.Nil) {
		return store.KindCorrupt
	}
	return store.KindUnavailable
}
