package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Version is an opaque token identifying the state of an entry. Every
// successful write replaces it. Callers compare versions for equality and
// pass them back to Insert; they must not interpret them otherwise.
type Version uint64

// Unconditional is passed to Insert to write without a version check.
// Tables never issue it as the version of an entry.
const Unconditional Version = 0

func (v Version) String() string {
	if v == Unconditional {
		return "unconditional"
	}
	return "v" + strconv.FormatUint(uint64(v), 10)
}

// Entry is a counter value together with the version it was read at.
type Entry struct {
	Value   int64
	Version Version
}

// Table defines the versioned key-value capability counters are stored in.
type Table interface {
	// Get returns the entry for key. ok is false when the key does not exist.
	Get(ctx context.Context, key string) (e Entry, ok bool, err error)

	// Insert writes value to key and returns the new version. With
	// Unconditional it creates or overwrites the entry. Otherwise the write
	// only happens if the entry's current version equals expected; a stale
	// version fails with KindVersionMismatch and a missing key with
	// KindKeyDoesNotExist.
	Insert(ctx context.Context, key string, value int64, expected Version) (Version, error)

	// Close releases any resources held by the table.
	Close() error
}

// Kind classifies a table failure.
type Kind int

const (
	// KindUnavailable covers connection, timeout and busy errors.
	KindUnavailable Kind = iota
	// KindVersionMismatch means a conditional write lost to another writer.
	KindVersionMismatch
	// KindKeyDoesNotExist means the key has never been written.
	KindKeyDoesNotExist
	// KindCorrupt means the stored entry or the reply could not be decoded.
	KindCorrupt
	// KindInvalid means the table rejected the request itself, for example a
	// key it cannot represent.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindVersionMismatch:
		return "version_mismatch"
	case KindKeyDoesNotExist:
		return "key_does_not_exist"
	case KindCorrupt:
		return "corrupt"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Transient reports whether an operation failing with this kind may succeed
// when repeated.
func (k Kind) Transient() bool {
	return k != KindKeyDoesNotExist && k != KindInvalid
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrUnavailable     = errors.New("kvcounter/store: table unavailable")
	ErrVersionMismatch = errors.New("kvcounter/store: version mismatch")
	ErrKeyDoesNotExist = errors.New("kvcounter/store: key does not exist")
	ErrCorrupt         = errors.New("kvcounter/store: corrupt entry")
	ErrInvalid         = errors.New("kvcounter/store: invalid request")
)

var sentinels = map[Kind]error{
	KindUnavailable:     ErrUnavailable,
	KindVersionMismatch: ErrVersionMismatch,
	KindKeyDoesNotExist: ErrKeyDoesNotExist,
	KindCorrupt:         ErrCorrupt,
	KindInvalid:         ErrInvalid,
}

// Error is the error type returned by every Table implementation.
type Error struct {
	Kind Kind
	Op   string // "get" or "insert"
	Key  string
	Err  error // underlying driver error, may be nil
}

// NewError builds an *Error.
func NewError(kind Kind, op, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("kvcounter/store: %s %q: %s", e.Op, e.Key, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf returns the kind of the first *Error in err's chain. Errors that
// did not come from a table are reported as KindUnavailable.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnavailable
}
