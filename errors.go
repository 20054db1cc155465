package kvcounter

import (
	"errors"
	"fmt"

	"github.com/ryhazerus/kvcounter/store"
)

// ErrKeyDoesNotExist is matched by errors.Is for any operation on a counter
// that was never initialized.
var ErrKeyDoesNotExist = store.ErrKeyDoesNotExist

// ErrOverflow is returned when applying a delta would overflow int64. The
// stored value is left unchanged.
var ErrOverflow = errors.New("kvcounter: counter overflow")

// KeyDoesNotExistError reports which counter was missing and which operation
// needed it. Call InitCounter before using the key.
type KeyDoesNotExistError struct {
	Key       string
	Operation string
}

func (e *KeyDoesNotExistError) Error() string {
	return fmt.Sprintf("kvcounter: %s %q: key does not exist", e.Operation, e.Key)
}

func (e *KeyDoesNotExistError) Unwrap() error {
	return store.ErrKeyDoesNotExist
}
