package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesKindSentinel(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("wrapped: %w", NewError(KindUnavailable, "get", "visits", cause))

	if !errors.Is(err, ErrUnavailable) {
		t.Error("expected ErrUnavailable")
	}
	if errors.Is(err, ErrVersionMismatch) {
		t.Error("unexpected ErrVersionMismatch")
	}
	if !errors.Is(err, cause) {
		t.Error("expected underlying cause in chain")
	}
	if KindOf(err) != KindUnavailable {
		t.Errorf("KindOf = %v", KindOf(err))
	}
}

func TestErrorMessage(t *testing.T) {
	err := NewError(KindVersionMismatch, "insert", "visits", nil)
	want := `kvcounter/store: insert "visits": version_mismatch`
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestKindTransient(t *testing.T) {
	tests := map[Kind]bool{
		KindUnavailable:     true,
		KindVersionMismatch: true,
		KindCorrupt:         true,
		KindKeyDoesNotExist: false,
		KindInvalid:         false,
	}
	for k, want := range tests {
		if got := k.Transient(); got != want {
			t.Errorf("%v.Transient() = %v, want %v", k, got, want)
		}
	}
}

func TestKindOfForeignError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindUnavailable {
		t.Errorf("KindOf(foreign) = %v, want unavailable", got)
	}
}

func TestVersionString(t *testing.T) {
	if got := Unconditional.String(); got != "unconditional" {
		t.Errorf("got %q", got)
	}
	if got := Version(12).String(); got != "v12" {
		t.Errorf("got %q", got)
	}
}
