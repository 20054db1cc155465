package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func newTestSQLiteTable(t *testing.T) *SQLiteTable {
	t.Helper()
	s, err := NewSQLiteTable(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteTableGetMissing(t *testing.T) {
	s := newTestSQLiteTable(t)

	_, ok, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected missing key")
	}
}

func TestSQLiteTableUnconditionalInsert(t *testing.T) {
	s := newTestSQLiteTable(t)
	ctx := context.Background()

	v1, err := s.Insert(ctx, "key", 10, Unconditional)
	if err != nil {
		t.Fatal(err)
	}
	if v1 == Unconditional {
		t.Fatal("table issued the unconditional version")
	}

	v2, err := s.Insert(ctx, "key", -4, Unconditional)
	if err != nil {
		t.Fatal(err)
	}
	if v2 == v1 {
		t.Errorf("version did not change: %v", v2)
	}

	e, ok, err := s.Get(ctx, "key")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if e.Value != -4 || e.Version != v2 {
		t.Errorf("got %+v, want value -4 at %v", e, v2)
	}
}

func TestSQLiteTableConditionalInsert(t *testing.T) {
	s := newTestSQLiteTable(t)
	ctx := context.Background()

	v1, _ := s.Insert(ctx, "key", 1, Unconditional)

	if _, err := s.Insert(ctx, "key", 2, v1); err != nil {
		t.Fatalf("matching version: %v", err)
	}

	_, err := s.Insert(ctx, "key", 3, v1)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("stale version: got %v, want ErrVersionMismatch", err)
	}

	e, _, _ := s.Get(ctx, "key")
	if e.Value != 2 {
		t.Errorf("failed write must not apply: got %d", e.Value)
	}
}

func TestSQLiteTableConditionalInsertMissing(t *testing.T) {
	s := newTestSQLiteTable(t)

	_, err := s.Insert(context.Background(), "missing", 1, Version(3))
	if !errors.Is(err, ErrKeyDoesNotExist) {
		t.Fatalf("got %v, want ErrKeyDoesNotExist", err)
	}
}

func TestSQLiteTablePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.db")
	ctx := context.Background()

	s1, err := NewSQLiteTable(path)
	if err != nil {
		t.Fatal(err)
	}
	s1.Insert(ctx, "key", 42, Unconditional)
	s1.Close()

	s2, err := NewSQLiteTable(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	e, ok, err := s2.Get(ctx, "key")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if e.Value != 42 {
		t.Errorf("got %d, want 42", e.Value)
	}
}

func TestSQLiteTableConcurrentCAS(t *testing.T) {
	s := newTestSQLiteTable(t)
	ctx := context.Background()
	s.Insert(ctx, "key", 0, Unconditional)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				e, _, err := s.Get(ctx, "key")
				if err != nil {
					continue
				}
				if _, err := s.Insert(ctx, "key", e.Value+1, e.Version); err == nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	e, _, _ := s.Get(ctx, "key")
	if e.Value != 20 {
		t.Errorf("value = %d, want 20", e.Value)
	}
}
