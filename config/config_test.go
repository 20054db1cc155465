package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryhazerus/kvcounter/backoff"
	"github.com/ryhazerus/kvcounter/store"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(``)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, backoff.Default(), p)
}

func TestParseFull(t *testing.T) {
	cfg, err := Parse(`
backend = "sqlite"

sqlite {
  path = "counters.db"
}

retry {
  initial_delay = "5ms"
  coefficient   = 3
  max_delay     = 2
  max_attempts  = 7
}

max_in_flight = 16
log_level     = "debug"
`)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Backend)
	require.NotNil(t, cfg.SQLite)
	assert.Equal(t, "counters.db", cfg.SQLite.Path)
	assert.Equal(t, 16, cfg.MaxInFlight)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, backoff.Policy{
		InitialDelay: 5 * time.Millisecond,
		Coefficient:  3,
		MaxDelay:     2 * time.Second,
		MaxAttempts:  7,
	}, p)
}

func TestValidateErrors(t *testing.T) {
	tests := map[string]string{
		"unknown backend":   `backend = "etcd"`,
		"sqlite no path":    `backend = "sqlite"`,
		"redis no addr":     `backend = "redis"`,
		"nats no bucket":    "backend = \"nats\"\nnats {\n url = \"nats://localhost:4222\"\n}",
		"bad duration":      "retry {\n initial_delay = \"soon\"\n}",
		"bad attempts":      "retry {\n max_attempts = 0\n}",
		"bad coefficient":   "retry {\n coefficient = 0.5\n}",
		"negative inflight": `max_in_flight = -1`,
		"bad log level":     `log_level = "loud"`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(src)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvcounter.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`backend = "memory"`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}

func TestOpenTableSQLite(t *testing.T) {
	cfg, err := Parse(`
backend = "sqlite"
sqlite {
  path = "` + filepath.ToSlash(filepath.Join(t.TempDir(), "c.db")) + `"
}`)
	require.NoError(t, err)

	tbl, err := cfg.OpenTable(context.Background())
	require.NoError(t, err)
	defer tbl.Close()
	assert.IsType(t, &store.SQLiteTable{}, tbl)
}

func TestNewCountersRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg, err := Parse(`
backend = "redis"
redis {
  addr   = "` + mr.Addr() + `"
  prefix = "test:"
}
retry {
  initial_delay = "1ms"
  max_attempts  = 3
}
max_in_flight = 4
log_level     = "error"`)
	require.NoError(t, err)

	ctx := context.Background()
	counters, err := cfg.NewCounters(ctx, nil)
	require.NoError(t, err)
	defer counters.Close()

	require.NoError(t, counters.InitCounter(ctx, "visits", 1))
	require.NoError(t, counters.Increment(ctx, "visits", 2))
	v, err := counters.GetValue(ctx, "visits")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	assert.True(t, mr.Exists("test:visits"))
}
