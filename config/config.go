// Package config loads kvcounter settings from HCL and builds the table and
// Counters they describe.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/hashicorp/hcl"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ryhazerus/kvcounter"
	"github.com/ryhazerus/kvcounter/backoff"
	"github.com/ryhazerus/kvcounter/store"
	"github.com/ryhazerus/kvcounter/store/natskv"
	"github.com/ryhazerus/kvcounter/store/redis"
)

// Backend names accepted in the backend field.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// Config is the top-level configuration.
type Config struct {
	Backend     string        `hcl:"backend"`
	SQLite      *SQLiteConfig `hcl:"sqlite"`
	Redis       *RedisConfig  `hcl:"redis"`
	NATS        *NATSConfig   `hcl:"nats"`
	Retry       *RetryConfig  `hcl:"retry"`
	MaxInFlight int           `hcl:"max_in_flight"`
	LogLevel    string        `hcl:"log_level"`
}

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	Path string `hcl:"path"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `hcl:"addr"`
	Password string `hcl:"password"`
	DB       int    `hcl:"db"`
	Prefix   string `hcl:"prefix"`
}

// NATSConfig configures the nats backend.
type NATSConfig struct {
	URL     string      `hcl:"url"`
	Bucket  string      `hcl:"bucket"`
	Timeout interface{} `hcl:"timeout"`
}

// RetryConfig configures the backoff policy. Durations accept Go duration
// strings ("5ms") or integer seconds.
type RetryConfig struct {
	InitialDelay interface{} `hcl:"initial_delay"`
	Coefficient  float64     `hcl:"coefficient"`
	MaxDelay     interface{} `hcl:"max_delay"`
	MaxAttempts  interface{} `hcl:"max_attempts"`
}

// Default returns an in-memory configuration with the default policy.
func Default() *Config {
	return &Config{Backend: BackendMemory, LogLevel: "info"}
}

// Parse decodes an HCL document.
func Parse(src string) (*Config, error) {
	cfg := Default()
	if err := hcl.Decode(cfg, src); err != nil {
		return nil, fmt.Errorf("kvcounter/config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses an HCL file.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kvcounter/config: %w", err)
	}
	return Parse(string(b))
}

// Validate checks that the selected backend is configured and that the
// retry policy is usable.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLite == nil || c.SQLite.Path == "" {
			result = multierror.Append(result, errors.New("sqlite.path is required"))
		}
	case BackendRedis:
		if c.Redis == nil || c.Redis.Addr == "" {
			result = multierror.Append(result, errors.New("redis.addr is required"))
		}
	case BackendNATS:
		if c.NATS == nil || c.NATS.URL == "" || c.NATS.Bucket == "" {
			result = multierror.Append(result, errors.New("nats.url and nats.bucket are required"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown backend %q", c.Backend))
	}

	if c.MaxInFlight < 0 {
		result = multierror.Append(result, errors.New("max_in_flight cannot be negative"))
	}
	if c.LogLevel != "" && hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		result = multierror.Append(result, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}

	if p, err := c.Policy(); err != nil {
		result = multierror.Append(result, err)
	} else if err := p.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("kvcounter/config: %w", err)
	}
	return nil
}

// Policy returns the backoff policy, starting from backoff.Default() and
// overriding the fields that are set.
func (c *Config) Policy() (backoff.Policy, error) {
	p := backoff.Default()
	if c.Retry == nil {
		return p, nil
	}
	r := c.Retry

	if r.InitialDelay != nil {
		d, err := parseutil.ParseDurationSecond(r.InitialDelay)
		if err != nil {
			return p, fmt.Errorf("retry.initial_delay: %w", err)
		}
		p.InitialDelay = d
	}
	if r.MaxDelay != nil {
		d, err := parseutil.ParseDurationSecond(r.MaxDelay)
		if err != nil {
			return p, fmt.Errorf("retry.max_delay: %w", err)
		}
		p.MaxDelay = d
	}
	if r.MaxAttempts != nil {
		n, err := parseutil.ParseInt(r.MaxAttempts)
		if err != nil {
			return p, fmt.Errorf("retry.max_attempts: %w", err)
		}
		p.MaxAttempts = int(n)
	}
	if r.Coefficient != 0 {
		p.Coefficient = r.Coefficient
	}
	return p, nil
}

// Logger builds a named logger at the configured level.
func (c *Config) Logger(name string) hclog.Logger {
	level := hclog.Info
	if c.LogLevel != "" {
		level = hclog.LevelFromString(c.LogLevel)
	}
	return hclog.New(&hclog.LoggerOptions{Name: name, Level: level})
}

// OpenTable opens the configured backend.
func (c *Config) OpenTable(ctx context.Context) (store.Table, error) {
	switch c.Backend {
	case BackendMemory:
		return store.NewMemoryTable(), nil

	case BackendSQLite:
		return store.NewSQLiteTable(c.SQLite.Path)

	case BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		var opts []redis.Option
		if c.Redis.Prefix != "" {
			opts = append(opts, redis.WithPrefix(c.Redis.Prefix))
		}
		return redis.NewTable(client, opts...), nil

	case BackendNATS:
		var opts []natskv.Option
		if c.NATS.Timeout != nil {
			d, err := parseutil.ParseDurationSecond(c.NATS.Timeout)
			if err != nil {
				return nil, fmt.Errorf("kvcounter/config: nats.timeout: %w", err)
			}
			opts = append(opts, natskv.WithTimeout(d))
		}
		return natskv.Open(ctx, c.NATS.URL, c.NATS.Bucket, opts...)
	}
	return nil, fmt.Errorf("kvcounter/config: unknown backend %q", c.Backend)
}

// NewCounters opens the table and wraps it in Counters configured with the
// policy, runtime limit and logger. Passing a nil logger uses Logger("kvcounter").
func (c *Config) NewCounters(ctx context.Context, logger hclog.Logger, opts ...kvcounter.Option) (*kvcounter.Counters, error) {
	policy, err := c.Policy()
	if err != nil {
		return nil, fmt.Errorf("kvcounter/config: %w", err)
	}
	if logger == nil {
		logger = c.Logger("kvcounter")
	}

	table, err := c.OpenTable(ctx)
	if err != nil {
		return nil, err
	}

	opts = append([]kvcounter.Option{
		kvcounter.WithPolicy(policy),
		kvcounter.WithRuntime(kvcounter.NewRuntime(c.MaxInFlight)),
		kvcounter.WithLogger(logger),
	}, opts...)
	return kvcounter.New(table, opts...), nil
}
