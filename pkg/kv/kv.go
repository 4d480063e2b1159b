// Package kv provides the durable key-value substrate used to persist the
// conversation collection. Every backend stores opaque byte blobs and overwrites
// a key as a whole, so a reader never observes a partially written value.
package kv

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("key not found")

type Store interface {
	// Get returns ErrNotFound if the key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendFile     Backend = "file"
	BackendSQLite   Backend = "sqlite"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
)

// Settings selects and configures a backend.
type Settings struct {
	Backend Backend `yaml:"backend" mapstructure:"backend"`
	// Key under which the conversation collection is stored.
	Key string `yaml:"key" mapstructure:"key"`

	Dir        string `yaml:"dir,omitempty" mapstructure:"dir"`
	SQLitePath string `yaml:"sqlite_path,omitempty" mapstructure:"sqlite-path"`

	RedisAddr     string `yaml:"redis_addr,omitempty" mapstructure:"redis-addr"`
	RedisPassword string `yaml:"redis_password,omitempty" mapstructure:"redis-password"`
	RedisDB       int    `yaml:"redis_db,omitempty" mapstructure:"redis-db"`
	RedisPrefix   string `yaml:"redis_prefix,omitempty" mapstructure:"redis-prefix"`

	PostgresDSN string `yaml:"postgres_dsn,omitempty" mapstructure:"postgres-dsn"`
}

// Open creates the backend described by s.
func Open(ctx context.Context, s Settings) (Store, error) {
	switch Backend(strings.ToLower(string(s.Backend))) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		return NewFileStore(s.Dir)
	case BackendSQLite:
		return NewSQLiteStore(ctx, s.SQLitePath)
	case BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     s.RedisAddr,
			Password: s.RedisPassword,
			DB:       s.RedisDB,
			Prefix:   s.RedisPrefix,
		})
	case BackendPostgres:
		return NewPostgresStore(ctx, s.PostgresDSN)
	default:
		return nil, errors.Errorf("unknown store backend %q", s.Backend)
	}
}
