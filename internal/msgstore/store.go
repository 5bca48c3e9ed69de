// Package msgstore provides the key/blob stores that hold pending queue records.
package msgstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a requested key does not exist.
	ErrNotFound = errors.New("msgstore: key not found")
	// ErrExists is returned by Put when the key is already present.
	ErrExists = errors.New("msgstore: key already exists")
	// ErrInvalidKey is returned for keys that are empty or contain path characters.
	ErrInvalidKey = errors.New("msgstore: invalid key")
)

// Store is the contract shared by every queue store backend.
//
// Records are write-once: there is no update. Delete reports whether the
// call itself removed the key, which is what lets concurrent drains agree on
// a single owner for each record.
type Store interface {
	// Put writes data under key. It returns ErrExists rather than overwrite.
	Put(ctx context.Context, key string, data []byte) error
	// Keys returns every key currently stored, in no particular order.
	Keys(ctx context.Context) ([]string, error)
	// Get returns the data for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting an absent key returns (false, nil).
	Delete(ctx context.Context, key string) (bool, error)
	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// Config holds configuration for creating a Store.
type Config struct {
	Type       string        `mapstructure:"type"` // "memory", "local", "s3", "redis", "postgres", "sqlite"
	Name       string        `mapstructure:"name"` // logical queue name, used as key prefix or table name
	Path       string        `mapstructure:"path"` // base directory for local, database file for sqlite
	S3Bucket   string        `mapstructure:"s3_bucket"`
	S3Prefix   string        `mapstructure:"s3_prefix"`
	S3Endpoint string        `mapstructure:"s3_endpoint"`
	S3Region   string        `mapstructure:"s3_region"`
	RedisAddr  string        `mapstructure:"redis_addr"`
	RedisPass  string        `mapstructure:"redis_password"`
	RedisDB    int           `mapstructure:"redis_db"`
	DSN        string        `mapstructure:"dsn"` // postgres connection string
	PoolMin    int32         `mapstructure:"pool_min"`
	PoolMax    int32         `mapstructure:"pool_max"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

const (
	defaultName    = "email_queue"
	defaultTimeout = 5 * time.Second
)

func (c Config) name() string {
	if c.Name == "" {
		return defaultName
	}
	return c.Name
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

// New creates a Store based on the provided configuration.
// If Type is empty or unsupported, it defaults to local storage and logs a warning.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "local":
		return NewLocalFileStore(cfg.Path)
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg)
	case "redis":
		return NewRedisStoreFromConfig(ctx, cfg)
	case "postgres":
		return NewPostgresStoreFromConfig(ctx, cfg)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Path, cfg.name())
	default:
		logger.Warn().
			Str("type", cfg.Type).
			Msg("unsupported or empty store type, defaulting to local")
		return NewLocalFileStore(cfg.Path)
	}
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,199}$`)

// validateKey rejects keys that could escape a directory or prefix.
func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
