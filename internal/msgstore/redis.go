package msgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisScanCount = 200

// RedisStore keeps each record as a plain string value under "<name>:<key>".
// SET NX refuses duplicates and DEL returns the number of keys it removed,
// so at most one caller ever sees a removal for a given key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore using an existing client.
func NewRedisStore(client redis.UniversalClient, name string) *RedisStore {
	if name == "" {
		name = defaultName
	}
	return &RedisStore{client: client, prefix: name + ":"}
}

// NewRedisStoreFromConfig connects to Redis and verifies connectivity.
func NewRedisStoreFromConfig(ctx context.Context, cfg Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPass,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.timeout(),
		ReadTimeout:  cfg.timeout(),
		WriteTimeout: cfg.timeout(),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("msgstore: redis ping %s: %w", cfg.RedisAddr, err)
	}
	return NewRedisStore(client, cfg.name()), nil
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Put stores data with SET NX.
func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("msgstore: redis setnx: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// Keys walks the keyspace with SCAN; it never blocks the server the way KEYS would.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("msgstore: redis scan: %w", err)
	}
	return keys, nil
}

// Get returns the stored value or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgstore: redis get: %w", err)
	}
	return data, nil
}

// Delete issues DEL and reports whether a key was removed.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	n, err := s.client.Del(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("msgstore: redis del: %w", err)
	}
	return n > 0, nil
}

// HealthCheck pings the server.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("msgstore: redis ping: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
