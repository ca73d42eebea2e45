package versionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pds-match-service/internal/domain"
)

var errStateChanged = errors.New("version state changed")

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps the state as a JSON value under a single key and swaps it inside a
// WATCH/MULTI transaction.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis version store on an existing client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// NewRedisStoreFromURL creates a Redis version store from a redis:// URL.
func NewRedisStoreFromURL(ctx context.Context, redisURL, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStore(client, key), nil
}

// Load returns the stored state, or the zero state when the key is absent.
func (s *RedisStore) Load(ctx context.Context) (domain.AlgorithmVersionState, error) {
	return s.get(ctx, s.client)
}

// CompareAndSwap writes next when the key still holds expected. A concurrent write between
// WATCH and EXEC makes the transaction fail and reports false.
func (s *RedisStore) CompareAndSwap(ctx context.Context, expected, next domain.AlgorithmVersionState) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to encode version state: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx)
		if err != nil {
			return err
		}
		if current != expected {
			return errStateChanged
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			return nil
		})
		return err
	}, s.key)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStateChanged), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("failed to store version: %w", err)
	}
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) get(ctx context.Context, c getter) (domain.AlgorithmVersionState, error) {
	var state domain.AlgorithmVersionState

	data, err := c.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to load version: %w", err)
	}

	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("failed to decode version state: %w", err)
	}
	return state, nil
}
