package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "returns:idempotency:"
	completeAttempts   = 3
)

// RedisOption customises a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the namespace prepended to every key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// RedisStore shares idempotency state between API replicas. Entries expire through Redis key
// TTLs, so Sweep has nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, *Response, error) {
	ttl = ttlOrDefault(ttl)
	payload, err := json.Marshal(Entry{Fingerprint: fingerprint, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return 0, nil, fmt.Errorf("idempotency: encode entry: %w", err)
	}
	id := s.key(key)

	// a second pass covers an entry that expired between SETNX and GET
	for pass := 0; pass < 2; pass++ {
		created, err := s.client.SetNX(ctx, id, payload, ttl).Result()
		if err != nil {
			return 0, nil, fmt.Errorf("idempotency: claim: %w", err)
		}
		if created {
			return Claimed, nil, nil
		}
		entry, err := s.get(ctx, s.client, id)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return 0, nil, err
		}
		if entry.Fingerprint != fingerprint {
			return 0, nil, ErrKeyReused
		}
		return entry.outcome(), entry.Response, nil
	}
	return InFlight, nil, nil
}

func (s *RedisStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	ttl = ttlOrDefault(ttl)
	id := s.key(key)
	stored := Response{Status: resp.Status, Header: storableHeader(resp.Header), Body: resp.Body}
	payload, err := json.Marshal(Entry{Fingerprint: fingerprint, Response: &stored, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("idempotency: encode entry: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, id)
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && current.Fingerprint != fingerprint {
			return ErrKeyReused
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, id, payload, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < completeAttempts; attempt++ {
		err = s.client.Watch(ctx, txf, id)
		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err == nil, errors.Is(err, ErrKeyReused):
			return err
		default:
			return fmt.Errorf("idempotency: complete: %w", err)
		}
	}
	return fmt.Errorf("idempotency: complete: %w", err)
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

func (s *RedisStore) Sweep(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

// Ping reports whether the Redis server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(key string) string {
	return s.prefix + hashKey(key)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, client getter, id string) (Entry, error) {
	raw, err := client.Get(ctx, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, err
	}
	if err != nil {
		return Entry{}, fmt.Errorf("idempotency: load: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("idempotency: decode entry: %w", err)
	}
	return entry, nil
}
