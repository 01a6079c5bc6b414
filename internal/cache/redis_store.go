// Package cache provides Redis and in-memory backends for the response cache.
// Both implement the same store contract as the SQL cache repository.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// RedisStore keeps each cache entry in a hash (prefix+"rc:{tenant}:{hash}") that
// expires with the entry, plus a per-tenant sorted set indexed by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ae:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) entryKey(tenantID, hash string) string {
	return s.prefix + "rc:" + tenantID + ":" + hash
}

func (s *RedisStore) indexKey(tenantID string) string {
	return s.prefix + "rc:" + tenantID + ":idx"
}

// GetByHash returns the unexpired entry for (tenantID, hash).
func (s *RedisStore) GetByHash(ctx context.Context, tenantID, hash string, now time.Time) (*storage.CacheEntry, error) {
	fields, err := s.client.HGetAll(ctx, s.entryKey(tenantID, hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}

	entry, err := decodeEntry(tenantID, hash, fields)
	if err != nil {
		return nil, err
	}
	if entry.Expired(now) {
		return nil, storage.ErrNotFound
	}
	return entry, nil
}

// IncrementHit bumps the hit counter and returns the new value.
func (s *RedisStore) IncrementHit(ctx context.Context, tenantID, hash string, at time.Time) (int, error) {
	key := s.entryKey(tenantID, hash)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis exists: %w", err)
	}
	if exists == 0 {
		return 0, storage.ErrNotFound
	}

	var incr *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, "hit_count", 1)
		pipe.HSet(ctx, key, "last_hit_at", at.UnixMilli())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis hincrby: %w", err)
	}
	return int(incr.Val()), nil
}

// ListActive returns up to limit unexpired entries of the tenant, newest first.
// Index members whose hash already expired are pruned.
func (s *RedisStore) ListActive(ctx context.Context, tenantID string, now time.Time, limit int) ([]storage.CacheEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	idx := s.indexKey(tenantID)

	hashes, err := s.client.ZRevRange(ctx, idx, 0, int64(limit*2)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, h := range hashes {
			cmds[i] = pipe.HGetAll(ctx, s.entryKey(tenantID, h))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis pipeline: %w", err)
	}

	var (
		entries []storage.CacheEntry
		stale   []interface{}
	)
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, hashes[i])
			continue
		}
		entry, err := decodeEntry(tenantID, hashes[i], fields)
		if err != nil || entry.Expired(now) {
			continue
		}
		if len(entries) < limit {
			entries = append(entries, *entry)
		}
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, idx, stale...).Err(); err != nil {
			return entries, fmt.Errorf("redis zrem: %w", err)
		}
	}
	return entries, nil
}

// Upsert writes the entry. A live entry keeps its hit count and creation time; one
// that expired by entry.CreatedAt is replaced outright.
func (s *RedisStore) Upsert(ctx context.Context, entry *storage.CacheEntry) error {
	if entry.TenantID == "" {
		return storage.ErrInvalidTenant
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.HitCount == 0 {
		entry.HitCount = 1
	}

	key := s.entryKey(entry.TenantID, entry.QueryHash)
	expired, err := s.expiredBy(ctx, key, entry.CreatedAt)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if expired {
			pipe.Del(ctx, key)
		}
		pipe.HSet(ctx, key,
			"query_text", entry.QueryText,
			"normalized_language", entry.NormalizedLanguage,
			"answer_text", entry.AnswerText,
			"source_tag", entry.SourceTag,
			"trust_level", string(entry.TrustLevel),
			"expires_at", entry.ExpiresAt.UnixMilli(),
		)
		pipe.HSetNX(ctx, key, "id", entry.ID.String())
		pipe.HSetNX(ctx, key, "hit_count", entry.HitCount)
		pipe.HSetNX(ctx, key, "created_at", entry.CreatedAt.UnixMilli())
		pipe.ExpireAt(ctx, key, entry.ExpiresAt)
		pipe.ZAdd(ctx, s.indexKey(entry.TenantID), redis.Z{
			Score:  float64(entry.CreatedAt.UnixMilli()),
			Member: entry.QueryHash,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis upsert: %w", err)
	}
	return nil
}

// expiredBy reports whether the stored entry at key had expired at t.
func (s *RedisStore) expiredBy(ctx context.Context, key string, t time.Time) (bool, error) {
	raw, err := s.client.HGet(ctx, key, "expires_at").Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis hget: %w", err)
	}
	return raw <= t.UnixMilli(), nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeEntry(tenantID, hash string, fields map[string]string) (*storage.CacheEntry, error) {
	entry := &storage.CacheEntry{
		TenantID:           tenantID,
		QueryHash:          hash,
		QueryText:          fields["query_text"],
		NormalizedLanguage: fields["normalized_language"],
		AnswerText:         fields["answer_text"],
		SourceTag:          fields["source_tag"],
		TrustLevel:         storage.TrustLevel(fields["trust_level"]),
	}

	var errs []error
	if id, err := uuid.Parse(fields["id"]); err == nil {
		entry.ID = id
	}
	if n, err := strconv.Atoi(fields["hit_count"]); err == nil {
		entry.HitCount = n
	} else {
		errs = append(errs, fmt.Errorf("hit_count: %w", err))
	}
	if ms, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		entry.CreatedAt = time.UnixMilli(ms).UTC()
	} else {
		errs = append(errs, fmt.Errorf("created_at: %w", err))
	}
	if ms, err := strconv.ParseInt(fields["expires_at"], 10, 64); err == nil {
		entry.ExpiresAt = time.UnixMilli(ms).UTC()
	} else {
		errs = append(errs, fmt.Errorf("expires_at: %w", err))
	}
	if raw, ok := fields["last_hit_at"]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t := time.UnixMilli(ms).UTC()
			entry.LastHitAt = &t
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("decode cache entry %s: %w", hash, errors.Join(errs...))
	}
	return entry, nil
}
