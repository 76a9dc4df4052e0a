package embcache

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// kbKeySegment carries a hash tag so MGET stays in one cluster slot.
const kbKeySegment = "emb_cache:{kb}:"

// kvStore is the consumer interface for KB vector persistence (ISP).
type kvStore interface {
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	SetMany(ctx context.Context, values map[string][]byte) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// RedisStore keeps one key per KB entry. A zero-length value is a failure placeholder.
type RedisStore struct {
	store  kvStore
	prefix string
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed vector store. prefix namespaces all keys.
func NewRedisStore(s kvStore, prefix string, logger *zap.Logger) *RedisStore {
	return &RedisStore{store: s, prefix: prefix + kbKeySegment, logger: logger}
}

// Load enumerates all persisted entries. Undecodable values are skipped with a warning.
func (r *RedisStore) Load(ctx context.Context) (map[string][]float32, error) {
	keys, err := r.store.Scan(ctx, r.prefix+"*")
	if err != nil {
		return map[string][]float32{}, fmt.Errorf("scan embedding cache: %w", err)
	}
	if len(keys) == 0 {
		return map[string][]float32{}, nil
	}

	values, err := r.store.MGet(ctx, keys)
	if err != nil {
		return map[string][]float32{}, fmt.Errorf("read embedding cache: %w", err)
	}

	out := make(map[string][]float32, len(keys))
	for i, key := range keys {
		if i >= len(values) || values[i] == nil {
			continue // expired or deleted between SCAN and MGET
		}
		vec, err := bytesToVector(values[i])
		if err != nil {
			r.logger.Warn("Skipping corrupt cached KB vector", zap.String("key", key), zap.Error(err))
			continue
		}
		out[strings.TrimPrefix(key, r.prefix)] = vec
	}
	return out, nil
}

// Save writes every entry in one pipeline.
func (r *RedisStore) Save(ctx context.Context, vectors map[string][]float32) error {
	values := make(map[string][]byte, len(vectors))
	for id, vec := range vectors {
		values[r.prefix+id] = vectorToCacheBytes(vec)
	}
	if err := r.store.SetMany(ctx, values); err != nil {
		return fmt.Errorf("write embedding cache: %w", err)
	}
	return nil
}
