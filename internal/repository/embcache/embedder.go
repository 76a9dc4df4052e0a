package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/triage/internal/db"
	"github.com/kailas-cloud/triage/internal/domain"
)

const (
	descKeySegment = "emb_cache:desc:"

	// defaultCallTimeout bounds a shared provider call that no caller can cancel.
	defaultCallTimeout = 30 * time.Second
)

// store is the consumer interface for the description embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options scope description cache keys.
type Options struct {
	Prefix      string
	Model       string        // part of the key, so a model switch never serves stale vectors
	TTL         time.Duration // <= 0 keeps entries forever
	CallTimeout time.Duration // bounds the shared provider call; <= 0 selects 30s
}

// sharedEmbedding is the outcome of one coalesced provider call. The first caller to
// claim it reports the provider's token usage; the rest report zero.
type sharedEmbedding struct {
	result  domain.EmbeddingResult
	claimed atomic.Bool
}

// CachedEmbedder caches description embeddings in a key-value store so repeated tickets
// skip the provider. Concurrent misses for the same text share one provider call.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	prefix     string
	ttl         time.Duration
	callTimeout time.Duration
	group       singleflight.Group
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" (hit, miss, shared), passed explicitly.
func New(
	inner domain.Embedder,
	s store,
	opts Options,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	prefix := opts.Prefix + descKeySegment
	if opts.Model != "" {
		prefix += opts.Model + ":"
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &CachedEmbedder{
		inner:       inner,
		store:       s,
		prefix:      prefix,
		ttl:         opts.TTL,
		callTimeout: callTimeout,
		cacheTotal:  cacheTotal,
		logger:      logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Hits and shared results report zero tokens: this request consumed none.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	// The shared call outlives any single caller: a cancelled caller leaves, the rest wait.
	ch := c.group.DoChan(key, func() (any, error) {
		c.incCache("miss")
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
		defer cancel()

		result, err := c.inner.Embed(callCtx, text)
		if err != nil {
			return nil, err
		}
		if len(result.Embedding) > 0 {
			c.putToCache(callCtx, key, result.Embedding)
		}
		return &sharedEmbedding{result: result}, nil
	})

	select {
	case <-ctx.Done():
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", res.Err)
		}
		shared := res.Val.(*sharedEmbedding) //nolint:forcetypeassert // only sharedEmbedding is stored
		if !shared.claimed.CompareAndSwap(false, true) {
			c.incCache("shared")
			return domain.EmbeddingResult{Embedding: shared.result.Embedding}, nil
		}
		return shared.result, nil
	}
}

// HealthCheck delegates to the inner embedder when it supports it.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey ignores surrounding whitespace, which never changes the triage outcome.
func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return c.prefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Description cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Corrupt description cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	if err := c.store.SetEX(ctx, key, vectorToCacheBytes(vec), c.ttl); err != nil {
		c.logger.Warn("Description cache write failed", zap.String("key", key), zap.Error(err))
	}
}
