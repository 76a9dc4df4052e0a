package kbmatch

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/kb"
)

// DefaultPacing is the delay between successive KB embedding calls.
const DefaultPacing = 100 * time.Millisecond

// Cache holds KB entry vectors in memory on top of a persistent VectorStore.
// Loading, population and saving are serialized by a single mutex.
type Cache struct {
	store   VectorStore // nil = memory only
	pacing  time.Duration
	lookups *prometheus.CounterVec // label "result": hit, miss, placeholder
	logger  *zap.Logger

	mu      sync.Mutex
	loaded  bool
	vectors map[string][]float32
	tried   map[string]struct{} // ids embedded (or attempted) by this process
}

// NewCache creates a lazily loaded vector cache.
func NewCache(
	store VectorStore,
	pacing time.Duration,
	lookups *prometheus.CounterVec,
	logger *zap.Logger,
) *Cache {
	if pacing < 0 {
		pacing = 0
	}
	return &Cache{
		store:   store,
		pacing:  pacing,
		lookups: lookups,
		logger:  logger,
		vectors: map[string][]float32{},
		tried:   map[string]struct{}{},
	}
}

// EnsurePopulated embeds every entry that lacks a usable vector and returns a snapshot
// of the cache. Failures are recorded as empty placeholders so callers score those entries
// by keywords. Placeholders created in this process are not retried; placeholders loaded
// from storage get one new attempt. The store is written once if anything changed.
func (c *Cache) EnsurePopulated(
	ctx context.Context, entries []kb.Entry, embed Embedder,
) map[string][]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loadLocked(ctx)

	usage := domain.UsageFromContext(ctx)
	changed := false
	calls := 0

	for i := range entries {
		id := entries[i].ID()
		if len(c.vectors[id]) > 0 {
			c.inc("hit")
			continue
		}
		if _, done := c.tried[id]; done {
			c.inc("placeholder")
			continue
		}

		if ctx.Err() != nil || (calls > 0 && !c.pace(ctx)) {
			c.logger.Warn("KB embedding population interrupted",
				zap.Int("embedded", calls), zap.Error(ctx.Err()))
			break
		}

		c.inc("miss")
		calls++

		res, err := embed.Embed(ctx, entries[i].Text())
		if err != nil && ctx.Err() != nil {
			// caller went away; leave the entry for the next request
			break
		}
		c.tried[id] = struct{}{}
		changed = true
		if err != nil || len(res.Embedding) == 0 {
			c.logger.Warn("KB entry embedding failed, keyword scoring will be used",
				zap.String("kb_id", id), zap.Error(err))
			c.vectors[id] = []float32{}
			continue
		}
		c.vectors[id] = res.Embedding
		usage.AddTokens(res.TotalTokens)
	}

	if changed {
		c.saveLocked(context.WithoutCancel(ctx))
	}

	return maps.Clone(c.vectors)
}

// Len returns the number of cached ids, placeholders included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.vectors)
}

func (c *Cache) loadLocked(ctx context.Context) {
	if c.loaded {
		return
	}
	c.loaded = true
	if c.store == nil {
		return
	}

	vectors, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("Embedding cache unreadable, starting empty", zap.Error(err))
		return
	}
	if vectors != nil {
		c.vectors = vectors
	}
	c.logger.Debug("Embedding cache loaded", zap.Int("entries", len(c.vectors)))
}

func (c *Cache) saveLocked(ctx context.Context) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, maps.Clone(c.vectors)); err != nil {
		c.logger.Warn("Failed to persist embedding cache", zap.Error(err))
	}
}

// pace waits between embedding calls. Returns false if ctx ended first.
func (c *Cache) pace(ctx context.Context) bool {
	if c.pacing == 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(c.pacing)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Cache) inc(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}
