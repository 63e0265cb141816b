package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

// TabIDStore persists resolved tab ids shared between replicas.
type TabIDStore interface {
	Get(ctx context.Context, spreadsheetID, tab string) (int64, error)
	Set(ctx context.Context, spreadsheetID, tab string, id int64, ttl time.Duration) error
	Delete(ctx context.Context, spreadsheetID, tab string) error
}

type localTabID struct {
	id      int64
	expires time.Time
}

// TabIDCache remembers the structural id of ledger tabs. It always keeps a
// process-local copy; a shared store, when present, is consulted on local
// misses. Store failures degrade to a miss so a flaky Redis never blocks a
// row delete.
type TabIDCache struct {
	store         TabIDStore
	spreadsheetID string
	ttl           time.Duration
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time

	mu    sync.Mutex
	local map[string]localTabID
}

// NewTabIDCache constructs the cache. store may be nil.
func NewTabIDCache(store TabIDStore, spreadsheetID string, ttl time.Duration, metrics *MetricsService, logger *zap.Logger) *TabIDCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TabIDCache{
		store:         store,
		spreadsheetID: spreadsheetID,
		ttl:           ttl,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
		local:         make(map[string]localTabID),
	}
}

// Lookup returns the remembered id of tab.
func (c *TabIDCache) Lookup(ctx context.Context, tab string) (int64, bool) {
	start := time.Now()
	if id, ok := c.lookupLocal(tab); ok {
		c.metrics.RecordCacheOperation(true, time.Since(start))
		return id, true
	}
	if c.store == nil {
		c.metrics.RecordCacheOperation(false, time.Since(start))
		return 0, false
	}
	id, err := c.store.Get(ctx, c.spreadsheetID, tab)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("tab id cache read failed", zap.String("tab", tab), zap.Error(err))
		}
		return 0, false
	}
	c.storeLocal(tab, id)
	return id, true
}

// Remember records id for tab in both tiers.
func (c *TabIDCache) Remember(ctx context.Context, tab string, id int64) {
	c.storeLocal(tab, id)
	if c.store == nil {
		return
	}
	start := time.Now()
	err := c.store.Set(ctx, c.spreadsheetID, tab, id, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		c.logger.Warn("tab id cache write failed", zap.String("tab", tab), zap.Error(err))
	}
}

// Forget drops tab from both tiers, for example after the tab was recreated
// under a new id.
func (c *TabIDCache) Forget(ctx context.Context, tab string) {
	c.mu.Lock()
	delete(c.local, tab)
	c.mu.Unlock()
	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, c.spreadsheetID, tab); err != nil {
		c.logger.Warn("tab id cache delete failed", zap.String("tab", tab), zap.Error(err))
	}
}

func (c *TabIDCache) lookupLocal(tab string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local[tab]
	if !ok {
		return 0, false
	}
	if !c.now().Before(entry.expires) {
		delete(c.local, tab)
		return 0, false
	}
	return entry.id, true
}

func (c *TabIDCache) storeLocal(tab string, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[tab] = localTabID{id: id, expires: c.now().Add(c.ttl)}
}
