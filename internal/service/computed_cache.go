package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/Harshitk-cp/medgraph/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrCacheUnavailable = errors.New("computed relation cache unavailable")

// ComputeFunc produces a fresh computed relation on a cache miss. The cache
// sets the key fields and entity, and fills in the id and timestamp when they
// are empty.
type ComputeFunc func(ctx context.Context) (*domain.ComputedRelation, error)

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Computations  int64 `json:"computations"`
	Invalidations int64 `json:"invalidations"`
}

// ComputedRelationCache is the only writer of computed relations. Concurrent
// misses on one key share a single computation: in process through a
// singleflight group, across processes through the optional Locker.
type ComputedRelationCache struct {
	store  domain.ComputedRelationStore
	locker domain.Locker
	logger *zap.Logger

	group singleflight.Group

	// generation advances on every invalidation made through the cache; a
	// computation that started before one is returned but not stored. mu
	// keeps the check and the Put atomic with respect to invalidations.
	// Writers that invalidate the store directly are caught by the store's
	// entity epoch instead.
	mu         sync.RWMutex
	generation atomic.Uint64

	hits          atomic.Int64
	misses        atomic.Int64
	computations  atomic.Int64
	invalidations atomic.Int64
}

func NewComputedRelationCache(s domain.ComputedRelationStore, logger *zap.Logger) *ComputedRelationCache {
	return &ComputedRelationCache{store: s, logger: logger}
}

// SetLocker enables cross-process single-flight.
func (c *ComputedRelationCache) SetLocker(l domain.Locker) {
	c.locker = l
}

// GetOrCompute returns the entry for key, computing and storing it on a miss.
// entityID owns the key. The boolean reports whether the entry came from the
// cache.
func (c *ComputedRelationCache) GetOrCompute(ctx context.Context, key domain.CacheKey, entityID uuid.UUID, compute ComputeFunc) (*domain.ComputedRelation, bool, error) {
	entry, err := c.lookup(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if entry != nil {
		c.hits.Add(1)
		c.logger.Debug("computed relation cache hit", zap.String("key", key.String()))
		return entry, true, nil
	}

	c.misses.Add(1)
	c.logger.Debug("computed relation cache miss", zap.String("key", key.String()))

	// The shared computation must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if c.locker == nil {
			return c.fill(shared, key, entityID, compute)
		}
		var filled *domain.ComputedRelation
		err := c.locker.WithLease(shared, "computed:"+key.String(), func(lctx context.Context) error {
			var err error
			filled, err = c.fill(lctx, key, entityID, compute)
			return err
		})
		return filled, err
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*domain.ComputedRelation), false, nil
}

func (c *ComputedRelationCache) lookup(ctx context.Context, key domain.CacheKey) (*domain.ComputedRelation, error) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return entry, nil
}

func (c *ComputedRelationCache) fill(ctx context.Context, key domain.CacheKey, entityID uuid.UUID, compute ComputeFunc) (*domain.ComputedRelation, error) {
	// Another process may have filled the entry while we waited.
	entry, err := c.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return entry, nil
	}

	// Both markers are read before any revision is.
	gen := c.generation.Load()
	epoch, err := c.store.Epoch(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	c.computations.Add(1)
	start := time.Now()

	entry, err = compute(ctx)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errors.New("compute returned no computed relation")
	}

	entry.ScopeHash = key.ScopeHash
	entry.ModelVersion = key.ModelVersion
	entry.EntityID = entityID
	if entry.RelationID == uuid.Nil {
		entry.RelationID = uuid.New()
	}
	if entry.ComputedAt.IsZero() {
		entry.ComputedAt = time.Now().UTC()
	}

	stored, err := c.tryStore(ctx, entry, gen, epoch)
	if err != nil {
		return nil, err
	}
	if stored {
		c.logger.Debug("computed relation stored",
			zap.String("key", key.String()),
			zap.Int("inputs", len(entry.Inputs)),
			zap.Duration("duration", time.Since(start)))
	}
	return entry, nil
}

// tryStore writes entry unless an invalidation happened since gen and epoch
// were read. A skipped entry is still returned to the caller.
func (c *ComputedRelationCache) tryStore(ctx context.Context, entry *domain.ComputedRelation, gen uint64, epoch int64) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := entry.Key().String()
	if c.generation.Load() != gen {
		c.logger.Info("computed relation invalidated during computation, not storing",
			zap.String("key", key))
		return false, nil
	}

	err := c.store.Put(ctx, entry, epoch)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrStaleEpoch):
		c.logger.Info("entity revised during computation, not storing",
			zap.String("key", key), zap.String("entity_id", entry.EntityID.String()))
		return false, nil
	case errors.Is(err, store.ErrConflict):
		c.logger.Debug("computed relation stored concurrently", zap.String("key", key))
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
}

// beginInvalidation advances the generation and holds off Puts until the
// returned func is called.
func (c *ComputedRelationCache) beginInvalidation() func() {
	c.mu.Lock()
	c.generation.Add(1)
	c.invalidations.Add(1)
	return c.mu.Unlock
}

// InvalidateScope deletes every entry for the scope hash, any model version.
func (c *ComputedRelationCache) InvalidateScope(ctx context.Context, scopeHash string) (int64, error) {
	done := c.beginInvalidation()
	n, err := c.store.DeleteByScopeHash(ctx, scopeHash)
	done()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	c.logger.Info("invalidated computed relations by scope",
		zap.String("scope_hash", scopeHash), zap.Int64("deleted", n))
	return n, nil
}

// InvalidateRelation deletes the entries computed from the relation.
func (c *ComputedRelationCache) InvalidateRelation(ctx context.Context, relationID uuid.UUID) (int64, error) {
	done := c.beginInvalidation()
	n, err := c.store.DeleteByRelation(ctx, relationID)
	done()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	c.logger.Info("invalidated computed relations by relation",
		zap.String("relation_id", relationID.String()), zap.Int64("deleted", n))
	return n, nil
}

// InvalidateEntity deletes every entry owned by the entity and stops running
// computations for it from being stored.
func (c *ComputedRelationCache) InvalidateEntity(ctx context.Context, entityID uuid.UUID) (int64, error) {
	done := c.beginInvalidation()
	n, err := c.store.DeleteByEntity(ctx, entityID)
	done()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	c.logger.Info("invalidated computed relations by entity",
		zap.String("entity_id", entityID.String()), zap.Int64("deleted", n))
	return n, nil
}

func (c *ComputedRelationCache) Stats() CacheStats {
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Computations:  c.computations.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
