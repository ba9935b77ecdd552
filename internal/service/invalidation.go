package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"go.uber.org/zap"
)

const listenRetryDelay = 5 * time.Second

// InvalidationListener applies invalidation events published by writers
// outside this process to the computed relation cache.
type InvalidationListener struct {
	source    domain.InvalidationSource
	revisions domain.RevisionStore
	cache     *ComputedRelationCache
	logger    *zap.Logger

	retryDelay time.Duration
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewInvalidationListener(src domain.InvalidationSource, rs domain.RevisionStore, cache *ComputedRelationCache, logger *zap.Logger) *InvalidationListener {
	return &InvalidationListener{
		source:     src,
		revisions:  rs,
		cache:      cache,
		logger:     logger,
		retryDelay: listenRetryDelay,
	}
}

func (l *InvalidationListener) SetRetryDelay(d time.Duration) {
	if d > 0 {
		l.retryDelay = d
	}
}

// Start listens in a background goroutine, reconnecting after failures.
func (l *InvalidationListener) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.logger.Info("invalidation listener started")

		for {
			err := l.source.Listen(ctx, l.Handle)
			if ctx.Err() != nil {
				l.logger.Info("invalidation listener stopped")
				return
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Error("invalidation listener failed, retrying",
					zap.Error(err), zap.Duration("retry_in", l.retryDelay))
			}

			select {
			case <-ctx.Done():
				l.logger.Info("invalidation listener stopped")
				return
			case <-time.After(l.retryDelay):
			}
		}
	}()
}

// Stop gracefully stops the listener.
func (l *InvalidationListener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// Handle applies one event.
func (l *InvalidationListener) Handle(ctx context.Context, ev domain.InvalidationEvent) {
	switch ev.Kind {
	case domain.InvalidateRelation:
		if _, err := l.cache.InvalidateRelation(ctx, ev.ID); err != nil {
			l.logger.Error("failed to invalidate relation",
				zap.String("relation_id", ev.ID.String()), zap.Error(err))
		}

	case domain.InvalidateSource:
		ids, err := l.revisions.RelationIDsBySource(ctx, ev.ID)
		if err != nil {
			l.logger.Error("failed to list relations for source",
				zap.String("source_id", ev.ID.String()), zap.Error(err))
			return
		}
		for _, id := range ids {
			if _, err := l.cache.InvalidateRelation(ctx, id); err != nil {
				l.logger.Error("failed to invalidate relation",
					zap.String("relation_id", id.String()), zap.Error(err))
			}
		}

	case domain.InvalidateEntity:
		if _, err := l.cache.InvalidateEntity(ctx, ev.ID); err != nil {
			l.logger.Error("failed to invalidate entity",
				zap.String("entity_id", ev.ID.String()), zap.Error(err))
		}

	case domain.InvalidateScope:
		if _, err := l.cache.InvalidateScope(ctx, ev.ScopeHash); err != nil {
			l.logger.Error("failed to invalidate scope",
				zap.String("scope_hash", ev.ScopeHash), zap.Error(err))
		}

	default:
		l.logger.Warn("ignoring unknown invalidation event", zap.String("kind", string(ev.Kind)))
	}
}
