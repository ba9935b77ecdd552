package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chanSource replays events from a channel and fails once up front.
type chanSource struct {
	events chan domain.InvalidationEvent
	calls  atomic.Int32
}

func (s *chanSource) Listen(ctx context.Context, handle func(context.Context, domain.InvalidationEvent)) error {
	if s.calls.Add(1) == 1 {
		return errors.New("connection reset")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			handle(ctx, ev)
		}
	}
}

func putEntry(t *testing.T, sc *scenario, inputs ...uuid.UUID) domain.CacheKey {
	t.Helper()
	c := &domain.ComputedRelation{
		RelationID:   uuid.New(),
		ScopeHash:    domain.ScopeHash(uuid.New(), nil),
		ModelVersion: "v1",
		EntityID:     uuid.New(),
		Payload:      []byte(`{}`),
		Inputs:       inputs,
	}
	require.NoError(t, sc.computed.Put(context.Background(), c, 0))
	return c.Key()
}

func TestInvalidationListener_Handle(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t)
	cache := NewComputedRelationCache(sc.computed, zap.NewNop())
	l := NewInvalidationListener(&chanSource{}, sc.revisions, cache, zap.NewNop())

	putEntry(t, sc, sc.r1)
	l.Handle(ctx, domain.InvalidationEvent{Kind: domain.InvalidateRelation, ID: sc.r1})
	assert.Equal(t, 0, sc.computed.Len())

	putEntry(t, sc, sc.r2)
	l.Handle(ctx, domain.InvalidationEvent{Kind: domain.InvalidateSource, ID: sc.sourceB})
	assert.Equal(t, 0, sc.computed.Len())

	key := putEntry(t, sc)
	l.Handle(ctx, domain.InvalidationEvent{Kind: domain.InvalidateScope, ScopeHash: key.ScopeHash})
	assert.Equal(t, 0, sc.computed.Len())

	key = putEntry(t, sc)
	entry, err := sc.computed.Get(ctx, key)
	require.NoError(t, err)
	l.Handle(ctx, domain.InvalidationEvent{Kind: domain.InvalidateEntity, ID: entry.EntityID})
	assert.Equal(t, 0, sc.computed.Len())
}

func TestInvalidationListener_RetriesAndStops(t *testing.T) {
	sc := newScenario(t)
	cache := NewComputedRelationCache(sc.computed, zap.NewNop())
	src := &chanSource{events: make(chan domain.InvalidationEvent)}
	l := NewInvalidationListener(src, sc.revisions, cache, zap.NewNop())
	l.SetRetryDelay(10 * time.Millisecond)

	putEntry(t, sc, sc.r1)
	l.Start()
	defer l.Stop()

	src.events <- domain.InvalidationEvent{Kind: domain.InvalidateRelation, ID: sc.r1}
	assert.Eventually(t, func() bool { return sc.computed.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, src.calls.Load(), int32(2))
}
