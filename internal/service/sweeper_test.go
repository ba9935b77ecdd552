package service

import (
	"context"
	"testing"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/Harshitk-cp/medgraph/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweeperService_Sweep(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryComputedRelationStore()
	for _, v := range []string{"v1", "v1", "v2"} {
		require.NoError(t, s.Put(ctx, &domain.ComputedRelation{
			RelationID:   uuid.New(),
			ScopeHash:    domain.ScopeHash(uuid.New(), nil),
			ModelVersion: v,
			Payload:      []byte(`{}`),
		}, 0))
	}

	sweeper := NewSweeperService(s, "v2", zap.NewNop())
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 1, s.Len())

	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeperService_StartStop(t *testing.T) {
	sweeper := NewSweeperService(store.NewMemoryComputedRelationStore(), "v1", zap.NewNop())
	sweeper.Start()
	sweeper.Stop()
}
