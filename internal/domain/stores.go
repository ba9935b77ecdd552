package domain

import (
	"context"

	"github.com/google/uuid"
)

// RevisionStore is the read side of the revisioned entity/source/relation
// storage. All methods are pure reads.
type RevisionStore interface {
	// FindCurrentRelations returns every current relation revision whose
	// current role set includes entityID with roleType and whose scope
	// satisfies the filter. Order is unspecified.
	FindCurrentRelations(ctx context.Context, entityID uuid.UUID, roleType string, scope ScopeFilter) ([]Match, error)
	// CurrentRoleTypes lists, sorted, the role types the entity plays on
	// current relation revisions.
	CurrentRoleTypes(ctx context.Context, entityID uuid.UUID) ([]string, error)
	// RoleTypeUsed reports whether any revision, current or not, ever bound
	// the entity with roleType.
	RoleTypeUsed(ctx context.Context, entityID uuid.UUID, roleType string) (bool, error)
	EntityExists(ctx context.Context, entityID uuid.UUID) (bool, error)
	RelationIDsBySource(ctx context.Context, sourceID uuid.UUID) ([]uuid.UUID, error)
}

// RevisionWriter appends revisions. Mutating a relation or source
// invalidates the computed relations that used it.
type RevisionWriter interface {
	CreateEntity(ctx context.Context, rev *EntityRevision) (*Entity, error)
	ReviseEntity(ctx context.Context, entityID uuid.UUID, rev *EntityRevision) error
	DeleteEntity(ctx context.Context, entityID uuid.UUID) error

	CreateSource(ctx context.Context, rev *SourceRevision) (*Source, error)
	ReviseSource(ctx context.Context, sourceID uuid.UUID, rev *SourceRevision) error

	CreateRelation(ctx context.Context, sourceID uuid.UUID, rev *RelationRevision) (*Relation, error)
	// ReviseRelation appends a revision; when rev.Roles is nil the roles of
	// the previous current revision are copied.
	ReviseRelation(ctx context.Context, relationID uuid.UUID, rev *RelationRevision) error
	DeleteRelation(ctx context.Context, relationID uuid.UUID) error
}

// ComputedRelationStore persists cached aggregation results. Callers other
// than the computed relation cache must not write to it.
//
// Every entity carries an epoch. Deleting an entity's entries through any
// Delete method, or through a RevisionWriter mutation, advances it.
type ComputedRelationStore interface {
	Get(ctx context.Context, key CacheKey) (*ComputedRelation, error)
	Epoch(ctx context.Context, entityID uuid.UUID) (int64, error)
	// Put stores c only while the epoch of c.EntityID still equals epoch,
	// and fails with a stale-epoch error otherwise.
	Put(ctx context.Context, c *ComputedRelation, epoch int64) error
	DeleteByKey(ctx context.Context, key CacheKey) error
	DeleteByScopeHash(ctx context.Context, scopeHash string) (int64, error)
	DeleteByRelation(ctx context.Context, relationID uuid.UUID) (int64, error)
	DeleteByEntity(ctx context.Context, entityID uuid.UUID) (int64, error)
	DeleteStaleVersions(ctx context.Context, currentVersion string) (int64, error)
}

// Locker serializes work on a key across processes.
type Locker interface {
	WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// InvalidationSource delivers invalidation events published by writers.
// Listen blocks until ctx is done or the source fails.
type InvalidationSource interface {
	Listen(ctx context.Context, handle func(ctx context.Context, ev InvalidationEvent)) error
}
