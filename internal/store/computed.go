package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ComputedRelationStore persists cached inference results keyed by
// (scope_hash, model_version).
type ComputedRelationStore struct {
	db *pgxpool.Pool
}

func NewComputedRelationStore(db *pgxpool.Pool) *ComputedRelationStore {
	return &ComputedRelationStore{db: db}
}

func (s *ComputedRelationStore) Get(ctx context.Context, key domain.CacheKey) (*domain.ComputedRelation, error) {
	c := &domain.ComputedRelation{}
	var scopeJSON, payload []byte
	err := s.db.QueryRow(ctx,
		`SELECT c.relation_id, c.scope_hash, c.model_version, c.entity_id, c.scope, c.payload,
		        c.uncertainty, c.computed_at,
		        COALESCE(array_agg(i.relation_id ORDER BY i.relation_id) FILTER (WHERE i.relation_id IS NOT NULL), '{}')
		 FROM computed_relations c
		 LEFT JOIN computed_relation_inputs i ON i.computed_id = c.relation_id
		 WHERE c.scope_hash = $1 AND c.model_version = $2
		 GROUP BY c.relation_id`,
		key.ScopeHash, key.ModelVersion,
	).Scan(&c.RelationID, &c.ScopeHash, &c.ModelVersion, &c.EntityID, &scopeJSON, &payload,
		&c.Uncertainty, &c.ComputedAt, &c.Inputs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if c.Scope, err = decodeScope(scopeJSON); err != nil {
		return nil, err
	}
	c.Payload = payload
	return c, nil
}

// Epoch returns the entity's invalidation epoch, zero when it was never
// invalidated.
func (s *ComputedRelationStore) Epoch(ctx context.Context, entityID uuid.UUID) (int64, error) {
	var epoch int64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE((SELECT epoch FROM computed_entity_epochs WHERE entity_id = $1), 0)`,
		entityID,
	).Scan(&epoch)
	return epoch, err
}

// Put stores c, replacing any entry with the same key, as long as the
// entity's epoch still equals epoch. Superseded entries are deleted rather
// than versioned.
func (s *ComputedRelationStore) Put(ctx context.Context, c *domain.ComputedRelation, epoch int64) error {
	if c.RelationID == uuid.Nil {
		return fmt.Errorf("computed relation %s has no id", c.Key())
	}
	if len(c.Payload) == 0 {
		return fmt.Errorf("computed relation %s has no payload", c.Key())
	}

	inputs := c.Inputs
	if inputs == nil {
		inputs = []uuid.UUID{}
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		// The share lock holds off writers until commit; a writer that got
		// there first has already advanced the epoch.
		if _, err := tx.Exec(ctx,
			`INSERT INTO computed_entity_epochs (entity_id) VALUES ($1) ON CONFLICT DO NOTHING`,
			c.EntityID,
		); err != nil {
			return err
		}
		var current int64
		if err := tx.QueryRow(ctx,
			`SELECT epoch FROM computed_entity_epochs WHERE entity_id = $1 FOR SHARE`,
			c.EntityID,
		).Scan(&current); err != nil {
			return err
		}
		if current != epoch {
			return fmt.Errorf("%w: entity %s at %d, computed at %d", ErrStaleEpoch, c.EntityID, current, epoch)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM computed_relations WHERE scope_hash = $1 AND model_version = $2`,
			c.ScopeHash, c.ModelVersion,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO computed_relations
			     (relation_id, scope_hash, model_version, entity_id, scope, payload, uncertainty, computed_at)
			 VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8)`,
			c.RelationID, c.ScopeHash, c.ModelVersion, c.EntityID, encodeScope(c.Scope),
			string(c.Payload), c.Uncertainty, c.ComputedAt,
		); err != nil {
			return err
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO computed_relation_inputs (computed_id, relation_id)
			 SELECT $1, unnest($2::uuid[])
			 ON CONFLICT DO NOTHING`,
			c.RelationID, inputs,
		)
		return err
	})

	// A concurrent writer stored the same key first.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

func (s *ComputedRelationStore) DeleteByKey(ctx context.Context, key domain.CacheKey) error {
	_, err := s.deleteWhere(ctx,
		`scope_hash = $1 AND model_version = $2`, key.ScopeHash, key.ModelVersion)
	return err
}

func (s *ComputedRelationStore) DeleteByScopeHash(ctx context.Context, scopeHash string) (int64, error) {
	return s.deleteWhere(ctx, `scope_hash = $1`, scopeHash)
}

// DeleteByRelation deletes the entry whose surrogate id is relationID and
// every entry computed from that relation.
func (s *ComputedRelationStore) DeleteByRelation(ctx context.Context, relationID uuid.UUID) (int64, error) {
	return s.deleteWhere(ctx,
		`relation_id = $1
		 OR relation_id IN (SELECT computed_id FROM computed_relation_inputs WHERE relation_id = $1)`,
		relationID)
}

// DeleteByEntity advances the entity's epoch even when nothing is cached, so
// a computation already running for it cannot store its result.
func (s *ComputedRelationStore) DeleteByEntity(ctx context.Context, entityID uuid.UUID) (int64, error) {
	var n int64
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := bumpEpochs(ctx, tx, []uuid.UUID{entityID}); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM computed_relations WHERE entity_id = $1`, entityID)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

// deleteWhere advances the epochs of the entities owning matching rows, then
// deletes the rows.
func (s *ComputedRelationStore) deleteWhere(ctx context.Context, cond string, args ...any) (int64, error) {
	var n int64
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT DISTINCT entity_id FROM computed_relations WHERE `+cond, args...)
		if err != nil {
			return err
		}
		entities, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return err
		}
		if _, err := bumpEpochs(ctx, tx, entities); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM computed_relations WHERE `+cond, args...)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

// bumpEpochs advances the epoch of every listed entity and returns them.
func bumpEpochs(ctx context.Context, tx pgx.Tx, entities []uuid.UUID) ([]uuid.UUID, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	rows, err := tx.Query(ctx,
		`INSERT INTO computed_entity_epochs (entity_id, epoch)
		 SELECT DISTINCT unnest($1::uuid[]), 1
		 ON CONFLICT (entity_id) DO UPDATE SET epoch = computed_entity_epochs.epoch + 1
		 RETURNING entity_id`,
		entities,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (s *ComputedRelationStore) DeleteStaleVersions(ctx context.Context, currentVersion string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM computed_relations WHERE model_version <> $1`,
		currentVersion,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
