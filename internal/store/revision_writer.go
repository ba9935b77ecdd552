package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func (s *RevisionStore) CreateEntity(ctx context.Context, rev *domain.EntityRevision) (*domain.Entity, error) {
	e := &domain.Entity{}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO entities DEFAULT VALUES RETURNING id, created_at`,
		).Scan(&e.ID, &e.CreatedAt); err != nil {
			return err
		}
		return insertEntityRevision(ctx, tx, e.ID, rev)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *RevisionStore) ReviseEntity(ctx context.Context, entityID uuid.UUID, rev *domain.EntityRevision) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE entity_revisions SET is_current = FALSE WHERE entity_id = $1 AND is_current`,
			entityID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return insertEntityRevision(ctx, tx, entityID, rev)
	})
}

func insertEntityRevision(ctx context.Context, tx pgx.Tx, entityID uuid.UUID, rev *domain.EntityRevision) error {
	rev.EntityID = entityID
	return tx.QueryRow(ctx,
		`INSERT INTO entity_revisions (entity_id, slug, summary, ui_category)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		entityID, rev.Slug, rev.Summary, rev.UICategory,
	).Scan(&rev.ID, &rev.CreatedAt)
}

// DeleteEntity removes the entity, its revisions and every relation that
// ever gave it a role.
func (s *RevisionStore) DeleteEntity(ctx context.Context, entityID uuid.UUID) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT DISTINCT rr.relation_id
			 FROM relation_role_revisions rl
			 JOIN relation_revisions rr ON rr.id = rl.relation_revision_id
			 WHERE rl.entity_id = $1`,
			entityID,
		)
		if err != nil {
			return err
		}
		relationIDs, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return err
		}

		for _, id := range relationIDs {
			if err := s.invalidateRelationTx(ctx, tx, id); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM relations WHERE id = ANY($1)`, relationIDs); err != nil {
			return err
		}
		if _, err := bumpEpochs(ctx, tx, []uuid.UUID{entityID}); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM computed_relations WHERE entity_id = $1`, entityID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM entities WHERE id = $1`, entityID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *RevisionStore) CreateSource(ctx context.Context, rev *domain.SourceRevision) (*domain.Source, error) {
	if err := domain.ValidateSourceRevision(rev); err != nil {
		return nil, err
	}

	src := &domain.Source{}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO sources DEFAULT VALUES RETURNING id, created_at`,
		).Scan(&src.ID, &src.CreatedAt); err != nil {
			return err
		}
		return insertSourceRevision(ctx, tx, src.ID, rev)
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// ReviseSource appends a source revision and invalidates every computed
// relation fed by the source's relations.
func (s *RevisionStore) ReviseSource(ctx context.Context, sourceID uuid.UUID, rev *domain.SourceRevision) error {
	if err := domain.ValidateSourceRevision(rev); err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE source_revisions SET is_current = FALSE WHERE source_id = $1 AND is_current`,
			sourceID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if err := insertSourceRevision(ctx, tx, sourceID, rev); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `SELECT id FROM relations WHERE source_id = $1`, sourceID)
		if err != nil {
			return err
		}
		relationIDs, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return err
		}
		for _, id := range relationIDs {
			if err := s.invalidateRelationTx(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertSourceRevision(ctx context.Context, tx pgx.Tx, sourceID uuid.UUID, rev *domain.SourceRevision) error {
	rev.SourceID = sourceID
	authors := rev.Authors
	if authors == nil {
		authors = []string{}
	}
	return tx.QueryRow(ctx,
		`INSERT INTO source_revisions (source_id, title, authors, year, origin, url, trust_level, document)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		sourceID, rev.Title, authors, rev.Year, rev.Origin, rev.URL, rev.TrustLevel, rev.Document,
	).Scan(&rev.ID, &rev.CreatedAt)
}

func (s *RevisionStore) CreateRelation(ctx context.Context, sourceID uuid.UUID, rev *domain.RelationRevision) (*domain.Relation, error) {
	if err := domain.ValidateRelationRevision(rev); err != nil {
		return nil, err
	}

	rel := &domain.Relation{SourceID: sourceID}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO relations (source_id) VALUES ($1) RETURNING id, created_at`,
			sourceID,
		).Scan(&rel.ID, &rel.CreatedAt); err != nil {
			return err
		}
		if err := insertRelationRevision(ctx, tx, rel.ID, rev); err != nil {
			return err
		}
		if err := insertRoles(ctx, tx, rev); err != nil {
			return err
		}
		return s.invalidateRelationTx(ctx, tx, rel.ID)
	})
	if err != nil {
		return nil, mapWriteError(err)
	}
	return rel, nil
}

// ReviseRelation appends a relation revision. Roles are snapshotted per
// revision: a nil rev.Roles copies the previous revision's roles.
func (s *RevisionStore) ReviseRelation(ctx context.Context, relationID uuid.UUID, rev *domain.RelationRevision) error {
	if err := domain.ValidateRelationRevision(rev); err != nil {
		return err
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var previousID uuid.UUID
		err := tx.QueryRow(ctx,
			`UPDATE relation_revisions SET is_current = FALSE
			 WHERE relation_id = $1 AND is_current
			 RETURNING id`,
			relationID,
		).Scan(&previousID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if err := insertRelationRevision(ctx, tx, relationID, rev); err != nil {
			return err
		}

		if rev.Roles == nil {
			if _, err := tx.Exec(ctx,
				`INSERT INTO relation_role_revisions (relation_revision_id, entity_id, role_type, weight, coverage)
				 SELECT $1, entity_id, role_type, weight, coverage
				 FROM relation_role_revisions WHERE relation_revision_id = $2`,
				rev.ID, previousID,
			); err != nil {
				return err
			}
		} else if err := insertRoles(ctx, tx, rev); err != nil {
			return err
		}

		return s.invalidateRelationTx(ctx, tx, relationID)
	})
	return mapWriteError(err)
}

func (s *RevisionStore) DeleteRelation(ctx context.Context, relationID uuid.UUID) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.invalidateRelationTx(ctx, tx, relationID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM relations WHERE id = $1`, relationID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func insertRelationRevision(ctx context.Context, tx pgx.Tx, relationID uuid.UUID, rev *domain.RelationRevision) error {
	rev.RelationID = relationID
	return tx.QueryRow(ctx,
		`INSERT INTO relation_revisions (relation_id, kind, direction, confidence, scope, notes)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		 RETURNING id, created_at`,
		relationID, rev.Kind, string(rev.Direction), rev.Confidence, encodeScope(rev.Scope), rev.Notes,
	).Scan(&rev.ID, &rev.CreatedAt)
}

func insertRoles(ctx context.Context, tx pgx.Tx, rev *domain.RelationRevision) error {
	for _, role := range rev.Roles {
		if _, err := tx.Exec(ctx,
			`INSERT INTO relation_role_revisions (relation_revision_id, entity_id, role_type, weight, coverage)
			 VALUES ($1, $2, $3, $4, $5)`,
			rev.ID, role.EntityID, role.RoleType, role.Weight, role.Coverage,
		); err != nil {
			return err
		}
	}
	return nil
}

// invalidateRelationTx advances the epochs of every entity the relation ever
// gave a role and of every entity with an entry computed from it, then
// deletes those entries inside the writer's transaction. Listeners are
// notified on commit.
func (s *RevisionStore) invalidateRelationTx(ctx context.Context, tx pgx.Tx, relationID uuid.UUID) error {
	rows, err := tx.Query(ctx,
		`SELECT rl.entity_id
		 FROM relation_role_revisions rl
		 JOIN relation_revisions rr ON rr.id = rl.relation_revision_id
		 WHERE rr.relation_id = $1
		 UNION
		 SELECT c.entity_id
		 FROM computed_relations c
		 WHERE c.relation_id = $1
		    OR c.relation_id IN (SELECT computed_id FROM computed_relation_inputs WHERE relation_id = $1)`,
		relationID,
	)
	if err != nil {
		return err
	}
	affected, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return err
	}
	if _, err := bumpEpochs(ctx, tx, affected); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM computed_relations c
		 WHERE c.relation_id = $1
		    OR c.relation_id IN (SELECT computed_id FROM computed_relation_inputs WHERE relation_id = $1)
		    OR c.entity_id = ANY($2)`,
		relationID, affected,
	); err != nil {
		return err
	}

	events := []domain.InvalidationEvent{{Kind: domain.InvalidateRelation, ID: relationID}}
	for _, id := range affected {
		events = append(events, domain.InvalidationEvent{Kind: domain.InvalidateEntity, ID: id})
	}
	for _, ev := range events {
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel, ev.Payload()); err != nil {
			return err
		}
	}
	return nil
}

// mapWriteError turns foreign key violations (unknown source or entity) into
// ErrNotFound.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	return err
}
