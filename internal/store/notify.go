package store

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const DefaultInvalidationChannel = "relation_changed"

// Notifier publishes and listens for invalidation events over Postgres
// LISTEN/NOTIFY.
type Notifier struct {
	db      *pgxpool.Pool
	channel string
	logger  *zap.Logger
}

func NewNotifier(db *pgxpool.Pool, channel string, logger *zap.Logger) *Notifier {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &Notifier{db: db, channel: channel, logger: logger}
}

func (n *Notifier) Publish(ctx context.Context, ev domain.InvalidationEvent) error {
	_, err := n.db.Exec(ctx, `SELECT pg_notify($1, $2)`, n.channel, ev.Payload())
	return err
}

// Listen holds one pooled connection in LISTEN mode and hands each parsed
// event to handle. Malformed payloads are logged and skipped.
func (n *Notifier) Listen(ctx context.Context, handle func(ctx context.Context, ev domain.InvalidationEvent)) error {
	conn, err := n.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{n.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen on %s: %w", n.channel, err)
	}

	for {
		note, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		ev, err := domain.ParseInvalidationEvent(note.Payload)
		if err != nil {
			n.logger.Warn("ignoring malformed invalidation payload",
				zap.String("channel", note.Channel), zap.Error(err))
			continue
		}
		handle(ctx, ev)
	}
}
