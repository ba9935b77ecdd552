package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var ErrLeaseLost = errors.New("lease lost")

const (
	DefaultLeaseTTL      = 30 * time.Second
	defaultLeaseWait     = 100 * time.Millisecond
	defaultLeaseJitter   = 50 * time.Millisecond
	leaseReleaseDeadline = 5 * time.Second
)

type leaseConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LeaseLocker serializes work on a key across processes with an expiring
// row in app_locks. A holder that dies releases the key when its TTL lapses.
type LeaseLocker struct {
	db     leaseConn
	ttl    time.Duration
	wait   time.Duration
	jitter time.Duration
}

func NewLeaseLocker(db *pgxpool.Pool, ttl time.Duration) *LeaseLocker {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &LeaseLocker{db: db, ttl: ttl, wait: defaultLeaseWait, jitter: defaultLeaseJitter}
}

// WithLease blocks until the key is free, runs fn while renewing the lease,
// and releases it afterwards. fn's context is cancelled if the lease is lost.
func (l *LeaseLocker) WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token, err := gonanoid.New()
	if err != nil {
		return err
	}

	for {
		ok, err := l.tryAcquire(ctx, key, token)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if err := sleepWithJitter(ctx, l.wait, l.jitter); err != nil {
			return err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.renewLoop(leaseCtx, cancel, stop, key, token)
	}()

	defer func() {
		close(stop)
		wg.Wait()
		cancel(context.Canceled)

		releaseCtx, done := context.WithTimeout(context.WithoutCancel(ctx), leaseReleaseDeadline)
		defer done()
		_, _ = l.db.Exec(releaseCtx, releaseLeaseSQL, key, token)
	}()

	return fn(leaseCtx)
}

func (l *LeaseLocker) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	var got string
	err := l.db.QueryRow(ctx, acquireLeaseSQL, key, token, l.ttl.Milliseconds()).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return got != "", nil
}

func (l *LeaseLocker) renewLoop(ctx context.Context, cancel context.CancelCauseFunc, stop <-chan struct{}, key, token string) {
	t := time.NewTicker(max(l.ttl/2, time.Second))
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			var got string
			err := l.db.QueryRow(ctx, renewLeaseSQL, key, token, l.ttl.Milliseconds()).Scan(&got)
			if errors.Is(err, pgx.ErrNoRows) {
				cancel(ErrLeaseLost)
				return
			}
			if err != nil {
				cancel(err)
				return
			}
		}
	}
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const acquireLeaseSQL = `
INSERT INTO app_locks (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE app_locks.expires_at < now()
   OR app_locks.locked_by = EXCLUDED.locked_by
RETURNING lock_key`

const renewLeaseSQL = `
UPDATE app_locks
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key`

const releaseLeaseSQL = `
DELETE FROM app_locks WHERE lock_key = $1 AND locked_by = $2`
