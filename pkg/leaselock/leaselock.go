// Package leaselock serializes work across workers with a Postgres-backed
// lease. A lease is a row in app_locks that expires on its own, so a crashed
// holder never blocks the key forever. The client implements store.Locker.
package leaselock

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrLost is the cancellation cause when a held lease could not be renewed.
var ErrLost = errors.New("lease lock lost")

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Client struct {
	db dbConn

	ttl        time.Duration
	renewEvery time.Duration
	waitEvery  time.Duration
}

type Option func(*Client)

// WithTTL sets how long an unrenewed lease survives.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.ttl = ttl
	}
}

func New(pool *pgxpool.Pool, opts ...Option) *Client {
	c := &Client{
		db:        pool,
		ttl:       time.Minute,
		waitEvery: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.renewEvery = max(c.ttl/2, time.Second)
	return c
}

// WithLock runs fn while holding the lease for key, waiting for the lease if
// another holder has it. The context passed to fn is cancelled with ErrLost
// if the lease cannot be renewed mid-flight.
func (c *Client) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return errors.New("lease lock key is empty")
	}

	token, err := gonanoid.New()
	if err != nil {
		return err
	}

	for {
		ok, err := c.tryAcquire(ctx, key, token)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		// Jitter the wait so contending workers do not retry in lockstep.
		if err := sleep(ctx, c.waitEvery+time.Duration(rand.Int64N(int64(c.waitEvery)))); err != nil {
			return err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(context.Canceled)

	done := make(chan struct{})
	defer close(done)
	go c.renewLoop(leaseCtx, cancel, done, key, token)

	defer func() {
		_, _ = c.db.Exec(context.Background(), releaseSQL, key, token)
	}()
	return fn(leaseCtx)
}

func (c *Client) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	var returnedKey string
	err := c.db.QueryRow(ctx, tryAcquireSQL, key, token, c.ttl.Milliseconds()).Scan(&returnedKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) renewLoop(ctx context.Context, cancel context.CancelCauseFunc, done <-chan struct{}, key, token string) {
	t := time.NewTicker(c.renewEvery)
	defer t.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.renewOnce(ctx, key, token); err != nil {
				cancel(err)
				return
			}
		}
	}
}

func (c *Client) renewOnce(ctx context.Context, key, token string) error {
	for attempt := range 3 {
		renewCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		var returnedKey string
		err := c.db.QueryRow(renewCtx, renewSQL, key, token, c.ttl.Milliseconds()).Scan(&returnedKey)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
		if attempt == 2 {
			return err
		}
		if err := sleep(ctx, 200*time.Millisecond); err != nil {
			return err
		}
	}
	return ErrLost
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const tryAcquireSQL = `
INSERT INTO app_locks (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE app_locks.expires_at < now()
   OR app_locks.locked_by = EXCLUDED.locked_by
RETURNING lock_key;
`

const renewSQL = `
UPDATE app_locks
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key;
`

const releaseSQL = `
DELETE FROM app_locks
WHERE lock_key = $1 AND locked_by = $2;
`
