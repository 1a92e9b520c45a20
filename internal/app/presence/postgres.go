package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"vcall/internal/pkg/logx"
)

const (
	// pgNotifyChannel is the LISTEN/NOTIFY channel carrying presence changes.
	pgNotifyChannel = "presence_changes"

	pgListenRetryDelay = time.Second
)

const (
	sqlSelectValue = `SELECT value FROM presence_entries WHERE key = $1`

	sqlUpsertValue = `
INSERT INTO presence_entries (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	sqlDeleteValue = `DELETE FROM presence_entries WHERE key = $1`

	sqlDeleteTree = `
DELETE FROM presence_entries
WHERE key = $1 OR left(key, length($1) + 1) = $1 || '/'
RETURNING key`

	sqlNotify = `SELECT pg_notify($1, $2)`
)

// pgChange is the JSON payload of a presence_changes notification.
type pgChange struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// PostgresBackend keeps presence values in the presence_entries table and announces
// changes with NOTIFY inside the writing transaction, so listeners only see committed data.
type PostgresBackend struct {
	pool   *pgxpool.Pool
	feed   *feed
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewPostgresBackend starts listening for changes on a dedicated pooled connection.
// The backend takes ownership of pool and closes it in Close.
func NewPostgresBackend(ctx context.Context, pool *pgxpool.Pool) (*PostgresBackend, error) {
	conn, err := listenConn(ctx, pool)
	if err != nil {
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())

	b := &PostgresBackend{
		pool:   pool,
		feed:   newFeed(),
		cancel: cancel,
		logger: logx.Component("presence.postgres"),
	}

	b.wg.Add(1)
	go b.listen(listenCtx, conn)

	b.logger.Info().Msg("Postgres presence backend listening for changes.")
	return b, nil
}

func listenConn(ctx context.Context, pool *pgxpool.Pool) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgNotifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", pgNotifyChannel, err)
	}

	return conn, nil
}

// listen forwards notifications to the feed and re-establishes the LISTEN connection after
// failures. Changes committed while it reconnects are not replayed.
func (b *PostgresBackend) listen(ctx context.Context, conn *pgxpool.Conn) {
	defer b.wg.Done()

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			conn.Release()

			if ctx.Err() != nil {
				b.logger.Info().Msg("Postgres change listener stopped.")
				return
			}

			b.logger.Error().Err(err).Msg("Lost presence change listener, reconnecting.")
			conn = b.reconnect(ctx)
			if conn == nil {
				return
			}
			continue
		}

		var change pgChange
		if err := json.Unmarshal([]byte(notification.Payload), &change); err != nil {
			b.logger.Warn().Err(err).Str("payload", notification.Payload).Msg("Ignoring malformed presence notification.")
			continue
		}

		b.feed.publish(change.Key, normalizeRaw(change.Value))
	}
}

func (b *PostgresBackend) reconnect(ctx context.Context) *pgxpool.Conn {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pgListenRetryDelay):
		}

		conn, err := listenConn(ctx, b.pool)
		if err == nil {
			b.logger.Info().Msg("Presence change listener re-established.")
			return conn
		}

		b.logger.Error().Err(err).Msg("Reconnecting presence change listener failed.")
	}
}

// Get implements Backend.
func (b *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value string

	err := b.pool.QueryRow(ctx, sqlSelectValue, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}

	return []byte(value), nil
}

// Put implements Backend.
func (b *PostgresBackend) Put(ctx context.Context, key string, value []byte) error {
	value = normalizeRaw(value)

	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		if value == nil {
			if _, err := tx.Exec(ctx, sqlDeleteValue, key); err != nil {
				return err
			}
		} else if _, err := tx.Exec(ctx, sqlUpsertValue, key, string(value)); err != nil {
			return err
		}

		return notify(ctx, tx, key, value)
	})
	if err != nil {
		return fmt.Errorf("postgres put %s: %w", key, err)
	}
	return nil
}

// Remove implements Backend.
func (b *PostgresBackend) Remove(ctx context.Context, key string) error {
	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sqlDeleteTree, key)
		if err != nil {
			return err
		}

		removed, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}

		for _, k := range removed {
			if err := notify(ctx, tx, k, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres remove %s: %w", key, err)
	}
	return nil
}

func notify(ctx context.Context, tx pgx.Tx, key string, value []byte) error {
	if value == nil {
		value = nullJSON
	}

	payload, err := json.Marshal(pgChange{Key: key, Value: value})
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, sqlNotify, pgNotifyChannel, string(payload))
	return err
}

// Watch implements Backend.
func (b *PostgresBackend) Watch(key string, fn ChangeFunc) (func(), error) {
	return b.feed.watch(key, b.Get, fn), nil
}

// Close implements Backend.
func (b *PostgresBackend) Close() error {
	b.feed.close()
	b.cancel()
	b.wg.Wait()
	b.pool.Close()
	return nil
}
