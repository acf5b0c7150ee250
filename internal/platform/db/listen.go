package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Listen holds a dedicated connection LISTENing on channel and emits every
// notification payload until ctx is cancelled. Dropped connections are
// re-acquired after a short backoff; a reconnect emits an empty payload so
// callers can resynchronise.
func Listen(ctx context.Context, pool *pgxpool.Pool, channel string, logger zerolog.Logger) (<-chan string, error) {
	conn, err := listenConn(ctx, pool, channel)
	if err != nil {
		return nil, err
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		backoff := 500 * time.Millisecond
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err == nil {
				select {
				case out <- n.Payload:
				case <-ctx.Done():
					release(conn)
					return
				}
				continue
			}

			release(conn)
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn().Err(err).Str("channel", channel).Msg("listen connection lost, reconnecting")

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				conn, err = listenConn(ctx, pool, channel)
				if err == nil {
					break
				}
				logger.Warn().Err(err).Str("channel", channel).Msg("listen reconnect failed")
			}
			select {
			case out <- "":
			case <-ctx.Done():
				release(conn)
				return
			}
		}
	}()
	return out, nil
}

func listenConn(ctx context.Context, pool *pgxpool.Pool, channel string) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}
	return conn, nil
}

// release clears LISTEN state before handing the connection back to the pool.
func release(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		conn.Conn().Close(ctx)
	}
	conn.Release()
}
