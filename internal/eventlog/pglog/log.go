// Package pglog implements the event log on a Postgres append-only table.
// History is an ordered select; the live tail is a short-interval poll from
// the last-seen sequence id.
package pglog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/openoutcry/crier/internal/eventlog"
)

//go:embed migrations/*.sql
var migrations embed.FS

const defaultPollInterval = 200 * time.Millisecond

// Log is a Postgres backed eventlog.Log.
type Log struct {
	pool     *pgxpool.Pool
	interval time.Duration
	logger   *slog.Logger
}

// New creates a log over the given pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Log {
	return &Log{pool: pool, interval: defaultPollInterval, logger: logger}
}

// Migrate applies the log schema migrations.
func Migrate(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("open database for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Append inserts the entry and returns its sequence id.
func (l *Log) Append(ctx context.Context, topic, key string, value []byte) (string, error) {
	var id int64
	err := l.pool.QueryRow(ctx,
		`INSERT INTO log_entries (topic, key, value) VALUES ($1, $2, $3) RETURNING id`,
		topic, key, value,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("append log entry: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Stream selects everything appended to the topic so far and then polls for
// entries past the last-seen id until ctx is cancelled.
func (l *Log) Stream(ctx context.Context, topic string) (<-chan eventlog.Entry, error) {
	out := make(chan eventlog.Entry)
	go func() {
		defer close(out)
		var last int64
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			next, err := l.readFrom(ctx, topic, last, out)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Warn("log poll failed, retrying", "topic", topic, "error", err)
			} else {
				last = next
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close releases the pool.
func (l *Log) Close() error {
	l.pool.Close()
	return nil
}

func (l *Log) readFrom(ctx context.Context, topic string, after int64, out chan<- eventlog.Entry) (int64, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, key, value FROM log_entries WHERE topic = $1 AND id > $2 ORDER BY id`,
		topic, after,
	)
	if err != nil {
		return after, err
	}
	defer rows.Close()

	last := after
	for rows.Next() {
		var (
			id    int64
			key   string
			value []byte
		)
		if err := rows.Scan(&id, &key, &value); err != nil {
			return last, err
		}
		e := eventlog.Entry{
			Topic: topic,
			Key:   key,
			ID:    strconv.FormatInt(id, 10),
			Value: value,
		}
		select {
		case out <- e:
		case <-ctx.Done():
			return last, ctx.Err()
		}
		last = id
	}
	return last, rows.Err()
}
