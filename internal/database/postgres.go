// internal/database/postgres.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/keepbreathing/internal/logstore"
)

// notifyChannel carries the game id of every append.
const notifyChannel = "game_log"

// ErrResultNotFound is returned for games with no archived result.
var ErrResultNotFound = errors.New("result not found")

// Connect opens a pgx pool for databaseURL and applies the schema.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return pool, nil
}

// PostgresLog is a logstore.Store on Postgres. Appends serialize on the
// game's head row; subscribers LISTEN for appends and re-read from their
// cursor.
type PostgresLog struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

// NewPostgresLog wraps a pool returned by Connect.
func NewPostgresLog(pool *pgxpool.Pool, log *logrus.Entry) *PostgresLog {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PostgresLog{pool: pool, log: log.WithField("store", "postgres")}
}

func (s *PostgresLog) Append(ctx context.Context, gameID uuid.UUID, rec logstore.Record) (logstore.Entry, error) {
	if err := rec.Validate(); err != nil {
		return logstore.Entry{}, err
	}
	e := logstore.Entry{GameID: gameID, Record: rec}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO game_logs (game_id) VALUES ($1) ON CONFLICT (game_id) DO NOTHING`, gameID,
		); err != nil {
			return fmt.Errorf("create log: %w", err)
		}
		// The row lock orders concurrent appends; the database clock stamps
		// them so every relay agrees on time.
		if err := tx.QueryRow(ctx, `
SELECT last_seq + 1,
       GREATEST((extract(epoch FROM clock_timestamp()) * 1000)::bigint, last_ts + 1)
FROM game_logs
WHERE game_id = $1
FOR UPDATE`, gameID).Scan(&e.Seq, &e.Timestamp); err != nil {
			return fmt.Errorf("lock log head: %w", err)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO game_log_entries (game_id, seq, ts, submission_id, submitter, action)
VALUES ($1, $2, $3, $4, $5, $6)`,
			gameID, e.Seq, e.Timestamp, rec.SubmissionID, rec.Submitter, string(rec.Action),
		); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE game_logs SET last_seq = $2, last_ts = $3 WHERE game_id = $1`,
			gameID, e.Seq, e.Timestamp,
		); err != nil {
			return fmt.Errorf("advance log head: %w", err)
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, gameID.String()); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	})
	if err != nil {
		return logstore.Entry{}, fmt.Errorf("append to game %s: %w", gameID, err)
	}
	return e, nil
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func readEntries(ctx context.Context, q pgQuerier, gameID uuid.UUID, from int64) ([]logstore.Entry, error) {
	rows, err := q.Query(ctx, `
SELECT seq, ts, submission_id, submitter, action::text
FROM game_log_entries
WHERE game_id = $1 AND seq >= $2
ORDER BY seq`, gameID, from)
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (logstore.Entry, error) {
		e := logstore.Entry{GameID: gameID}
		var action string
		err := row.Scan(&e.Seq, &e.Timestamp, &e.SubmissionID, &e.Submitter, &action)
		e.Action = json.RawMessage(action)
		return e, err
	})
}

func (s *PostgresLog) Subscribe(ctx context.Context, gameID uuid.UUID, from int64) (logstore.Subscription, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener: %w", err)
	}
	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}

	next := max(from, 1)
	return logstore.Pump(ctx, func(ctx context.Context, emit logstore.EmitFunc) error {
		defer func() {
			if !conn.Conn().IsClosed() {
				_, _ = conn.Exec(context.Background(), `UNLISTEN *`)
			}
			conn.Release()
		}()
		for {
			batch, err := readEntries(ctx, conn, gameID, next)
			if err != nil {
				return err
			}
			for _, e := range batch {
				if !emit(e) {
					return ctx.Err()
				}
				next = e.Seq + 1
			}
			// Wait until some append names this game.
			for {
				n, err := conn.Conn().WaitForNotification(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					s.log.WithError(err).WithField("game", gameID).Error("Listener failed")
					return fmt.Errorf("wait for notification: %w", err)
				}
				if n.Payload == gameID.String() {
					break
				}
			}
		}
	}), nil
}

// PostgresArchive stores final results in game_results.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive wraps a pool returned by Connect.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

func (a *PostgresArchive) StoreFinalResult(ctx context.Context, r Result) error {
	standings, err := json.Marshal(r.Standings)
	if err != nil {
		return fmt.Errorf("encode standings: %w", err)
	}
	_, err = a.pool.Exec(ctx, `
INSERT INTO game_results (game_id, fingerprint, standings, entries, finished_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (game_id) DO NOTHING`,
		r.GameID, r.Fingerprint, string(standings), r.Entries, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("store result for game %s: %w", r.GameID, err)
	}
	return nil
}

func (a *PostgresArchive) FinalResult(ctx context.Context, gameID uuid.UUID) (Result, error) {
	r := Result{GameID: gameID}
	var standings string
	err := a.pool.QueryRow(ctx, `
SELECT fingerprint, standings::text, entries, finished_at
FROM game_results
WHERE game_id = $1`, gameID).Scan(&r.Fingerprint, &standings, &r.Entries, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, ErrResultNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("load result for game %s: %w", gameID, err)
	}
	if err := json.Unmarshal([]byte(standings), &r.Standings); err != nil {
		return Result{}, fmt.Errorf("decode standings: %w", err)
	}
	return r, nil
}
