// internal/database/sqlite.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jason-s-yu/keepbreathing/internal/logstore"
)

// PollInterval is how often SQLite subscribers re-read the log when no
// in-process append woke them. It picks up writes from other processes
// sharing the file.
var PollInterval = 250 * time.Millisecond

// SQLite is a single-file logstore.Store and ResultArchive.
type SQLite struct {
	db  *sql.DB
	now func() time.Time

	mu     sync.Mutex
	wake   chan struct{}
	closed bool
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens the database file at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps append transactions serialized.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrateSQLite(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLite{db: db, now: time.Now, wake: make(chan struct{})}, nil
}

// Close ends every subscription and closes the handle.
func (s *SQLite) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.wake)
	s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLite) state() (chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wake, s.closed
}

func (s *SQLite) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *SQLite) Append(ctx context.Context, gameID uuid.UUID, rec logstore.Record) (logstore.Entry, error) {
	if err := rec.Validate(); err != nil {
		return logstore.Entry{}, err
	}
	if _, closed := s.state(); closed {
		return logstore.Entry{}, logstore.ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return logstore.Entry{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO game_logs (game_id, created_at) VALUES (?, ?)`,
		gameID.String(), toMillis(s.now()),
	); err != nil {
		return logstore.Entry{}, fmt.Errorf("create log: %w", err)
	}
	var lastSeq, lastTS int64
	if err := tx.QueryRowContext(ctx,
		`SELECT last_seq, last_ts FROM game_logs WHERE game_id = ?`, gameID.String(),
	).Scan(&lastSeq, &lastTS); err != nil {
		return logstore.Entry{}, fmt.Errorf("read log head: %w", err)
	}

	e := logstore.Entry{
		GameID:    gameID,
		Seq:       lastSeq + 1,
		Timestamp: logstore.NextTimestamp(s.now(), lastTS),
		Record:    rec,
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO game_log_entries (game_id, seq, ts, submission_id, submitter, action)
VALUES (?, ?, ?, ?, ?, ?)`,
		gameID.String(), e.Seq, e.Timestamp, rec.SubmissionID.String(), rec.Submitter, string(rec.Action),
	); err != nil {
		return logstore.Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE game_logs SET last_seq = ?, last_ts = ? WHERE game_id = ?`,
		e.Seq, e.Timestamp, gameID.String(),
	); err != nil {
		return logstore.Entry{}, fmt.Errorf("advance log head: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return logstore.Entry{}, fmt.Errorf("commit append: %w", err)
	}
	s.notify()
	return e, nil
}

func (s *SQLite) read(ctx context.Context, gameID uuid.UUID, from int64) ([]logstore.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, ts, submission_id, submitter, action
FROM game_log_entries
WHERE game_id = ? AND seq >= ?
ORDER BY seq`, gameID.String(), from)
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	defer rows.Close()

	var out []logstore.Entry
	for rows.Next() {
		e := logstore.Entry{GameID: gameID}
		var submission, action string
		if err := rows.Scan(&e.Seq, &e.Timestamp, &submission, &e.Submitter, &action); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if e.SubmissionID, err = uuid.Parse(submission); err != nil {
			return nil, fmt.Errorf("entry %d submission id: %w", e.Seq, err)
		}
		e.Action = json.RawMessage(action)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) Subscribe(ctx context.Context, gameID uuid.UUID, from int64) (logstore.Subscription, error) {
	if _, closed := s.state(); closed {
		return nil, logstore.ErrClosed
	}
	next := max(from, 1)
	return logstore.Pump(ctx, func(ctx context.Context, emit logstore.EmitFunc) error {
		ticker := time.NewTicker(PollInterval)
		defer ticker.Stop()
		for {
			// Take the wake channel before reading so no append is missed.
			wake, closed := s.state()
			if closed {
				return logstore.ErrClosed
			}
			batch, err := s.read(ctx, gameID, next)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if _, closed := s.state(); closed {
					return logstore.ErrClosed
				}
				return err
			}
			for _, e := range batch {
				if !emit(e) {
					return ctx.Err()
				}
				next = e.Seq + 1
			}
			select {
			case <-wake:
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}), nil
}

func (s *SQLite) StoreFinalResult(ctx context.Context, r Result) error {
	standings, err := json.Marshal(r.Standings)
	if err != nil {
		return fmt.Errorf("encode standings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO game_results (game_id, fingerprint, standings, entries, finished_at)
VALUES (?, ?, ?, ?, ?)`,
		r.GameID.String(), r.Fingerprint, string(standings), r.Entries, toMillis(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("store result for game %s: %w", r.GameID, err)
	}
	return nil
}

func (s *SQLite) FinalResult(ctx context.Context, gameID uuid.UUID) (Result, error) {
	r := Result{GameID: gameID}
	var standings string
	var finished int64
	err := s.db.QueryRowContext(ctx, `
SELECT fingerprint, standings, entries, finished_at
FROM game_results
WHERE game_id = ?`, gameID.String()).Scan(&r.Fingerprint, &standings, &r.Entries, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, ErrResultNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("load result for game %s: %w", gameID, err)
	}
	if err := json.Unmarshal([]byte(standings), &r.Standings); err != nil {
		return Result{}, fmt.Errorf("decode standings: %w", err)
	}
	r.FinishedAt = fromMillis(finished)
	return r, nil
}
