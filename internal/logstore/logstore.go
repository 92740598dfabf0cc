// internal/logstore/logstore.go
//
// Package logstore defines the shared, append-only action log every client
// folds. The store is the only shared mutable resource: it assigns each
// appended record a gap-free sequence number and a strictly increasing
// millisecond timestamp, and replays the log in that order to subscribers.
package logstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("log store closed")
	// ErrInvalidRecord is returned when a record carries no valid action.
	ErrInvalidRecord = errors.New("invalid log record")
)

// Record is what a client appends: an encoded engine action plus who sent
// it. SubmissionID lets the sender recognise its own entry coming back.
type Record struct {
	SubmissionID uuid.UUID       `json:"submissionId"`
	Submitter    string          `json:"submitter,omitempty"`
	Action       json.RawMessage `json:"action"`
}

// Entry is a record as stored, with its assigned position.
type Entry struct {
	GameID    uuid.UUID `json:"gameId"`
	Seq       int64     `json:"seq"`
	Timestamp int64     `json:"ts"`
	Record
}

// Store is an ordered log of games.
type Store interface {
	// Append atomically adds rec to the end of gameID's log and returns the
	// stored entry. The first append creates the log.
	Append(ctx context.Context, gameID uuid.UUID, rec Record) (Entry, error)
	// Subscribe streams gameID's entries with Seq >= from in order, first
	// the existing ones and then each new one as it is appended.
	Subscribe(ctx context.Context, gameID uuid.UUID, from int64) (Subscription, error)
}

// Subscription is a live tail of one game's log.
type Subscription interface {
	// Entries is closed when the subscription ends.
	Entries() <-chan Entry
	// Err reports why Entries was closed; nil after Close.
	Err() error
	Close() error
}

// Validate checks rec before it is written.
func (rec Record) Validate() error {
	if len(rec.Action) == 0 || !json.Valid(rec.Action) || string(rec.Action) == "null" {
		return ErrInvalidRecord
	}
	return nil
}

// NextTimestamp returns the timestamp for an entry appended at now after
// one stamped last. Stamps never repeat or go backwards, even when the
// wall clock does.
func NextTimestamp(now time.Time, last int64) int64 {
	return max(now.UnixMilli(), last+1)
}
