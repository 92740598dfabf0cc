package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jason-s-yu/keepbreathing/engine"
)

// Result is the archived outcome of a finished game.
type Result struct {
	GameID      uuid.UUID         `json:"gameId"`
	Fingerprint string            `json:"fingerprint"`
	Standings   []engine.Standing `json:"standings"`
	Entries     int64             `json:"entries"` // log length at game over
	FinishedAt  time.Time         `json:"finishedAt"`
}

// ResultArchive stores final results. Archiving the same game twice keeps
// the first result.
type ResultArchive interface {
	StoreFinalResult(ctx context.Context, r Result) error
	FinalResult(ctx context.Context, gameID uuid.UUID) (Result, error)
}
