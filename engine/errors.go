package engine

import "errors"

// Stale errors: the action targets a decision point that is not (or no
// longer) open. A replaying client discards these; they are how a losing
// concurrent submission shows up after the winner is folded.
var (
	ErrGameActive    = errors.New("game already started")
	ErrGameNotActive = errors.New("game has not started")
	ErrGameOver      = errors.New("game is over")
	ErrWrongPhase    = errors.New("action not allowed in this phase")
	ErrNotYourTurn   = errors.New("not this player's turn")
)

// Precondition errors: the active player asked for something the rules
// forbid.
var (
	ErrInvalidPlayers   = errors.New("invalid player roster")
	ErrUnknownPlayer    = errors.New("unknown player")
	ErrUnknownAction    = errors.New("unknown action")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrCannotDescend    = errors.New("cannot descend after turning back")
	ErrNotOnPath        = errors.New("diver is not on a path space")
	ErrNoLoot           = errors.New("space holds no loot")
	ErrSpaceHasLoot     = errors.New("space already holds loot")
	ErrHandIndex        = errors.New("hand index out of range")
	ErrInvalidSearch    = errors.New("invalid search kind")
)

// ErrCannotDive means a roll found no reachable space below the diver.
var ErrCannotDive = errors.New("unable to dive deeper")

// IsStale reports whether err means the action's decision point has
// already been resolved.
func IsStale(err error) bool {
	return errors.Is(err, ErrGameActive) ||
		errors.Is(err, ErrGameNotActive) ||
		errors.Is(err, ErrGameOver) ||
		errors.Is(err, ErrWrongPhase) ||
		errors.Is(err, ErrNotYourTurn)
}
