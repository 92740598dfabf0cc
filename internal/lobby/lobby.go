// internal/lobby/lobby.go
//
// Package lobby assigns palette colors to the people in a room before a
// game starts. Claims are compare-and-set: a color belongs to at most one
// seat, and a seat holds at most one color. The finished assignment
// becomes the players list of the START action.
package lobby

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	engine "github.com/jason-s-yu/keepbreathing/engine"
)

var (
	// ErrColorTaken is returned when another seat already holds the color.
	ErrColorTaken = errors.New("color already taken")
	// ErrInvalidColor is returned for colors outside the palette.
	ErrInvalidColor = errors.New("color not in palette")
	// ErrInvalidSeat is returned for a seat without an id.
	ErrInvalidSeat = errors.New("seat requires an id")
)

// Seat is the person occupying a color.
type Seat struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Assignment maps each claimed color to its seat.
type Assignment map[engine.Color]Seat

// Slots is the shared color mapping of every room.
type Slots interface {
	// Claim gives color to seat, moving the seat off any color it held.
	// Claiming a color the seat already holds updates its name.
	Claim(ctx context.Context, room uuid.UUID, color engine.Color, seat Seat) error
	// Release frees whatever color seatID holds. Releasing an unseated id
	// is a no-op; it runs when a client disconnects.
	Release(ctx context.Context, room uuid.UUID, seatID string) error
	// Colors returns the current assignment.
	Colors(ctx context.Context, room uuid.UUID) (Assignment, error)
}

// Claim applies a claim to a copy of a and returns it.
func (a Assignment) Claim(color engine.Color, seat Seat) (Assignment, error) {
	if !color.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}
	if seat.ID == "" {
		return nil, ErrInvalidSeat
	}
	if holder, ok := a[color]; ok && holder.ID != seat.ID {
		return nil, fmt.Errorf("%w: %s holds %s", ErrColorTaken, holder.ID, color)
	}
	next := a.Release(seat.ID)
	next[color] = seat
	return next, nil
}

// Release returns a copy of a without seatID.
func (a Assignment) Release(seatID string) Assignment {
	next := make(Assignment, len(a))
	for c, s := range a {
		if s.ID != seatID {
			next[c] = s
		}
	}
	return next
}

// Held returns the color seatID holds.
func (a Assignment) Held(seatID string) (engine.Color, bool) {
	for c, s := range a {
		if s.ID == seatID {
			return c, true
		}
	}
	return "", false
}

// Roster lists the seated players in palette order, ready for START.
func (a Assignment) Roster() []engine.PlayerConfig {
	var out []engine.PlayerConfig
	for _, c := range engine.Palette {
		if s, ok := a[c]; ok {
			out = append(out, engine.PlayerConfig{ID: s.ID, Name: s.Name, Color: c})
		}
	}
	return out
}

// StartAction builds the START action for the room's current roster. The
// engine rejects rosters outside 2..6 players when it is applied.
func (a Assignment) StartAction() engine.Start {
	return engine.Start{Players: a.Roster()}
}
