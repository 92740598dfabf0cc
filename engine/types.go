package engine

import (
	"slices"
	"strings"
)

// Direction is the way a diver is heading along the path.
type Direction string

const (
	Down Direction = "down"
	Up   Direction = "up"
)

// Valid reports whether d is Up or Down.
func (d Direction) Valid() bool { return d == Up || d == Down }

// Loot is an immutable treasure token.
type Loot struct {
	ID    int `json:"id"`
	Level int `json:"level"`
	Value int `json:"value"`
}

// LootGroup is a stack of tokens picked up together. Each carried group
// slows its diver by one step and drains one oxygen per turn.
type LootGroup []Loot

// ScoredLoot is a token banked at the submarine, tagged with the round it
// came back in.
type ScoredLoot struct {
	Loot  Loot `json:"loot"`
	Round int  `json:"round"`
}

// PlayerConfig is one roster entry of a START action.
type PlayerConfig struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color Color  `json:"color"`
}

// PlayerState holds one diver.
type PlayerState struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Color     Color        `json:"color"`
	Position  int          `json:"position"` // Submarine or a path index
	Direction Direction    `json:"direction"`
	Hand      []LootGroup  `json:"hand"`
	Score     []ScoredLoot `json:"score"`
}

// InSubmarine reports whether the diver is off the path.
func (p PlayerState) InSubmarine() bool { return p.Position < 0 }

// Carried returns the number of tokens in the diver's hand.
func (p PlayerState) Carried() int {
	n := 0
	for _, g := range p.Hand {
		n += len(g)
	}
	return n
}

// Space is one spot on the descent path.
type Space struct {
	ID       string `json:"id"`
	Occupant string `json:"playerId,omitempty"`
	Loot     []Loot `json:"loot"`
}

// IsDropSpace reports whether the space was appended to hold dropped loot.
func (s Space) IsDropSpace() bool { return strings.HasPrefix(s.ID, dropSpacePrefix) }

// Phase names the kind of decision the game is waiting for.
type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseRoll     Phase = "roll"
	PhaseSearch   Phase = "search"
	PhaseDrop     Phase = "drop"
	PhaseGameOver Phase = "gameOver"
)

// Turn is the tagged current-turn state. The concrete types are StartTurn,
// RollTurn, SearchTurn, DropTurn and GameOverTurn; type-switch on them.
type Turn interface {
	Phase() Phase
	isTurn()
}

// StartTurn is the placeholder before a START action.
type StartTurn struct{}

// RollTurn waits for PlayerID to roll.
type RollTurn struct{ PlayerID string }

// SearchTurn waits for PlayerID to pass, grab or place.
type SearchTurn struct{ PlayerID string }

// DropTurn waits for PlayerID, one of the drowned divers, to drop their
// hand. Drowned is ordered deepest first.
type DropTurn struct {
	PlayerID string
	Drowned  []string
}

// GameOverTurn is terminal.
type GameOverTurn struct{}

func (StartTurn) Phase() Phase    { return PhaseStart }
func (RollTurn) Phase() Phase     { return PhaseRoll }
func (SearchTurn) Phase() Phase   { return PhaseSearch }
func (DropTurn) Phase() Phase     { return PhaseDrop }
func (GameOverTurn) Phase() Phase { return PhaseGameOver }

func (StartTurn) isTurn()    {}
func (RollTurn) isTurn()     {}
func (SearchTurn) isTurn()   {}
func (DropTurn) isTurn()     {}
func (GameOverTurn) isTurn() {}

// ActivePlayer returns the player the turn is waiting on, if any.
func ActivePlayer(t Turn) (string, bool) {
	switch t := t.(type) {
	case RollTurn:
		return t.PlayerID, true
	case SearchTurn:
		return t.PlayerID, true
	case DropTurn:
		return t.PlayerID, true
	}
	return "", false
}

// AnimationKind tags UI animation hints.
type AnimationKind string

const (
	AnimateBeginRound AnimationKind = "beginRound"
	AnimateRoll       AnimationKind = "roll"
	AnimateSearch     AnimationKind = "search"
	AnimateDrop       AnimationKind = "drop"
)

// Animation describes what the last applied action looked like. Only the
// roll kind fills the remaining fields.
type Animation struct {
	Kind          AnimationKind `json:"kind"`
	PlayerID      string        `json:"playerId,omitempty"`
	Dice          [2]int        `json:"dice,omitempty"`
	DestinationID string        `json:"destinationId,omitempty"`
	Direction     Direction     `json:"direction,omitempty"`
	Steps         []int         `json:"steps,omitempty"`
}

// UIMetadata is reducer-owned and informational. It never feeds game logic
// and is excluded from state fingerprints.
type UIMetadata struct {
	PendingAction bool       `json:"isPendingAction"`
	Animation     *Animation `json:"animate,omitempty"`
}

// GameState is one game in progress. Treat it as a value: Apply returns a
// fresh state and never touches its input.
type GameState struct {
	Round       int                    `json:"round"`
	Oxygen      int                    `json:"oxygen"`
	PlayerOrder []string               `json:"playerOrder"`
	Players     map[string]PlayerState `json:"players"`
	Path        []Space                `json:"path"`
	Turn        Turn                   `json:"-"`
	UI          UIMetadata             `json:"uiMetadata"`
}

// NewBlank returns the placeholder state that precedes START.
func NewBlank() GameState {
	return GameState{
		Round:   1,
		Oxygen:  MaxOxygen,
		Players: map[string]PlayerState{},
		Turn:    StartTurn{},
	}
}

// Phase returns the current turn phase.
func (g GameState) Phase() Phase {
	if g.Turn == nil {
		return PhaseStart
	}
	return g.Turn.Phase()
}

// IsGameOver reports whether the game reached its terminal phase.
func (g GameState) IsGameOver() bool { return g.Phase() == PhaseGameOver }

// ActivePlayer returns the player the game is waiting on.
func (g GameState) ActivePlayer() (string, bool) {
	if g.Turn == nil {
		return "", false
	}
	return ActivePlayer(g.Turn)
}

// Clone returns a deep copy of g.
func (g GameState) Clone() GameState {
	out := g
	out.PlayerOrder = slices.Clone(g.PlayerOrder)
	out.Players = make(map[string]PlayerState, len(g.Players))
	for id, p := range g.Players {
		out.Players[id] = p.clone()
	}
	out.Path = slices.Clone(g.Path)
	for i := range out.Path {
		out.Path[i].Loot = slices.Clone(out.Path[i].Loot)
	}
	if t, ok := g.Turn.(DropTurn); ok {
		t.Drowned = slices.Clone(t.Drowned)
		out.Turn = t
	}
	if g.UI.Animation != nil {
		a := *g.UI.Animation
		a.Steps = slices.Clone(a.Steps)
		out.UI.Animation = &a
	}
	return out
}

func (p PlayerState) clone() PlayerState {
	p.Hand = slices.Clone(p.Hand)
	for i := range p.Hand {
		p.Hand[i] = slices.Clone(p.Hand[i])
	}
	p.Score = slices.Clone(p.Score)
	return p
}
