// Package engine implements the Keep Breathing diving game rules.
//
// The engine is a pure state machine: Apply takes a GameState, one Action
// and the timestamp the shared log assigned to that action, and returns the
// next GameState. All randomness is drawn from a Rand seeded with that
// timestamp, so every client folding the same log reaches the same state.
package engine

import (
	"fmt"
	"strconv"
)

const dropSpacePrefix = "drop"

func lootSpaceID(i int) string { return "loot_" + strconv.Itoa(i) }

func dropSpaceID(round int, playerID string, n int) string {
	return fmt.Sprintf("%s_%d_%s_%d", dropSpacePrefix, round, playerID, n)
}

// validateRoster checks the START player list.
func validateRoster(players []PlayerConfig) error {
	if len(players) < MinPlayers || len(players) > MaxPlayers {
		return fmt.Errorf("%w: need %d-%d players, got %d", ErrInvalidPlayers, MinPlayers, MaxPlayers, len(players))
	}
	ids := make(map[string]bool, len(players))
	colors := make(map[Color]bool, len(players))
	for _, p := range players {
		if p.ID == "" {
			return fmt.Errorf("%w: empty player id", ErrInvalidPlayers)
		}
		if ids[p.ID] {
			return fmt.Errorf("%w: duplicate player id %q", ErrInvalidPlayers, p.ID)
		}
		if !p.Color.Valid() {
			return fmt.Errorf("%w: color %q is not in the palette", ErrInvalidPlayers, p.Color)
		}
		if colors[p.Color] {
			return fmt.Errorf("%w: duplicate color %q", ErrInvalidPlayers, p.Color)
		}
		ids[p.ID] = true
		colors[p.Color] = true
	}
	return nil
}

// newGame builds round one from a START action. Draw order: the player
// shuffle, then each level band of the deck from shallowest to deepest.
func newGame(players []PlayerConfig, rng *Rand) GameState {
	order := shuffled(rng, players)

	path := make([]Space, 0, DeckSize)
	for band := 0; band < NumLevels; band++ {
		chunk := shuffled(rng, AllLoot[band*LevelSize:(band+1)*LevelSize])
		for _, l := range chunk {
			path = append(path, Space{ID: lootSpaceID(len(path)), Loot: []Loot{l}})
		}
	}

	g := GameState{
		Round:       1,
		Oxygen:      MaxOxygen,
		PlayerOrder: make([]string, len(order)),
		Players:     make(map[string]PlayerState, len(order)),
		Path:        path,
		Turn:        RollTurn{PlayerID: order[0].ID},
		UI:          UIMetadata{Animation: &Animation{Kind: AnimateBeginRound}},
	}
	for i, p := range order {
		g.PlayerOrder[i] = p.ID
		g.Players[p.ID] = PlayerState{
			ID:        p.ID,
			Name:      p.Name,
			Color:     p.Color,
			Position:  Submarine,
			Direction: Down,
			Hand:      []LootGroup{},
			Score:     []ScoredLoot{},
		}
	}
	return g
}

// ---------------------------------------------------------------------------
// Query methods
// ---------------------------------------------------------------------------

// Player returns the state of the given diver.
func (g GameState) Player(id string) (PlayerState, bool) {
	p, ok := g.Players[id]
	return p, ok
}

// Occupant returns the diver on path index i, if any.
func (g GameState) Occupant(i int) string {
	if i < 0 || i >= len(g.Path) {
		return ""
	}
	return g.Path[i].Occupant
}

// CanDive reports whether a diver at position from has any free space below.
func (g GameState) CanDive(from int) bool {
	for i := from + 1; i < len(g.Path); i++ {
		if g.Path[i].Occupant == "" {
			return true
		}
	}
	return false
}

// LootCount returns the number of tokens on the board, in hands and banked.
func (g GameState) LootCount() int {
	n := 0
	for _, s := range g.Path {
		n += len(s.Loot)
	}
	for _, p := range g.Players {
		n += p.Carried() + len(p.Score)
	}
	return n
}
