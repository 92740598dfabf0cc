package engine

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvariant reports a state that no legal fold can produce.
var ErrInvariant = errors.New("invariant violated")

// CheckInvariants verifies the structural rules every reachable state
// obeys: the 32 tokens are all present exactly once, path occupancy matches
// diver positions, the active player is in the turn order, and round and
// oxygen are in range. The blank pre-START state passes trivially.
func CheckInvariants(g GameState) error {
	if g.Phase() == PhaseStart {
		return nil
	}
	if g.Round < 1 || g.Round > NumRounds {
		return fmt.Errorf("%w: round %d", ErrInvariant, g.Round)
	}
	if g.Oxygen < 0 || g.Oxygen > MaxOxygen {
		return fmt.Errorf("%w: oxygen %d", ErrInvariant, g.Oxygen)
	}
	if len(g.PlayerOrder) != len(g.Players) {
		return fmt.Errorf("%w: %d in turn order, %d players", ErrInvariant, len(g.PlayerOrder), len(g.Players))
	}
	if active, ok := g.ActivePlayer(); ok && !slices.Contains(g.PlayerOrder, active) {
		return fmt.Errorf("%w: active player %q not in turn order", ErrInvariant, active)
	}
	if err := checkTokens(g); err != nil {
		return err
	}
	return checkOccupancy(g)
}

func checkTokens(g GameState) error {
	var seen [DeckSize]bool
	count := 0
	mark := func(l Loot, where string) error {
		if l.ID < 0 || l.ID >= DeckSize {
			return fmt.Errorf("%w: token id %d in %s", ErrInvariant, l.ID, where)
		}
		if seen[l.ID] {
			return fmt.Errorf("%w: token %d duplicated (%s)", ErrInvariant, l.ID, where)
		}
		if l != AllLoot[l.ID] {
			return fmt.Errorf("%w: token %d altered (%s)", ErrInvariant, l.ID, where)
		}
		seen[l.ID] = true
		count++
		return nil
	}
	for _, s := range g.Path {
		for _, l := range s.Loot {
			if err := mark(l, s.ID); err != nil {
				return err
			}
		}
	}
	for _, id := range g.PlayerOrder {
		p := g.Players[id]
		for _, grp := range p.Hand {
			for _, l := range grp {
				if err := mark(l, "hand of "+id); err != nil {
					return err
				}
			}
		}
		for _, sl := range p.Score {
			if err := mark(sl.Loot, "score of "+id); err != nil {
				return err
			}
		}
	}
	if count != DeckSize {
		return fmt.Errorf("%w: %d tokens, want %d", ErrInvariant, count, DeckSize)
	}
	return nil
}

func checkOccupancy(g GameState) error {
	for i, s := range g.Path {
		if s.Occupant == "" {
			continue
		}
		p, ok := g.Players[s.Occupant]
		if !ok {
			return fmt.Errorf("%w: unknown occupant %q at %d", ErrInvariant, s.Occupant, i)
		}
		if p.Position != i {
			return fmt.Errorf("%w: %q occupies %d but is at %d", ErrInvariant, p.ID, i, p.Position)
		}
	}
	for id, p := range g.Players {
		if p.InSubmarine() {
			continue
		}
		if p.Position >= len(g.Path) {
			return fmt.Errorf("%w: %q at %d beyond path end %d", ErrInvariant, id, p.Position, len(g.Path))
		}
		if g.Path[p.Position].Occupant != id {
			return fmt.Errorf("%w: %q at %d but space holds %q", ErrInvariant, id, p.Position, g.Path[p.Position].Occupant)
		}
	}
	return nil
}
