package engine

import (
	"cmp"
	"slices"
)

// Standing is one diver's banked result.
type Standing struct {
	PlayerID string         `json:"playerId"`
	Total    int            `json:"total"`
	ByRound  [NumRounds]int `json:"byRound"`
	Deepest  int            `json:"deepest"` // banked level-4 tokens, the tie-breaker
}

// Standings ranks divers by banked value. Ties go to whoever banked more
// level-4 tokens, then to turn order.
func Standings(g GameState) []Standing {
	out := make([]Standing, 0, len(g.PlayerOrder))
	for _, id := range g.PlayerOrder {
		p := g.Players[id]
		s := Standing{PlayerID: id}
		for _, sl := range p.Score {
			s.Total += sl.Loot.Value
			if sl.Round >= 1 && sl.Round <= NumRounds {
				s.ByRound[sl.Round-1] += sl.Loot.Value
			}
			if sl.Loot.Level == NumLevels {
				s.Deepest++
			}
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b Standing) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(b.Deepest, a.Deepest)
	})
	return out
}

// Winners returns the ids sharing first place, or nil before the game ends.
func Winners(g GameState) []string {
	if !g.IsGameOver() {
		return nil
	}
	st := Standings(g)
	if len(st) == 0 {
		return nil
	}
	var out []string
	for _, s := range st {
		if s.Total != st[0].Total || s.Deepest != st[0].Deepest {
			break
		}
		out = append(out, s.PlayerID)
	}
	return out
}
