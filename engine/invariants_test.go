package engine

import (
	"errors"
	"testing"
)

func TestCheckInvariants(t *testing.T) {
	if err := CheckInvariants(NewBlank()); err != nil {
		t.Fatalf("blank: %v", err)
	}
	if err := CheckInvariants(fixture("a", "b")); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(g *GameState)
	}{
		{"duplicate token", func(g *GameState) { g.Path[1].Loot = []Loot{AllLoot[0]} }},
		{"missing token", func(g *GameState) { g.Path[1].Loot = []Loot{} }},
		{"altered token", func(g *GameState) { g.Path[1].Loot[0].Value = 99 }},
		{"ghost occupant", func(g *GameState) { g.Path[2].Occupant = "z" }},
		{"position without occupancy", func(g *GameState) {
			p := g.Players["a"]
			p.Position = 4
			g.Players["a"] = p
		}},
		{"occupancy without position", func(g *GameState) { g.Path[4].Occupant = "a" }},
		{"oxygen out of range", func(g *GameState) { g.Oxygen = -1 }},
		{"round out of range", func(g *GameState) { g.Round = NumRounds + 1 }},
		{"active player unknown", func(g *GameState) { g.Turn = RollTurn{PlayerID: "z"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := fixture("a", "b")
			tc.mutate(&g)
			if err := CheckInvariants(g); !errors.Is(err, ErrInvariant) {
				t.Fatalf("err = %v, want ErrInvariant", err)
			}
		})
	}
}
