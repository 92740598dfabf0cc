package engine

// fixture returns a started game with an unshuffled path (space i holds
// AllLoot[i]), every diver aboard, and the first id on turn.
func fixture(ids ...string) GameState {
	g := GameState{
		Round:       1,
		Oxygen:      MaxOxygen,
		PlayerOrder: append([]string(nil), ids...),
		Players:     make(map[string]PlayerState, len(ids)),
		Turn:        RollTurn{PlayerID: ids[0]},
	}
	for i, id := range ids {
		g.Players[id] = PlayerState{
			ID:        id,
			Name:      id,
			Color:     Palette[i],
			Position:  Submarine,
			Direction: Down,
			Hand:      []LootGroup{},
			Score:     []ScoredLoot{},
		}
	}
	for i, l := range AllLoot {
		g.Path = append(g.Path, Space{ID: lootSpaceID(i), Loot: []Loot{l}})
	}
	return g
}

// place moves a diver onto path index pos (or Submarine).
func place(g *GameState, id string, pos int, dir Direction) {
	p := g.Players[id]
	if p.Position >= 0 {
		g.Path[p.Position].Occupant = ""
	}
	p.Position = pos
	p.Direction = dir
	if pos >= 0 {
		g.Path[pos].Occupant = id
	}
	g.Players[id] = p
}

// give moves the loot off path index pos into the diver's hand as one group.
func give(g *GameState, id string, pos int) {
	p := g.Players[id]
	p.Hand = append(p.Hand, LootGroup(g.Path[pos].Loot))
	g.Players[id] = p
	g.Path[pos].Loot = []Loot{}
}

func mustApply(t interface {
	Helper()
	Fatalf(string, ...any)
}, g GameState, a Action, ts int64) GameState {
	t.Helper()
	next, err := Apply(g, a, ts)
	if err != nil {
		t.Fatalf("Apply(%T %+v) error: %v", a, a, err)
	}
	if err := CheckInvariants(next); err != nil {
		t.Fatalf("after %T %+v: %v", a, a, err)
	}
	return next
}

// Timestamps whose streams open with known dice.
const (
	tsDice11 int64 = 3  // 1+1
	tsDice22 int64 = 11 // 2+2
	tsDice23 int64 = 1  // 2+3
	tsDice33 int64 = 13 // 3+3
)
