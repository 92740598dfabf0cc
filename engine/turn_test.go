package engine

import (
	"slices"
	"testing"
)

func TestOxygenDrainsByGroups(t *testing.T) {
	g := fixture("a", "b")
	place(&g, "b", 10, Down)
	give(&g, "b", 10)
	give(&g, "b", 11)
	g.Turn = SearchTurn{PlayerID: "a"}

	g = mustApply(t, g, Search{PlayerID: "a", Op: SearchPass}, 1)
	if g.Oxygen != MaxOxygen-2 {
		t.Fatalf("Oxygen = %d, want %d", g.Oxygen, MaxOxygen-2)
	}

	g.Oxygen = 1
	g.Turn = SearchTurn{PlayerID: "a"}
	g = mustApply(t, g, Search{PlayerID: "a", Op: SearchPass}, 2)
	if g.Oxygen != 0 {
		t.Fatalf("Oxygen = %d, want floor of 0", g.Oxygen)
	}
	if rt, ok := g.Turn.(RollTurn); !ok || rt.PlayerID != "b" {
		t.Fatalf("Turn = %#v, b still takes the turn that empties the tank", g.Turn)
	}
}

func TestEndTurnSkipsReturnedDivers(t *testing.T) {
	g := fixture("a", "b", "c")
	place(&g, "a", 5, Down)
	place(&g, "b", Submarine, Up)
	place(&g, "c", 6, Down)
	g.Turn = SearchTurn{PlayerID: "a"}

	g = mustApply(t, g, Search{PlayerID: "a", Op: SearchPass}, 1)
	if rt, ok := g.Turn.(RollTurn); !ok || rt.PlayerID != "c" {
		t.Fatalf("Turn = %#v, want RollTurn c", g.Turn)
	}
}

func TestRoundEndsWhenAllAboard(t *testing.T) {
	g := fixture("a", "b")
	place(&g, "a", Submarine, Up)
	place(&g, "b", Submarine, Up)
	b := g.Players["b"]
	b.Score = []ScoredLoot{{Loot: AllLoot[3], Round: 1}}
	g.Players["b"] = b
	g.Path[3].Loot = []Loot{}
	g.Oxygen = 9
	g.Turn = SearchTurn{PlayerID: "a"}

	g = mustApply(t, g, Search{PlayerID: "a", Op: SearchPass}, 1)
	if g.Round != 2 || g.Oxygen != MaxOxygen {
		t.Fatalf("round/oxygen = %d/%d, want 2/%d", g.Round, g.Oxygen, MaxOxygen)
	}
	if len(g.Path) != DeckSize-1 {
		t.Fatalf("len(Path) = %d, want %d", len(g.Path), DeckSize-1)
	}
	if g.Path[3].ID != "loot_4" {
		t.Fatalf("Path[3].ID = %q, want loot_4 after compaction", g.Path[3].ID)
	}
	for id, p := range g.Players {
		if p.Direction != Down {
			t.Errorf("%s heading %s, want down", id, p.Direction)
		}
	}
	if rt, ok := g.Turn.(RollTurn); !ok || rt.PlayerID != "a" {
		t.Fatalf("Turn = %#v, want RollTurn a", g.Turn)
	}
	if g.UI.Animation == nil || g.UI.Animation.Kind != AnimateBeginRound {
		t.Fatalf("Animation = %+v, want beginRound", g.UI.Animation)
	}
}

func drownedFixture(round int) GameState {
	g := fixture("a", "b", "c")
	g.Round = round
	place(&g, "a", Submarine, Up)
	place(&g, "b", 10, Down)
	give(&g, "b", 10)
	give(&g, "b", 11)
	place(&g, "c", 20, Down)
	for _, i := range []int{20, 21, 22, 23} {
		give(&g, "c", i)
	}
	g.Oxygen = 0
	g.Turn = SearchTurn{PlayerID: "a"}
	return g
}

func TestDrownedDropDeepestFirst(t *testing.T) {
	g := mustApply(t, drownedFixture(1), Search{PlayerID: "a", Op: SearchPass}, 1)

	dt, ok := g.Turn.(DropTurn)
	if !ok || dt.PlayerID != "c" || !slices.Equal(dt.Drowned, []string{"c", "b"}) {
		t.Fatalf("Turn = %#v, want DropTurn c [c b]", g.Turn)
	}

	g = mustApply(t, g, Drop{PlayerID: "c"}, 7)
	n := len(g.Path)
	if g.Path[n-2].ID != "drop_1_c_0" || g.Path[n-1].ID != "drop_1_c_1" {
		t.Fatalf("tail ids = %q %q", g.Path[n-2].ID, g.Path[n-1].ID)
	}
	wantC0 := []Loot{AllLoot[23], AllLoot[21], AllLoot[22]}
	if !slices.Equal(g.Path[n-2].Loot, wantC0) {
		t.Fatalf("drop_1_c_0 = %v, want %v", g.Path[n-2].Loot, wantC0)
	}
	if !slices.Equal(g.Path[n-1].Loot, []Loot{AllLoot[20]}) {
		t.Fatalf("drop_1_c_1 = %v, want [token 20]", g.Path[n-1].Loot)
	}
	if c := g.Players["c"]; !c.InSubmarine() || len(c.Hand) != 0 || g.Path[20].Occupant != "" {
		t.Fatalf("c not returned: %+v", c)
	}
	if dt, ok := g.Turn.(DropTurn); !ok || dt.PlayerID != "b" {
		t.Fatalf("Turn = %#v, want DropTurn b", g.Turn)
	}

	g = mustApply(t, g, Drop{PlayerID: "b"}, 8)
	if g.Round != 2 || g.Oxygen != MaxOxygen {
		t.Fatalf("round/oxygen = %d/%d, want 2/%d", g.Round, g.Oxygen, MaxOxygen)
	}
	if rt, ok := g.Turn.(RollTurn); !ok || rt.PlayerID != "c" {
		t.Fatalf("Turn = %#v, want RollTurn c (deepest drowned leads)", g.Turn)
	}
	// 6 emptied spaces compacted away, 2 drop spaces appended.
	if len(g.Path) != DeckSize-6+2 {
		t.Fatalf("len(Path) = %d, want %d", len(g.Path), DeckSize-6+2)
	}
	last := g.Path[len(g.Path)-1]
	if last.ID != "drop_1_c_1" || !slices.Equal(last.Loot, []Loot{AllLoot[20], AllLoot[11], AllLoot[10]}) {
		t.Fatalf("last space = %+v, want drop_1_c_1 topped up with 11 and 10", last)
	}
	if g.UI.Animation == nil || g.UI.Animation.Kind != AnimateDrop {
		t.Fatalf("Animation = %+v, want drop", g.UI.Animation)
	}
}

func TestFinalRoundEndsGame(t *testing.T) {
	g := mustApply(t, drownedFixture(NumRounds), Search{PlayerID: "a", Op: SearchPass}, 1)
	if !g.IsGameOver() {
		t.Fatalf("Turn = %#v, want GameOverTurn", g.Turn)
	}
	if g.UI.Animation != nil {
		t.Fatalf("Animation = %+v, want nil", g.UI.Animation)
	}
	if _, ok := g.ActivePlayer(); ok {
		t.Fatal("game over has an active player")
	}
	if LegalActions(g) != nil {
		t.Fatal("game over offers actions")
	}
}
