package engine

import (
	"testing"
)

func TestLegalActionsRoll(t *testing.T) {
	g := fixture("a", "b")
	got := LegalActions(g)
	if len(got) != 1 || got[0] != (Roll{PlayerID: "a", Dir: Down}) {
		t.Fatalf("aboard: LegalActions = %v, want [down]", got)
	}

	place(&g, "a", 10, Down)
	got = LegalActions(g)
	if len(got) != 2 {
		t.Fatalf("on path: LegalActions = %v, want up and down", got)
	}

	place(&g, "a", 10, Up)
	got = LegalActions(g)
	if len(got) != 1 || got[0] != (Roll{PlayerID: "a", Dir: Up}) {
		t.Fatalf("turned back: LegalActions = %v, want [up]", got)
	}

	place(&g, "a", 31, Down)
	got = LegalActions(g)
	if len(got) != 1 || got[0] != (Roll{PlayerID: "a", Dir: Up}) {
		t.Fatalf("at bottom: LegalActions = %v, want [up]", got)
	}
}

func TestLegalActionsStayAboard(t *testing.T) {
	g := fixture("a", "b")
	g.Path = g.Path[:1]
	g.Path[0].Occupant = "b"
	b := g.Players["b"]
	b.Position = 0
	g.Players["b"] = b

	got := LegalActions(g)
	if len(got) != 1 || got[0] != (Roll{PlayerID: "a", Dir: Up}) {
		t.Fatalf("LegalActions = %v, want [up] when no space is free", got)
	}
}

func TestLegalActionsSearch(t *testing.T) {
	g := fixture("a", "b")
	place(&g, "a", 3, Down)
	g.Turn = SearchTurn{PlayerID: "a"}

	got := LegalActions(g)
	if len(got) != 2 || !IsLegal(g, Search{PlayerID: "a", Op: SearchGrab}) {
		t.Fatalf("loot space: LegalActions = %v, want pass and grab", got)
	}
	if IsLegal(g, Search{PlayerID: "a", Op: SearchPlace}) {
		t.Fatal("place offered on a loot space")
	}

	give(&g, "a", 3)
	give(&g, "a", 4)
	got = LegalActions(g)
	if len(got) != 3 {
		t.Fatalf("empty space: LegalActions = %v, want pass and two places", got)
	}
	if !IsLegal(g, Search{PlayerID: "a", Op: SearchPlace, Index: 1}) {
		t.Fatal("place 1 not legal")
	}
	if IsLegal(g, Search{PlayerID: "a", Op: SearchPlace, Index: 2}) {
		t.Fatal("place 2 legal with two groups")
	}
	if !IsLegal(g, Search{PlayerID: "a", Op: SearchPass, Index: 7}) {
		t.Fatal("pass with a stray index rejected")
	}

	aboard := fixture("a", "b")
	aboard.Turn = SearchTurn{PlayerID: "a"}
	if got := LegalActions(aboard); len(got) != 1 || got[0] != (Search{PlayerID: "a", Op: SearchPass}) {
		t.Fatalf("aboard: LegalActions = %v, want [pass]", got)
	}
}

func TestLegalActionsDropAndStart(t *testing.T) {
	g := fixture("a", "b")
	g.Turn = DropTurn{PlayerID: "b", Drowned: []string{"b"}}
	if got := LegalActions(g); len(got) != 1 || got[0] != (Drop{PlayerID: "b"}) {
		t.Fatalf("LegalActions = %v, want [drop b]", got)
	}
	if IsLegal(g, Drop{PlayerID: "a"}) {
		t.Fatal("drop by a non-drowned diver is legal")
	}

	if LegalActions(NewBlank()) != nil {
		t.Fatal("blank state offers actions")
	}
	if !IsLegal(NewBlank(), Start{Players: roster3}) {
		t.Fatal("START on a blank state not legal")
	}
}

// TestLegalActionsApply checks every offered action applies cleanly.
func TestLegalActionsApply(t *testing.T) {
	g := fixture("a", "b", "c")
	place(&g, "b", 31, Down)
	place(&g, "c", 30, Down)
	place(&g, "a", 29, Down)
	for ts := int64(1); ts <= 50; ts++ {
		for _, a := range LegalActions(g) {
			if _, err := Apply(g, a, ts); err != nil {
				t.Fatalf("offered %+v failed at ts %d: %v", a, ts, err)
			}
		}
	}
}
