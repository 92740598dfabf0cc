package engine

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestActionWireFormat(t *testing.T) {
	cases := []struct {
		a    Action
		want string
	}{
		{Roll{PlayerID: "a", Dir: Down}, `{"type":"ROLL","playerId":"a","dir":"down"}`},
		{Search{PlayerID: "a", Op: SearchPass}, `{"type":"SEARCH","playerId":"a","kind":"pass"}`},
		{Search{PlayerID: "a", Op: SearchPlace, Index: 0}, `{"type":"SEARCH","playerId":"a","kind":"place","index":0}`},
		{Drop{PlayerID: "b"}, `{"type":"DROP","playerId":"b"}`},
		{Start{Players: roster3[:2]}, `{"type":"START","players":[{"id":"a","name":"Ada","color":"red"},{"id":"b","name":"Bo","color":"orange"}]}`},
	}
	for _, tc := range cases {
		b, err := MarshalAction(tc.a)
		if err != nil {
			t.Fatalf("MarshalAction(%+v): %v", tc.a, err)
		}
		if string(b) != tc.want {
			t.Errorf("MarshalAction(%+v) = %s, want %s", tc.a, b, tc.want)
		}
		back, err := UnmarshalAction(b)
		if err != nil {
			t.Fatalf("UnmarshalAction(%s): %v", b, err)
		}
		if back.Kind() != tc.a.Kind() || back.Actor() != tc.a.Actor() {
			t.Errorf("UnmarshalAction(%s) = %+v", b, back)
		}
	}
}

func TestUnmarshalActionErrors(t *testing.T) {
	if _, err := UnmarshalAction([]byte(`{"type":"SWIM"}`)); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("unknown type: err = %v, want ErrUnknownAction", err)
	}
	if _, err := UnmarshalAction([]byte(`{`)); err == nil {
		t.Fatal("malformed JSON decoded")
	}
}

func TestGameStateJSON(t *testing.T) {
	g := mustApply(t, NewBlank(), Start{Players: roster3}, 5)
	g = mustApply(t, g, Roll{PlayerID: g.PlayerOrder[0], Dir: Down}, 11)

	b, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(b), `"currentTurn":{"phase":"search","playerId":"`+g.PlayerOrder[0]+`"}`) {
		t.Fatalf("currentTurn not tagged: %s", b)
	}

	var back GameState
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Phase() != PhaseSearch || back.Round != g.Round || len(back.Path) != len(g.Path) {
		t.Fatalf("decoded state differs: %+v", back)
	}
	if back.UI.Animation == nil || back.UI.Animation.Kind != AnimateRoll {
		t.Fatalf("animation lost: %+v", back.UI)
	}

	c1, _ := g.MarshalCanonical()
	c2, _ := back.MarshalCanonical()
	if string(c1) != string(c2) {
		t.Fatal("canonical encoding changed across a JSON round trip")
	}
	if strings.Contains(string(c1), "uiMetadata") {
		t.Fatal("canonical encoding includes UI metadata")
	}
}

func TestCanonicalNormalizesEmpty(t *testing.T) {
	a := fixture("a", "b")
	b := a.Clone()
	p := b.Players["a"]
	p.Hand = nil
	p.Score = nil
	b.Players["a"] = p

	ja, _ := a.MarshalCanonical()
	jb, _ := b.MarshalCanonical()
	if string(ja) != string(jb) {
		t.Fatalf("nil and empty slices encode differently:\n%s\n%s", ja, jb)
	}
}

func TestDropTurnJSON(t *testing.T) {
	g := fixture("a", "b")
	g.Turn = DropTurn{PlayerID: "b", Drowned: []string{"b", "a"}}
	b, _ := json.Marshal(g)

	var back GameState
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	dt, ok := back.Turn.(DropTurn)
	if !ok || dt.PlayerID != "b" || len(dt.Drowned) != 2 || dt.Drowned[1] != "a" {
		t.Fatalf("Turn = %#v", back.Turn)
	}
}
