package engine

import (
	"encoding/json"
	"fmt"
)

// actionJSON is the flat wire record for every Action kind.
type actionJSON struct {
	Type     ActionKind     `json:"type"`
	PlayerID string         `json:"playerId,omitempty"`
	Players  []PlayerConfig `json:"players,omitempty"`
	Dir      Direction      `json:"dir,omitempty"`
	Kind     SearchOp       `json:"kind,omitempty"`
	Index    *int           `json:"index,omitempty"`
}

// MarshalAction encodes a as a tagged JSON record.
func MarshalAction(a Action) ([]byte, error) {
	var w actionJSON
	switch a := a.(type) {
	case Start:
		w = actionJSON{Type: KindStart, Players: a.Players}
	case Roll:
		w = actionJSON{Type: KindRoll, PlayerID: a.PlayerID, Dir: a.Dir}
	case Search:
		w = actionJSON{Type: KindSearch, PlayerID: a.PlayerID, Kind: a.Op}
		if a.Op == SearchPlace {
			idx := a.Index
			w.Index = &idx
		}
	case Drop:
		w = actionJSON{Type: KindDrop, PlayerID: a.PlayerID}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
	return json.Marshal(w)
}

// UnmarshalAction decodes a record written by MarshalAction.
func UnmarshalAction(data []byte) (Action, error) {
	var w actionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	switch w.Type {
	case KindStart:
		return Start{Players: w.Players}, nil
	case KindRoll:
		return Roll{PlayerID: w.PlayerID, Dir: w.Dir}, nil
	case KindSearch:
		s := Search{PlayerID: w.PlayerID, Op: w.Kind}
		if w.Index != nil {
			s.Index = *w.Index
		}
		return s, nil
	case KindDrop:
		return Drop{PlayerID: w.PlayerID}, nil
	}
	return nil, fmt.Errorf("%w: type %q", ErrUnknownAction, w.Type)
}

// turnJSON is the wire form of the Turn union.
type turnJSON struct {
	Phase    Phase    `json:"phase"`
	PlayerID string   `json:"playerId,omitempty"`
	Drowned  []string `json:"drowned,omitempty"`
}

func encodeTurn(t Turn) turnJSON {
	switch t := t.(type) {
	case RollTurn:
		return turnJSON{Phase: PhaseRoll, PlayerID: t.PlayerID}
	case SearchTurn:
		return turnJSON{Phase: PhaseSearch, PlayerID: t.PlayerID}
	case DropTurn:
		return turnJSON{Phase: PhaseDrop, PlayerID: t.PlayerID, Drowned: t.Drowned}
	case GameOverTurn:
		return turnJSON{Phase: PhaseGameOver}
	}
	return turnJSON{Phase: PhaseStart}
}

func (w turnJSON) decode() (Turn, error) {
	switch w.Phase {
	case PhaseStart, "":
		return StartTurn{}, nil
	case PhaseRoll:
		return RollTurn{PlayerID: w.PlayerID}, nil
	case PhaseSearch:
		return SearchTurn{PlayerID: w.PlayerID}, nil
	case PhaseDrop:
		return DropTurn{PlayerID: w.PlayerID, Drowned: w.Drowned}, nil
	case PhaseGameOver:
		return GameOverTurn{}, nil
	}
	return nil, fmt.Errorf("unknown phase %q", w.Phase)
}

type gameStateJSON struct {
	Round       int                    `json:"round"`
	CurrentTurn turnJSON               `json:"currentTurn"`
	Oxygen      int                    `json:"oxygen"`
	PlayerOrder []string               `json:"playerOrder"`
	Players     map[string]PlayerState `json:"players"`
	Path        []Space                `json:"path"`
	UI          *UIMetadata            `json:"uiMetadata,omitempty"`
}

// MarshalJSON encodes the state with currentTurn as a tagged record. Empty
// collections are always written as [] so equal states encode to equal
// bytes regardless of how their slices were built.
func (g GameState) MarshalJSON() ([]byte, error) {
	w := g.wire()
	w.UI = &g.UI
	return json.Marshal(w)
}

// MarshalCanonical encodes the state without UI metadata. Two observers
// that folded the same log produce identical bytes.
func (g GameState) MarshalCanonical() ([]byte, error) {
	return json.Marshal(g.wire())
}

func (g GameState) wire() gameStateJSON {
	w := gameStateJSON{
		Round:       g.Round,
		CurrentTurn: encodeTurn(g.Turn),
		Oxygen:      g.Oxygen,
		PlayerOrder: nonNil(g.PlayerOrder),
		Players:     make(map[string]PlayerState, len(g.Players)),
		Path:        make([]Space, len(g.Path)),
	}
	for id, p := range g.Players {
		p.Hand = nonNil(p.Hand)
		for i, grp := range p.Hand {
			p.Hand[i] = nonNil(grp)
		}
		p.Score = nonNil(p.Score)
		w.Players[id] = p
	}
	for i, s := range g.Path {
		s.Loot = nonNil(s.Loot)
		w.Path[i] = s
	}
	return w
}

// UnmarshalJSON decodes a state written by MarshalJSON.
func (g *GameState) UnmarshalJSON(data []byte) error {
	var w gameStateJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	turn, err := w.CurrentTurn.decode()
	if err != nil {
		return err
	}
	*g = GameState{
		Round:       w.Round,
		Oxygen:      w.Oxygen,
		PlayerOrder: w.PlayerOrder,
		Players:     w.Players,
		Path:        w.Path,
		Turn:        turn,
	}
	if g.Players == nil {
		g.Players = map[string]PlayerState{}
	}
	if w.UI != nil {
		g.UI = *w.UI
	}
	return nil
}

func nonNil[S ~[]E, E any](s S) S {
	if s == nil {
		return S{}
	}
	return s
}
