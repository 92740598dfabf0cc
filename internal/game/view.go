// internal/game/view.go
package game

import (
	"encoding/json"

	"github.com/google/uuid"

	engine "github.com/jason-s-yu/keepbreathing/engine"
)

// LootView is a token as an observer sees it. Value is omitted while the
// token is face down.
type LootView struct {
	ID    int  `json:"id"`
	Level int  `json:"level"`
	Value *int `json:"value,omitempty"`
}

// ScoredView is a banked token as an observer sees it.
type ScoredView struct {
	LootView
	Round int `json:"round"`
}

// PlayerView is one diver, obfuscated for a specific observer.
type PlayerView struct {
	PlayerID      string           `json:"playerId"`
	Name          string           `json:"name"`
	Color         engine.Color     `json:"color"`
	Position      int              `json:"position"`
	Direction     engine.Direction `json:"direction"`
	Hand          [][]LootView     `json:"hand"`
	Carried       int              `json:"carried"`
	Score         []ScoredView     `json:"score"`
	IsCurrentTurn bool             `json:"isCurrentTurn"`
	// Total is populated only when the observer may see every banked value.
	Total *int `json:"total,omitempty"`
}

// SpaceView is one path space.
type SpaceView struct {
	ID       string     `json:"id"`
	PlayerID string     `json:"playerId,omitempty"`
	Loot     []LootView `json:"loot"`
}

// View is the game state, obfuscated for a specific observer. Loot values
// stay hidden except the observer's own banked tokens; the final view
// reveals everything.
type View struct {
	GameID          uuid.UUID         `json:"gameId"`
	Observer        string            `json:"observer,omitempty"`
	Phase           engine.Phase      `json:"phase"`
	Round           int               `json:"round"`
	Oxygen          int               `json:"oxygen"`
	CurrentPlayerID string            `json:"currentPlayerId,omitempty"`
	Drowned         []string          `json:"drowned,omitempty"`
	Players         []PlayerView      `json:"players"`
	Path            []SpaceView       `json:"path"`
	PendingAction   bool              `json:"isPendingAction"`
	Animation       *engine.Animation `json:"animate,omitempty"`
	// Legal holds the encoded actions the observer may submit now.
	Legal     []json.RawMessage `json:"legal,omitempty"`
	Standings []engine.Standing `json:"standings,omitempty"`
	Winners   []string          `json:"winners,omitempty"`
}

// NewView renders g for observer, who may be empty for a spectator.
func NewView(gameID uuid.UUID, g engine.GameState, observer string) View {
	over := g.IsGameOver()
	v := View{
		GameID:        gameID,
		Observer:      observer,
		Phase:         g.Phase(),
		Round:         g.Round,
		Oxygen:        g.Oxygen,
		PendingAction: g.UI.PendingAction,
		Animation:     g.UI.Animation,
		Players:       make([]PlayerView, 0, len(g.PlayerOrder)),
		Path:          make([]SpaceView, len(g.Path)),
	}
	active, hasActive := g.ActivePlayer()
	if hasActive {
		v.CurrentPlayerID = active
	}
	if t, ok := g.Turn.(engine.DropTurn); ok {
		v.Drowned = append([]string(nil), t.Drowned...)
	}

	for _, id := range g.PlayerOrder {
		p := g.Players[id]
		ownScore := over || id == observer
		pv := PlayerView{
			PlayerID:      p.ID,
			Name:          p.Name,
			Color:         p.Color,
			Position:      p.Position,
			Direction:     p.Direction,
			Hand:          make([][]LootView, len(p.Hand)),
			Carried:       p.Carried(),
			Score:         make([]ScoredView, len(p.Score)),
			IsCurrentTurn: hasActive && active == id,
		}
		for i, group := range p.Hand {
			pv.Hand[i] = groupView(group, over)
		}
		total := 0
		for i, s := range p.Score {
			pv.Score[i] = ScoredView{LootView: lootView(s.Loot, ownScore), Round: s.Round}
			total += s.Loot.Value
		}
		if ownScore {
			pv.Total = &total
		}
		v.Players = append(v.Players, pv)
	}

	for i, sp := range g.Path {
		v.Path[i] = SpaceView{ID: sp.ID, PlayerID: sp.Occupant, Loot: groupView(sp.Loot, over)}
	}

	if hasActive && active == observer {
		for _, a := range engine.LegalActions(g) {
			if data, err := engine.MarshalAction(a); err == nil {
				v.Legal = append(v.Legal, data)
			}
		}
	}
	if over {
		v.Standings = engine.Standings(g)
		v.Winners = engine.Winners(g)
	}
	return v
}
