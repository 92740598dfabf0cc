package engine

import "slices"

// endTurn hands play to the next diver still in the round, draining oxygen
// by what they carry, or ends the round when the air is gone or everyone
// is back aboard.
func (g *GameState) endTurn() {
	if g.IsGameOver() {
		return
	}
	if g.Oxygen <= 0 || g.allAboard() {
		g.endRound()
		return
	}

	current, _ := g.ActivePlayer()
	i := slices.Index(g.PlayerOrder, current)
	for range g.PlayerOrder {
		i = (i + 1) % len(g.PlayerOrder)
		p := g.Players[g.PlayerOrder[i]]
		// Divers back aboard after turning around are done for the round.
		if !(p.InSubmarine() && p.Direction == Up) {
			break
		}
	}

	next := g.Players[g.PlayerOrder[i]]
	g.Turn = RollTurn{PlayerID: next.ID}
	g.Oxygen = max(0, g.Oxygen-len(next.Hand))
}

func (g *GameState) allAboard() bool {
	for _, p := range g.Players {
		if !p.InSubmarine() {
			return false
		}
	}
	return true
}

// endRound either finishes the game, opens the drop phase for divers still
// on the path (deepest first), or resets for the next round.
func (g *GameState) endRound() {
	if g.IsGameOver() {
		return
	}
	if g.Round >= NumRounds {
		g.Turn = GameOverTurn{}
		g.UI.Animation = nil
		return
	}

	var drowned []string
	for i := len(g.Path) - 1; i >= 0; i-- {
		if id := g.Path[i].Occupant; id != "" {
			drowned = append(drowned, id)
		}
	}
	if len(drowned) > 0 {
		g.Turn = DropTurn{PlayerID: drowned[0], Drowned: drowned}
		return
	}

	// The deepest drowned diver leads the next round; otherwise whoever
	// just finished their turn does.
	first, _ := g.ActivePlayer()
	if t, ok := g.Turn.(DropTurn); ok {
		first = t.Drowned[0]
	}

	g.Round++
	g.Oxygen = MaxOxygen
	for id, p := range g.Players {
		p.Direction = Down
		g.Players[id] = p
	}
	g.Path = slices.DeleteFunc(g.Path, func(s Space) bool { return len(s.Loot) == 0 })
	g.Turn = RollTurn{PlayerID: first}

	// A drop animation takes precedence.
	if g.UI.Animation == nil {
		g.UI.Animation = &Animation{Kind: AnimateBeginRound}
	}
}
