package engine

// LegalActions returns the actions offered to the active player. It is
// deliberately narrower than Validate: a descent is only offered when a free
// space exists below the diver, so an offered roll can never hit
// ErrCannotDive, and staying aboard is only offered when diving is
// impossible.
func LegalActions(g GameState) []Action {
	active, ok := g.ActivePlayer()
	if !ok {
		return nil
	}
	p, ok := g.Players[active]
	if !ok {
		return nil
	}

	switch t := g.Turn.(type) {
	case RollTurn:
		return legalRolls(g, p)
	case SearchTurn:
		return legalSearches(g, p)
	case DropTurn:
		return []Action{Drop{PlayerID: t.PlayerID}}
	}
	return nil
}

func legalRolls(g GameState, p PlayerState) []Action {
	canDive := p.Direction == Down && g.CanDive(p.Position)
	switch {
	case p.InSubmarine() && canDive:
		return []Action{Roll{PlayerID: p.ID, Dir: Down}}
	case p.InSubmarine():
		return []Action{Roll{PlayerID: p.ID, Dir: Up}}
	case canDive:
		return []Action{Roll{PlayerID: p.ID, Dir: Up}, Roll{PlayerID: p.ID, Dir: Down}}
	}
	return []Action{Roll{PlayerID: p.ID, Dir: Up}}
}

func legalSearches(g GameState, p PlayerState) []Action {
	out := []Action{Search{PlayerID: p.ID, Op: SearchPass}}
	if p.InSubmarine() || p.Position >= len(g.Path) {
		return out
	}
	if len(g.Path[p.Position].Loot) > 0 {
		return append(out, Search{PlayerID: p.ID, Op: SearchGrab})
	}
	for i := range p.Hand {
		out = append(out, Search{PlayerID: p.ID, Op: SearchPlace, Index: i})
	}
	return out
}

// IsLegal reports whether a is one of LegalActions(g). Start actions are
// checked with Validate since they are not offered to any player.
func IsLegal(g GameState, a Action) bool {
	if _, ok := a.(Start); ok {
		return Validate(g, a) == nil
	}
	for _, l := range LegalActions(g) {
		if sameAction(l, a) {
			return true
		}
	}
	return false
}

func sameAction(a, b Action) bool {
	switch a := a.(type) {
	case Roll:
		b, ok := b.(Roll)
		return ok && a == b
	case Search:
		b, ok := b.(Search)
		if !ok || a.PlayerID != b.PlayerID || a.Op != b.Op {
			return false
		}
		return a.Op != SearchPlace || a.Index == b.Index
	case Drop:
		b, ok := b.(Drop)
		return ok && a == b
	}
	return false
}
