package agent

import (
	engine "github.com/jason-s-yu/keepbreathing/engine"
)

// Cautious grabs until it carries Greed groups, then heads home, turning
// back early when the remaining air looks too thin to make it.
type Cautious struct {
	Greed int
	// Margin is extra air kept in reserve, in oxygen units.
	Margin int
}

// NewCautious returns the default Cautious policy.
func NewCautious() *Cautious {
	return &Cautious{Greed: 3, Margin: 4}
}

func (c *Cautious) Choose(g engine.GameState, legal []engine.Action) engine.Action {
	active, _ := g.ActivePlayer()
	p := g.Players[active]

	switch g.Turn.(type) {
	case engine.RollTurn:
		return c.roll(g, p, legal)
	case engine.SearchTurn:
		return c.search(g, p, legal)
	}
	return legal[0]
}

func (c *Cautious) roll(g engine.GameState, p engine.PlayerState, legal []engine.Action) engine.Action {
	var up, down engine.Action
	for _, a := range legal {
		if r, ok := a.(engine.Roll); ok {
			if r.Dir == engine.Up {
				up = a
			} else {
				down = a
			}
		}
	}
	if down == nil {
		return up
	}
	if up == nil || !c.shouldTurn(g, p) {
		return down
	}
	return up
}

// shouldTurn estimates whether the diver can still get home: the turns the
// climb takes at an average roll of 4, times what everyone's hands drain
// from the shared tank per lap.
func (c *Cautious) shouldTurn(g engine.GameState, p engine.PlayerState) bool {
	if len(p.Hand) >= c.Greed {
		return true
	}
	speed := max(1, 4-len(p.Hand)-1)
	turns := (p.Position + 1 + speed - 1) / speed
	drain := 1
	for _, other := range g.Players {
		drain += len(other.Hand)
	}
	return g.Oxygen <= turns*drain+c.Margin
}

func (c *Cautious) search(g engine.GameState, p engine.PlayerState, legal []engine.Action) engine.Action {
	var pass, grab engine.Action
	var places []engine.Search
	for _, a := range legal {
		s, ok := a.(engine.Search)
		if !ok {
			continue
		}
		switch s.Op {
		case engine.SearchPass:
			pass = a
		case engine.SearchGrab:
			grab = a
		case engine.SearchPlace:
			places = append(places, s)
		}
	}

	if grab != nil && len(p.Hand) < c.Greed && p.Direction == engine.Down {
		return grab
	}
	// Heading home overloaded: leave the shallowest group behind.
	if len(places) > 0 && p.Direction == engine.Up && len(p.Hand) > c.Greed {
		best := places[0]
		for _, s := range places[1:] {
			if groupLevel(p.Hand[s.Index]) < groupLevel(p.Hand[best.Index]) {
				best = s
			}
		}
		return best
	}
	return pass
}

func groupLevel(grp engine.LootGroup) int {
	n := 0
	for _, l := range grp {
		n += l.Level
	}
	return n
}
