// Package agent implements bot policies for simulations and tests.
//
// A policy only ever picks from engine.LegalActions, so anything it returns
// is safe to submit.
package agent

import (
	"fmt"

	engine "github.com/jason-s-yu/keepbreathing/engine"
)

// Policy picks one of the legal actions for the diver on turn.
type Policy interface {
	Choose(g engine.GameState, legal []engine.Action) engine.Action
}

// Act returns playerID's move in g, or false when it is not their turn.
func Act(p Policy, g engine.GameState, playerID string) (engine.Action, bool) {
	active, ok := g.ActivePlayer()
	if !ok || active != playerID {
		return nil, false
	}
	legal := engine.LegalActions(g)
	if len(legal) == 0 {
		return nil, false
	}
	return p.Choose(g, legal), true
}

// Random picks uniformly with its own reproducible stream.
type Random struct {
	rng *engine.Rand
}

// NewRandom returns a Random policy seeded with seed.
func NewRandom(seed int64) *Random {
	return &Random{rng: engine.NewRand(seed)}
}

func (r *Random) Choose(_ engine.GameState, legal []engine.Action) engine.Action {
	return legal[int(r.rng.Float64()*float64(len(legal)))]
}

// First always takes the first legal action. It dives when it can and
// passes every search.
type First struct{}

func (First) Choose(_ engine.GameState, legal []engine.Action) engine.Action {
	for _, a := range legal {
		if r, ok := a.(engine.Roll); ok && r.Dir == engine.Down {
			return a
		}
	}
	return legal[0]
}

// New returns the named policy: "random", "first" or "cautious".
func New(name string, seed int64) (Policy, error) {
	switch name {
	case "random":
		return NewRandom(seed), nil
	case "first":
		return First{}, nil
	case "cautious", "":
		return NewCautious(), nil
	}
	return nil, fmt.Errorf("unknown policy %q", name)
}
