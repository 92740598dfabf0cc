package engine

import (
	"fmt"
	"slices"
)

// ActionKind tags the Action union on the wire.
type ActionKind string

const (
	KindStart  ActionKind = "START"
	KindRoll   ActionKind = "ROLL"
	KindSearch ActionKind = "SEARCH"
	KindDrop   ActionKind = "DROP"
)

// Action is one player intent appended to the log. The concrete types are
// Start, Roll, Search and Drop.
type Action interface {
	Kind() ActionKind
	// Actor is the submitting player; empty for Start.
	Actor() string
}

// Start begins a game with the given roster.
type Start struct {
	Players []PlayerConfig
}

// Roll moves the active diver.
type Roll struct {
	PlayerID string
	Dir      Direction
}

// SearchOp selects what a diver does on the space they landed on.
type SearchOp string

const (
	SearchPass  SearchOp = "pass"
	SearchGrab  SearchOp = "grab"
	SearchPlace SearchOp = "place"
)

// Search resolves the search phase. Index is the hand group for SearchPlace.
type Search struct {
	PlayerID string
	Op       SearchOp
	Index    int
}

// Drop scatters a drowned diver's hand onto the bottom of the path.
type Drop struct {
	PlayerID string
}

func (Start) Kind() ActionKind  { return KindStart }
func (Roll) Kind() ActionKind   { return KindRoll }
func (Search) Kind() ActionKind { return KindSearch }
func (Drop) Kind() ActionKind   { return KindDrop }

func (Start) Actor() string    { return "" }
func (a Roll) Actor() string   { return a.PlayerID }
func (a Search) Actor() string { return a.PlayerID }
func (a Drop) Actor() string   { return a.PlayerID }

// Apply returns the state that follows g after action a, which the log
// stamped with ts. g is not modified. On error the returned state is g.
func Apply(g GameState, a Action, ts int64) (GameState, error) {
	if err := Validate(g, a); err != nil {
		return g, err
	}
	next := g.Clone()
	next.UI = UIMetadata{}
	rng := NewRand(ts)

	switch a := a.(type) {
	case Start:
		return newGame(a.Players, rng), nil
	case Roll:
		if err := next.roll(a, rng); err != nil {
			return g, err
		}
	case Search:
		next.search(a)
	case Drop:
		next.drop(a, rng)
	}
	return next, nil
}

// Validate checks every precondition of a that does not depend on dice.
// The only rule it cannot see is ErrCannotDive on a roll whose dice leave
// the diver at least one step to take.
func Validate(g GameState, a Action) error {
	if a == nil {
		return ErrUnknownAction
	}
	if start, ok := a.(Start); ok {
		if g.Phase() != PhaseStart {
			return ErrGameActive
		}
		return validateRoster(start.Players)
	}

	switch g.Phase() {
	case PhaseStart:
		return ErrGameNotActive
	case PhaseGameOver:
		return ErrGameOver
	}
	var want Phase
	switch a.(type) {
	case Roll:
		want = PhaseRoll
	case Search:
		want = PhaseSearch
	case Drop:
		want = PhaseDrop
	default:
		return fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
	if g.Phase() != want {
		return fmt.Errorf("%w: %s during %s", ErrWrongPhase, a.Kind(), g.Phase())
	}
	active, _ := g.ActivePlayer()
	if a.Actor() != active {
		return fmt.Errorf("%w: %q acted, waiting on %q", ErrNotYourTurn, a.Actor(), active)
	}
	p, ok := g.Players[active]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPlayer, active)
	}

	switch a := a.(type) {
	case Roll:
		if !a.Dir.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidDirection, a.Dir)
		}
		if p.Direction == Up && a.Dir == Down {
			return ErrCannotDescend
		}
	case Search:
		return validateSearch(g, p, a)
	}
	return nil
}

func validateSearch(g GameState, p PlayerState, a Search) error {
	switch a.Op {
	case SearchPass:
		return nil
	case SearchGrab, SearchPlace:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSearch, a.Op)
	}
	if p.InSubmarine() || p.Position >= len(g.Path) {
		return fmt.Errorf("%w: %s at position %d", ErrNotOnPath, a.Op, p.Position)
	}
	space := g.Path[p.Position]
	if a.Op == SearchGrab {
		if len(space.Loot) == 0 {
			return fmt.Errorf("%w: position %d", ErrNoLoot, p.Position)
		}
		return nil
	}
	if len(space.Loot) > 0 {
		return fmt.Errorf("%w: position %d", ErrSpaceHasLoot, p.Position)
	}
	if a.Index < 0 || a.Index >= len(p.Hand) {
		return fmt.Errorf("%w: index %d, hand size %d", ErrHandIndex, a.Index, len(p.Hand))
	}
	return nil
}

// roll moves the active diver by two dice minus the carried group count.
// Draw order: die one, die two.
func (g *GameState) roll(a Roll, rng *Rand) error {
	p := g.Players[a.PlayerID]
	die1, die2 := rng.Die(), rng.Die()
	steps := die1 + die2 - len(p.Hand)

	dest, visited, err := g.walk(p.Position, a.Dir, steps)
	if err != nil {
		return err
	}

	from := p.Position
	p.Position = dest
	p.Direction = a.Dir
	if dest == Submarine {
		for _, grp := range p.Hand {
			for _, l := range grp {
				p.Score = append(p.Score, ScoredLoot{Loot: l, Round: g.Round})
			}
		}
		p.Hand = []LootGroup{}
	}
	g.Players[p.ID] = p

	if from >= 0 && from != dest {
		g.Path[from].Occupant = ""
	}
	destID := "submarine"
	if dest >= 0 {
		g.Path[dest].Occupant = p.ID
		destID = g.Path[dest].ID
	}

	g.Turn = SearchTurn{PlayerID: p.ID}
	g.UI.Animation = &Animation{
		Kind:          AnimateRoll,
		PlayerID:      p.ID,
		Dice:          [2]int{die1, die2},
		DestinationID: destID,
		Direction:     a.Dir,
		Steps:         visited,
	}
	return nil
}

// walk moves steps spaces from position from, hopping over occupied
// spaces without spending a step on them. Going up stops at the submarine.
// Running off the bottom stops on the last space reached, or fails with
// ErrCannotDive if no space was reached at all.
func (g *GameState) walk(from int, dir Direction, steps int) (int, []int, error) {
	delta := 1
	if dir == Up {
		delta = -1
	}
	dest := from
	visited := []int{}
	for ; steps > 0; steps-- {
		dest += delta
		for dest > Submarine && dest < len(g.Path) && g.Path[dest].Occupant != "" {
			dest += delta
		}
		if dest >= len(g.Path) {
			if len(visited) == 0 {
				return 0, nil, fmt.Errorf("%w: from position %d", ErrCannotDive, from)
			}
			dest = visited[len(visited)-1]
			break
		}
		if dest < Submarine {
			dest = Submarine
		}
		visited = append(visited, dest)
		if dest == Submarine {
			break
		}
	}
	return dest, visited, nil
}

func (g *GameState) search(a Search) {
	p := g.Players[a.PlayerID]
	switch a.Op {
	case SearchGrab:
		space := &g.Path[p.Position]
		p.Hand = append(p.Hand, LootGroup(space.Loot))
		space.Loot = []Loot{}
		g.UI.Animation = &Animation{Kind: AnimateSearch}
	case SearchPlace:
		space := &g.Path[p.Position]
		space.Loot = []Loot(p.Hand[a.Index])
		p.Hand = slices.Delete(p.Hand, a.Index, a.Index+1)
		g.UI.Animation = &Animation{Kind: AnimateSearch}
	}
	g.Players[p.ID] = p
	g.endTurn()
}

// drop shuffles the drowned diver's hand into drop spaces at the bottom of
// the path, topping up the last drop space before opening new ones.
func (g *GameState) drop(a Drop, rng *Rand) {
	turn := g.Turn.(DropTurn)
	p := g.Players[a.PlayerID]

	var flat []Loot
	for _, grp := range p.Hand {
		flat = append(flat, grp...)
	}
	dropped := shuffled(rng, flat)

	n := 0
	for len(dropped) > 0 {
		last := len(g.Path) - 1
		if last >= 0 && g.Path[last].IsDropSpace() && len(g.Path[last].Loot) < DropSpaceSize {
			take := min(DropSpaceSize-len(g.Path[last].Loot), len(dropped))
			g.Path[last].Loot = append(g.Path[last].Loot, dropped[:take]...)
			dropped = dropped[take:]
			continue
		}
		take := min(DropSpaceSize, len(dropped))
		g.Path = append(g.Path, Space{
			ID:   dropSpaceID(g.Round, p.ID, n),
			Loot: append([]Loot(nil), dropped[:take]...),
		})
		dropped = dropped[take:]
		n++
	}

	p.Position = Submarine
	p.Hand = []LootGroup{}
	g.Players[p.ID] = p
	for i := range g.Path {
		if g.Path[i].Occupant == p.ID {
			g.Path[i].Occupant = ""
		}
	}
	g.UI.Animation = &Animation{Kind: AnimateDrop}

	for i, id := range turn.Drowned {
		if id == p.ID && i+1 < len(turn.Drowned) {
			g.Turn = DropTurn{PlayerID: turn.Drowned[i+1], Drowned: turn.Drowned}
			return
		}
	}
	g.endTurn()
}
