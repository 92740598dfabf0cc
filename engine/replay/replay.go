// Package replay folds an ordered action log into game state.
//
// Every observer runs the same fold over the same log, so the only thing a
// client needs to agree with its peers is the log itself. Entries whose
// decision point has already been resolved (the loser of two concurrent
// submissions) are discarded; anything else the engine rejects means the
// log is corrupt and the fold stops.
package replay

import (
	"errors"
	"fmt"

	"github.com/jason-s-yu/keepbreathing/engine"
)

// Entry is one logged action. Seq numbers the log from 1 with no gaps;
// Timestamp is the store-assigned ordering key and the action's RNG seed.
// Submitter is who the store says appended it; empty when unknown.
type Entry struct {
	Seq       int64
	Timestamp int64
	Submitter string
	Action    engine.Action
}

// Outcome reports what a Reducer did with an entry.
type Outcome int

const (
	// Applied means the entry produced a new state.
	Applied Outcome = iota
	// Discarded means the entry was stale or impersonated a player and left
	// the state unchanged.
	Discarded
	// Skipped means the entry was already folded (a redelivered prefix).
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Discarded:
		return "discarded"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

var (
	// ErrOutOfOrder means an entry's timestamp did not increase.
	ErrOutOfOrder = errors.New("timestamp not after previous entry")
	// ErrGap means an entry arrived before its predecessor.
	ErrGap = errors.New("sequence gap")
	// ErrImpersonation means an entry acts for someone other than its
	// submitter. Such entries are discarded, never applied.
	ErrImpersonation = errors.New("action submitted on behalf of another player")
)

// IntegrityError is a fold-time fault: a logged entry that no well-behaved
// client could have appended. Folding cannot continue past it.
type IntegrityError struct {
	Seq       int64
	Timestamp int64
	Err       error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("log integrity fault at seq %d (ts %d): %v", e.Seq, e.Timestamp, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// Option configures a Reducer.
type Option func(*Reducer)

// WithStrict runs engine.CheckInvariants after every applied entry and
// treats a violation as an integrity fault.
func WithStrict() Option {
	return func(r *Reducer) { r.strict = true }
}

// WithDiscardHook calls fn for every stale entry the reducer drops.
func WithDiscardHook(fn func(Entry, error)) Option {
	return func(r *Reducer) { r.onDiscard = fn }
}

// WithInitial starts the fold from g instead of engine.NewBlank().
func WithInitial(g engine.GameState) Option {
	return func(r *Reducer) { r.state = g }
}

// Reducer folds entries incrementally. It is not safe for concurrent use.
type Reducer struct {
	state     engine.GameState
	next      int64
	lastTS    int64
	strict    bool
	onDiscard func(Entry, error)
	err       error
}

// NewReducer returns a reducer positioned before the first entry.
func NewReducer(opts ...Option) *Reducer {
	r := &Reducer{state: engine.NewBlank(), next: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the folded state.
func (r *Reducer) State() engine.GameState { return r.state }

// Next returns the sequence number the reducer expects next.
func (r *Reducer) Next() int64 { return r.next }

// Err returns the integrity fault that stopped the reducer, if any.
func (r *Reducer) Err() error { return r.err }

// Apply folds one entry. After an integrity fault every call returns the
// same error.
func (r *Reducer) Apply(e Entry) (Outcome, error) {
	if r.err != nil {
		return 0, r.err
	}
	if e.Seq < r.next {
		return Skipped, nil
	}
	if e.Seq > r.next {
		return r.fault(e, fmt.Errorf("%w: got %d, want %d", ErrGap, e.Seq, r.next))
	}
	if r.next > 1 && e.Timestamp <= r.lastTS {
		return r.fault(e, fmt.Errorf("%w: %d after %d", ErrOutOfOrder, e.Timestamp, r.lastTS))
	}

	var next engine.GameState
	var err error
	if impersonates(e) {
		err = fmt.Errorf("%w: %q acted as %q", ErrImpersonation, e.Submitter, e.Action.Actor())
	} else {
		next, err = engine.Apply(r.state, e.Action, e.Timestamp)
		if err != nil && !engine.IsStale(err) {
			return r.fault(e, err)
		}
	}
	r.next = e.Seq + 1
	r.lastTS = e.Timestamp
	if err != nil {
		if r.onDiscard != nil {
			r.onDiscard(e, err)
		}
		return Discarded, nil
	}

	if r.strict {
		if err := engine.CheckInvariants(next); err != nil {
			return r.fault(e, err)
		}
	}
	r.state = next
	return Applied, nil
}

// impersonates reports whether e names an actor other than its submitter.
// START has no actor; anyone may seat the table.
func impersonates(e Entry) bool {
	if e.Submitter == "" || e.Action == nil || e.Action.Kind() == engine.KindStart {
		return false
	}
	return e.Submitter != e.Action.Actor()
}

func (r *Reducer) fault(e Entry, err error) (Outcome, error) {
	r.err = &IntegrityError{Seq: e.Seq, Timestamp: e.Timestamp, Err: err}
	return 0, r.err
}

// Fold applies entries in order to a fresh reducer and returns the final
// state.
func Fold(entries []Entry, opts ...Option) (engine.GameState, error) {
	r := NewReducer(opts...)
	for _, e := range entries {
		if _, err := r.Apply(e); err != nil {
			return r.State(), err
		}
	}
	return r.State(), nil
}
