// internal/game/session.go
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	engine "github.com/jason-s-yu/keepbreathing/engine"
	"github.com/jason-s-yu/keepbreathing/engine/replay"
	"github.com/jason-s-yu/keepbreathing/internal/database"
	"github.com/jason-s-yu/keepbreathing/internal/logstore"
)

var (
	// ErrActionPending is returned while an earlier submission has not yet
	// come back through the log.
	ErrActionPending = errors.New("an action is already awaiting confirmation")
	// ErrNotLocalPlayer is returned for actions on behalf of someone else.
	ErrNotLocalPlayer = errors.New("action is not for the local player")
	// ErrIllegalAction is returned for actions the current state does not
	// offer.
	ErrIllegalAction = errors.New("action is not legal now")
	// ErrSessionFaulted is returned once the log failed an integrity check.
	ErrSessionFaulted = errors.New("session stopped on a log integrity fault")
)

// OnGameEndFunc defines the signature for a callback executed when a game
// ends. It receives the game ID, the winners and the final standings.
type OnGameEndFunc func(gameID uuid.UUID, winners []string, standings []engine.Standing)

// Session is one client's view of a shared game: it folds the log into
// state and submits the local player's actions. All players of a game run
// their own Session against the same store and reach identical states.
type Session struct {
	ID            uuid.UUID // Game (log) id.
	LocalPlayerID string    // Empty for observers.
	Store         logstore.Store

	// AutoDrop submits DROP when the local player must drop their hand.
	AutoDrop bool
	// Archive receives the final result. Only observer sessions archive.
	Archive database.ResultArchive

	// Communication Callbacks. They run outside the session lock, so they
	// may call back into the session.
	OnState   func(g engine.GameState) // Every entry that changed state.
	OnFault   func(err error)          // The log failed an integrity check.
	OnGameEnd OnGameEndFunc

	log *logrus.Entry

	Mu       sync.Mutex
	reducer  *replay.Reducer
	pending  uuid.UUID // Submission awaiting its echo; uuid.Nil when none.
	fault    error
	finished bool
}

// NewSession creates a session for gameID. localPlayerID may be empty for
// an observer.
func NewSession(gameID uuid.UUID, localPlayerID string, store logstore.Store, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	fields := logrus.Fields{"game": gameID}
	if localPlayerID != "" {
		fields["player"] = localPlayerID
	}
	s := &Session{
		ID:            gameID,
		LocalPlayerID: localPlayerID,
		Store:         store,
		log:           log.WithFields(fields),
	}
	s.reducer = replay.NewReducer(replay.WithDiscardHook(s.onDiscard))
	return s
}

// onDiscard logs stale and impersonated entries. Called from reducer.Apply,
// so the lock is held by the caller.
func (s *Session) onDiscard(e replay.Entry, err error) {
	log := s.log.WithFields(entryFields(e)).WithError(err)
	if errors.Is(err, replay.ErrImpersonation) {
		log.WithField("submitter", e.Submitter).Warn("Discarded impersonated entry")
		return
	}
	log.Warn("Discarded stale entry")
}

// Run folds the log until ctx is done, the subscription fails, or an
// integrity fault stops the session.
func (s *Session) Run(ctx context.Context) error {
	s.Mu.Lock()
	if s.fault != nil {
		s.Mu.Unlock()
		return ErrSessionFaulted
	}
	from := s.reducer.Next()
	s.Mu.Unlock()

	sub, err := s.Store.Subscribe(ctx, s.ID, from)
	if err != nil {
		return fmt.Errorf("subscribe to game %s: %w", s.ID, err)
	}
	defer sub.Close()
	s.log.WithField("seq", from).Info("Session started")

	for e := range sub.Entries() {
		if err := s.handleEntry(ctx, e); err != nil {
			return err
		}
	}
	err = sub.Err()
	s.log.WithError(err).Info("Session stopped")
	return err
}

// handleEntry folds one log entry and runs whatever follows from it.
func (s *Session) handleEntry(ctx context.Context, e logstore.Entry) error {
	s.Mu.Lock()
	if e.SubmissionID == s.pending {
		s.pending = uuid.Nil
	}
	prev := s.reducer.State()
	outcome, err := s.apply(e)
	if err != nil {
		s.fault = err
		s.pending = uuid.Nil
		s.Mu.Unlock()
		s.log.WithError(err).WithFields(logrus.Fields{"seq": e.Seq, "ts": e.Timestamp}).Error("Log integrity fault")
		if s.OnFault != nil {
			s.OnFault(err)
		}
		return fmt.Errorf("%w: %w", ErrSessionFaulted, err)
	}

	state := s.stateLocked()
	var end *gameEnd
	if outcome == replay.Applied {
		logTransition(s.log.WithFields(logrus.Fields{"seq": e.Seq, "ts": e.Timestamp}), prev, state)
		if state.IsGameOver() && !s.finished {
			s.finished = true
			end = &gameEnd{state: state, entry: e}
		}
	}
	drop := s.dueDropLocked(state)
	s.Mu.Unlock()

	if outcome == replay.Applied && s.OnState != nil {
		s.OnState(state)
	}
	if end != nil {
		s.endGame(end)
	}
	if drop {
		if _, err := s.Submit(ctx, engine.Drop{PlayerID: s.LocalPlayerID}); err != nil && !errors.Is(err, ErrActionPending) {
			s.log.WithError(err).Warn("Auto-drop failed")
		}
	}
	return nil
}

// apply decodes and folds e. Assumes lock is held by caller.
func (s *Session) apply(e logstore.Entry) (replay.Outcome, error) {
	a, err := engine.UnmarshalAction(e.Action)
	if err != nil {
		return 0, &replay.IntegrityError{Seq: e.Seq, Timestamp: e.Timestamp, Err: err}
	}
	return s.reducer.Apply(replay.Entry{Seq: e.Seq, Timestamp: e.Timestamp, Submitter: e.Submitter, Action: a})
}

// dueDropLocked reports whether AutoDrop should submit now. Assumes lock
// is held by caller.
func (s *Session) dueDropLocked(g engine.GameState) bool {
	if !s.AutoDrop || s.LocalPlayerID == "" || s.pending != uuid.Nil {
		return false
	}
	t, ok := g.Turn.(engine.DropTurn)
	return ok && t.PlayerID == s.LocalPlayerID
}

type gameEnd struct {
	state engine.GameState
	entry logstore.Entry
}

// endGame reports the final standings and, for observers, archives them.
func (s *Session) endGame(end *gameEnd) {
	standings := engine.Standings(end.state)
	winners := engine.Winners(end.state)
	s.log.WithFields(logrus.Fields{"winners": winners, "seq": end.entry.Seq}).Info("Game over")
	if s.OnGameEnd != nil {
		s.OnGameEnd(s.ID, winners, standings)
	}
	if s.Archive == nil || s.LocalPlayerID != "" {
		return
	}
	fp, err := replay.Fingerprint(end.state)
	if err != nil {
		s.log.WithError(err).Error("Fingerprint failed")
		return
	}
	res := database.Result{
		GameID:      s.ID,
		Fingerprint: fp,
		Standings:   standings,
		Entries:     end.entry.Seq,
		FinishedAt:  time.UnixMilli(end.entry.Timestamp).UTC(),
	}
	// Stored off the fold goroutine.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Archive.StoreFinalResult(ctx, res); err != nil {
			s.log.WithError(err).Error("Archiving result failed")
			return
		}
		s.log.WithField("fingerprint", fp).Info("Result archived")
	}()
}

// Submit appends a for the local player. The session refuses a second
// submission until the first one is seen in the log, so a player cannot
// act twice on one decision. START may be submitted by any session.
func (s *Session) Submit(ctx context.Context, a engine.Action) (logstore.Entry, error) {
	s.Mu.Lock()
	if s.fault != nil {
		s.Mu.Unlock()
		return logstore.Entry{}, ErrSessionFaulted
	}
	if s.pending != uuid.Nil {
		s.Mu.Unlock()
		return logstore.Entry{}, ErrActionPending
	}
	if err := s.checkLocked(a); err != nil {
		s.Mu.Unlock()
		s.log.WithError(err).WithField("action", a.Kind()).Warn("Submission rejected")
		return logstore.Entry{}, err
	}
	data, err := engine.MarshalAction(a)
	if err != nil {
		s.Mu.Unlock()
		return logstore.Entry{}, fmt.Errorf("encode action: %w", err)
	}
	sid := uuid.New()
	s.pending = sid
	s.Mu.Unlock()

	e, err := s.Store.Append(ctx, s.ID, logstore.Record{
		SubmissionID: sid,
		Submitter:    s.LocalPlayerID,
		Action:       data,
	})
	if err != nil {
		s.Mu.Lock()
		if s.pending == sid {
			s.pending = uuid.Nil
		}
		s.Mu.Unlock()
		return logstore.Entry{}, fmt.Errorf("append %s: %w", a.Kind(), err)
	}
	s.log.WithFields(logrus.Fields{"seq": e.Seq, "action": a.Kind()}).Debug("Submitted")
	return e, nil
}

// checkLocked vets a against the current state. Assumes lock is held by
// caller.
func (s *Session) checkLocked(a engine.Action) error {
	g := s.reducer.State()
	if a.Kind() == engine.KindStart {
		return engine.Validate(g, a)
	}
	if s.LocalPlayerID == "" || a.Actor() != s.LocalPlayerID {
		return fmt.Errorf("%w: %q", ErrNotLocalPlayer, a.Actor())
	}
	if engine.IsLegal(g, a) {
		return nil
	}
	if err := engine.Validate(g, a); err != nil {
		return err
	}
	return ErrIllegalAction
}

// Cancel forgets the pending submission so the player may submit again.
// Use it when an append's outcome is unknown and the entry never arrived.
func (s *Session) Cancel() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.pending = uuid.Nil
}

// Pending reports whether a submission is awaiting its echo.
func (s *Session) Pending() bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.pending != uuid.Nil
}

// Err returns the integrity fault that stopped the session, if any.
func (s *Session) Err() error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.fault
}

// Next returns the sequence number the session expects next.
func (s *Session) Next() int64 {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.reducer.Next()
}

// State returns a copy of the folded state.
func (s *Session) State() engine.GameState {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.stateLocked()
}

// stateLocked assumes lock is held by caller.
func (s *Session) stateLocked() engine.GameState {
	g := s.reducer.State().Clone()
	g.UI.PendingAction = s.pending != uuid.Nil
	return g
}

// View returns the state as the local player may see it.
func (s *Session) View() View {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return NewView(s.ID, s.stateLocked(), s.LocalPlayerID)
}
