// internal/game/session_test.go
package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engine "github.com/jason-s-yu/keepbreathing/engine"
	"github.com/jason-s-yu/keepbreathing/engine/agent"
	"github.com/jason-s-yu/keepbreathing/engine/replay"
	"github.com/jason-s-yu/keepbreathing/internal/database"
	"github.com/jason-s-yu/keepbreathing/internal/lobby"
	"github.com/jason-s-yu/keepbreathing/internal/logstore"
)

const startMillis = 1700000000000

var roster3 = lobby.Assignment{
	engine.ColorRed:    {ID: "a", Name: "Ada"},
	engine.ColorOrange: {ID: "b", Name: "Bo"},
	engine.ColorYellow: {ID: "c", Name: "Cy"},
}

// mockArchive captures archived results for testing assertions.
type mockArchive struct {
	mu      sync.Mutex
	results map[uuid.UUID]database.Result
}

func newMockArchive() *mockArchive {
	return &mockArchive{results: make(map[uuid.UUID]database.Result)}
}

func (m *mockArchive) StoreFinalResult(_ context.Context, r database.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[r.GameID]; !ok {
		m.results[r.GameID] = r
	}
	return nil
}

func (m *mockArchive) FinalResult(_ context.Context, id uuid.UUID) (database.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return database.Result{}, database.ErrResultNotFound
	}
	return r, nil
}

// greedy dives and grabs until it cannot, so its divers always drown.
type greedy struct{}

func (greedy) Choose(_ engine.GameState, legal []engine.Action) engine.Action {
	for _, a := range legal {
		if r, ok := a.(engine.Roll); ok && r.Dir == engine.Down {
			return a
		}
		if s, ok := a.(engine.Search); ok && s.Op == engine.SearchGrab {
			return a
		}
	}
	return legal[0]
}

// fixedClock makes store timestamps start at startMillis and count up.
func fixedClock() time.Time { return time.UnixMilli(startMillis) }

func newTestLogger() *logrus.Entry {
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(log)
}

// runSession runs s until the test ends and reports Run's result on the
// returned channel.
func runSession(t *testing.T, s *Session) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		done <- s.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Error("session did not stop")
		}
	})
	return done
}

// playGame starts a game for players and drives them with policy until the
// observer sees game over. Drops are left to AutoDrop.
func playGame(t *testing.T, observer *Session, players []*Session, policy agent.Policy) {
	t.Helper()
	ctx := context.Background()
	_, err := players[0].Submit(ctx, roster3.StartAction())
	require.NoError(t, err)

	deadline := time.Now().Add(20 * time.Second)
	for !observer.State().IsGameOver() {
		require.True(t, time.Now().Before(deadline), "game did not finish")
		for _, s := range players {
			if s.Pending() {
				continue
			}
			g := s.State()
			if _, ok := g.Turn.(engine.DropTurn); ok {
				continue
			}
			a, ok := agent.Act(policy, g, s.LocalPlayerID)
			if !ok {
				continue
			}
			// The session may have moved on since g; those errors are
			// expected and the next pass retries.
			_, err := s.Submit(ctx, a)
			require.False(t, errors.Is(err, ErrSessionFaulted), "session faulted: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
}

func newPlayers(store logstore.Store, game uuid.UUID, ids ...string) []*Session {
	var out []*Session
	for _, id := range ids {
		s := NewSession(game, id, store, newTestLogger())
		s.AutoDrop = true
		out = append(out, s)
	}
	return out
}

func TestSessionsConvergeAndArchive(t *testing.T) {
	store := logstore.NewMemory()
	game := uuid.New()
	archive := newMockArchive()

	observer := NewSession(game, "", store, newTestLogger())
	observer.Archive = archive
	var ended struct {
		sync.Mutex
		winners []string
		calls   int
	}
	observer.OnGameEnd = func(id uuid.UUID, winners []string, _ []engine.Standing) {
		ended.Lock()
		defer ended.Unlock()
		assert.Equal(t, game, id)
		ended.winners = winners
		ended.calls++
	}
	players := newPlayers(store, game, "a", "b", "c")
	runSession(t, observer)
	for _, s := range players {
		runSession(t, s)
	}

	playGame(t, observer, players, agent.NewRandom(11))

	total := int64(len(store.Read(game, 1)))
	require.Eventually(t, func() bool {
		for _, s := range players {
			if s.Next() != total+1 {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond, "players never caught up")

	want, err := replay.Fingerprint(observer.State())
	require.NoError(t, err)
	for _, s := range players {
		got, err := replay.Fingerprint(s.State())
		require.NoError(t, err)
		assert.Equal(t, want, got, "player %s diverged", s.LocalPlayerID)
	}

	require.Eventually(t, func() bool {
		_, err := archive.FinalResult(context.Background(), game)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond, "result never archived")
	res, err := archive.FinalResult(context.Background(), game)
	require.NoError(t, err)
	assert.Equal(t, want, res.Fingerprint)
	assert.Len(t, res.Standings, 3)
	assert.LessOrEqual(t, res.Entries, total)

	ended.Lock()
	defer ended.Unlock()
	assert.Equal(t, 1, ended.calls)
	assert.Equal(t, engine.Winners(observer.State()), ended.winners)
}

func TestAutoDropKeepsGameMoving(t *testing.T) {
	store := logstore.NewMemory(logstore.WithClock(fixedClock))
	game := uuid.New()
	observer := NewSession(game, "", store, newTestLogger())

	var mu sync.Mutex
	drops := 0
	observer.OnState = func(g engine.GameState) {
		if a := g.UI.Animation; a != nil && a.Kind == engine.AnimateDrop {
			mu.Lock()
			drops++
			mu.Unlock()
		}
	}
	players := newPlayers(store, game, "a", "b", "c")
	runSession(t, observer)
	for _, s := range players {
		runSession(t, s)
	}

	playGame(t, observer, players, greedy{})

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, drops, "greedy divers drown, so someone must have dropped")
	for _, e := range store.Read(game, 1) {
		var a struct {
			Type     string `json:"type"`
			PlayerID string `json:"playerId"`
		}
		require.NoError(t, json.Unmarshal(e.Action, &a))
		if a.Type == string(engine.KindDrop) {
			assert.Equal(t, a.PlayerID, e.Submitter, "drops come from the drowned player's own session")
		}
	}
}

func TestSubmitPendingGate(t *testing.T) {
	store := logstore.NewMemory(logstore.WithClock(fixedClock))
	game := uuid.New()
	s := NewSession(game, "b", store, newTestLogger())

	e, err := s.Submit(context.Background(), roster3.StartAction())
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Seq)
	assert.Equal(t, "b", e.Submitter)
	assert.True(t, s.Pending())
	assert.True(t, s.State().UI.PendingAction)

	_, err = s.Submit(context.Background(), roster3.StartAction())
	assert.ErrorIs(t, err, ErrActionPending)

	runSession(t, s)
	require.Eventually(t, func() bool { return !s.Pending() }, 5*time.Second, time.Millisecond)
	g := s.State()
	assert.Equal(t, engine.PhaseRoll, g.Phase())
	assert.Equal(t, []string{"b", "a", "c"}, g.PlayerOrder)
	assert.False(t, g.UI.PendingAction)
}

func TestCancelClearsPending(t *testing.T) {
	s := NewSession(uuid.New(), "a", logstore.NewMemory(), newTestLogger())
	_, err := s.Submit(context.Background(), roster3.StartAction())
	require.NoError(t, err)
	require.True(t, s.Pending())
	s.Cancel()
	assert.False(t, s.Pending())
}

func TestSubmitRejects(t *testing.T) {
	store := logstore.NewMemory(logstore.WithClock(fixedClock))
	game := uuid.New()
	a := NewSession(game, "a", store, newTestLogger())
	b := NewSession(game, "b", store, newTestLogger())
	spectator := NewSession(game, "", store, newTestLogger())

	_, err := b.Submit(context.Background(), engine.Roll{PlayerID: "b", Dir: engine.Down})
	assert.ErrorIs(t, err, engine.ErrGameNotActive)

	_, err = a.Submit(context.Background(), roster3.StartAction())
	require.NoError(t, err)
	runSession(t, a)
	runSession(t, b)
	require.Eventually(t, func() bool {
		return !a.Pending() && b.State().Phase() == engine.PhaseRoll
	}, 5*time.Second, time.Millisecond)

	// b leads the order.
	_, err = a.Submit(context.Background(), engine.Roll{PlayerID: "b", Dir: engine.Down})
	assert.ErrorIs(t, err, ErrNotLocalPlayer)
	_, err = spectator.Submit(context.Background(), engine.Drop{PlayerID: ""})
	assert.ErrorIs(t, err, ErrNotLocalPlayer)
	_, err = a.Submit(context.Background(), engine.Roll{PlayerID: "a", Dir: engine.Down})
	assert.ErrorIs(t, err, engine.ErrNotYourTurn)
	_, err = b.Submit(context.Background(), engine.Search{PlayerID: "b", Op: engine.SearchPass})
	assert.ErrorIs(t, err, engine.ErrWrongPhase)
	_, err = b.Submit(context.Background(), engine.Roll{PlayerID: "b", Dir: engine.Up})
	assert.ErrorIs(t, err, ErrIllegalAction, "staying aboard is only offered when diving is impossible")
	_, err = a.Submit(context.Background(), roster3.StartAction())
	assert.ErrorIs(t, err, engine.ErrGameActive)

	assert.False(t, a.Pending())
	assert.False(t, b.Pending())
}

func TestForeignSubmissionDiscarded(t *testing.T) {
	store := logstore.NewMemory(logstore.WithClock(fixedClock))
	game := uuid.New()
	b := NewSession(game, "b", store, newTestLogger())

	_, err := b.Submit(context.Background(), roster3.StartAction())
	require.NoError(t, err)
	runSession(t, b)
	require.Eventually(t, func() bool {
		return b.State().Phase() == engine.PhaseRoll
	}, 5*time.Second, time.Millisecond)

	// a appends b's roll directly, skipping its own session's checks.
	roll, err := engine.MarshalAction(engine.Roll{PlayerID: "b", Dir: engine.Down})
	require.NoError(t, err)
	_, err = store.Append(context.Background(), game, logstore.Record{
		SubmissionID: uuid.New(),
		Submitter:    "a",
		Action:       roll,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.Next() == 3 }, 5*time.Second, time.Millisecond)
	g := b.State()
	assert.Equal(t, engine.PhaseRoll, g.Phase())
	active, _ := g.ActivePlayer()
	assert.Equal(t, "b", active, "the turn did not pass")
	assert.Equal(t, engine.Submarine, g.Players["b"].Position)
	assert.NoError(t, b.Err())

	// b's own roll still goes through.
	_, err = b.Submit(context.Background(), engine.Roll{PlayerID: "b", Dir: engine.Down})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.Next() == 4 }, 5*time.Second, time.Millisecond)
	assert.NotEqual(t, engine.Submarine, b.State().Players["b"].Position)
}

func TestConcurrentSubmissionsOneWins(t *testing.T) {
	store := logstore.NewMemory(logstore.WithClock(fixedClock))
	game := uuid.New()
	phone := NewSession(game, "b", store, newTestLogger())
	laptop := NewSession(game, "b", store, newTestLogger())

	_, err := phone.Submit(context.Background(), roster3.StartAction())
	require.NoError(t, err)
	runSession(t, phone)
	runSession(t, laptop)
	require.Eventually(t, func() bool {
		return !phone.Pending() && laptop.State().Phase() == engine.PhaseRoll
	}, 5*time.Second, time.Millisecond)

	// Both devices see b's roll and submit before either echo arrives.
	var wg sync.WaitGroup
	for _, s := range []*Session{phone, laptop} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit(context.Background(), engine.Roll{PlayerID: "b", Dir: engine.Down})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return phone.Next() == 4 && laptop.Next() == 4
	}, 5*time.Second, time.Millisecond)
	assert.False(t, phone.Pending())
	assert.False(t, laptop.Pending())
	for _, s := range []*Session{phone, laptop} {
		g := s.State()
		assert.Equal(t, engine.PhaseSearch, g.Phase(), "the second roll was discarded")
		assert.Equal(t, engine.AnimateRoll, g.UI.Animation.Kind)
	}
	p, l := phone.State(), laptop.State()
	p.UI, l.UI = engine.UIMetadata{}, engine.UIMetadata{}
	assert.Equal(t, p, l)
}

func TestIntegrityFaultStopsSession(t *testing.T) {
	store := logstore.NewMemory()
	game := uuid.New()
	s := NewSession(game, "a", store, newTestLogger())
	faults := make(chan error, 1)
	s.OnFault = func(err error) { faults <- err }

	_, err := store.Append(context.Background(), game, logstore.Record{
		SubmissionID: uuid.New(),
		Action:       json.RawMessage(`{"type":"TELEPORT","playerId":"a"}`),
	})
	require.NoError(t, err)

	done := runSession(t, s)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionFaulted)
		var ie *replay.IntegrityError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, int64(1), ie.Seq)
		assert.ErrorIs(t, err, engine.ErrUnknownAction)
	case <-time.After(5 * time.Second):
		t.Fatal("session kept running after a corrupt entry")
	}
	assert.Error(t, <-faults)
	assert.Error(t, s.Err())

	_, err = s.Submit(context.Background(), roster3.StartAction())
	assert.ErrorIs(t, err, ErrSessionFaulted)
	assert.ErrorIs(t, s.Run(context.Background()), ErrSessionFaulted)
}
