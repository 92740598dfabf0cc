package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	engine "github.com/jason-s-yu/keepbreathing/engine"
	"github.com/jason-s-yu/keepbreathing/engine/agent"
	"github.com/jason-s-yu/keepbreathing/engine/replay"
	"github.com/jason-s-yu/keepbreathing/internal/database"
	"github.com/jason-s-yu/keepbreathing/internal/game"
	"github.com/jason-s-yu/keepbreathing/internal/lobby"
	"github.com/jason-s-yu/keepbreathing/internal/logstore"
)

type options struct {
	Games    int
	Players  int
	Parallel int
	Policies []string
	Seed     int64
	Timeout  time.Duration

	Store   logstore.Store
	Archive database.ResultArchive // Optional.
}

func (o options) validate() error {
	if o.Players < engine.MinPlayers || o.Players > engine.MaxPlayers {
		return fmt.Errorf("players must be %d-%d, got %d", engine.MinPlayers, engine.MaxPlayers, o.Players)
	}
	if len(o.Policies) == 0 {
		return errors.New("at least one policy is required")
	}
	for _, name := range o.Policies {
		if _, err := agent.New(name, 0); err != nil {
			return err
		}
	}
	if o.Store == nil {
		return errors.New("store is required")
	}
	if o.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// result is one finished game as the observer saw it.
type result struct {
	GameID      uuid.UUID
	Entries     int64
	Fingerprint string
	Standings   []engine.Standing
	Winners     []string
	Policies    map[string]string // Player id to policy name.
}

// convergeWait bounds how long players may trail the observer.
const convergeWait = 5 * time.Second

// playGame seats opts.Players bots, plays one game to the end and checks
// that every session folded the log to the same final state.
func playGame(ctx context.Context, opts options, n int, log *logrus.Entry) (result, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	gameID := uuid.New()
	glog := log.WithField("game", gameID)
	res := result{GameID: gameID, Policies: map[string]string{}}

	slots := lobby.NewMemory()
	for i := range opts.Players {
		seat := lobby.Seat{ID: fmt.Sprintf("p%d", i+1), Name: fmt.Sprintf("Bot %d", i+1)}
		if err := slots.Claim(ctx, gameID, engine.Palette[i], seat); err != nil {
			return res, err
		}
	}
	assignment, err := slots.Colors(ctx, gameID)
	if err != nil {
		return res, err
	}

	done := make(chan struct{})
	observer := game.NewSession(gameID, "", opts.Store, glog.WithField("role", "observer"))
	observer.Archive = opts.Archive
	observer.OnGameEnd = func(uuid.UUID, []string, []engine.Standing) { close(done) }

	var players []*game.Session
	for i, pc := range assignment.Roster() {
		name := opts.Policies[i%len(opts.Policies)]
		policy, err := agent.New(name, opts.Seed+int64(n*engine.MaxPlayers+i))
		if err != nil {
			return res, err
		}
		s := game.NewSession(gameID, pc.ID, opts.Store, glog)
		s.AutoDrop = true
		s.OnState = bot(ctx, s, policy, glog.WithField("player", pc.ID))
		res.Policies[pc.ID] = name
		players = append(players, s)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	var runs errgroup.Group
	for _, s := range append([]*game.Session{observer}, players...) {
		runs.Go(func() error {
			err := s.Run(runCtx)
			if runCtx.Err() != nil {
				return nil
			}
			stop()
			return err
		})
	}

	if _, err := players[0].Submit(ctx, assignment.StartAction()); err != nil {
		stop()
		_ = runs.Wait()
		return res, fmt.Errorf("start: %w", err)
	}

	select {
	case <-done:
	case <-runCtx.Done():
		err := runs.Wait()
		if err == nil {
			err = ctx.Err()
		}
		return res, fmt.Errorf("game did not finish: %w", err)
	}

	final := observer.State()
	res.Entries = observer.Next() - 1
	res.Standings = engine.Standings(final)
	res.Winners = engine.Winners(final)
	if res.Fingerprint, err = replay.Fingerprint(final); err != nil {
		stop()
		_ = runs.Wait()
		return res, err
	}
	err = converge(ctx, players, res)
	stop()
	if werr := runs.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return res, err
	}
	if opts.Archive != nil {
		if err := checkArchive(ctx, opts.Archive, res); err != nil {
			return res, err
		}
	}

	glog.WithFields(logrus.Fields{
		"entries":     res.Entries,
		"winners":     res.Winners,
		"fingerprint": res.Fingerprint,
	}).Info("Game finished")
	for _, st := range res.Standings {
		glog.WithFields(logrus.Fields{
			"player":  st.PlayerID,
			"policy":  res.Policies[st.PlayerID],
			"total":   st.Total,
			"byRound": st.ByRound,
		}).Debug("Standing")
	}
	return res, nil
}

// bot submits policy's move whenever the session's state offers the local
// player a decision. Drops are left to AutoDrop.
func bot(ctx context.Context, s *game.Session, policy agent.Policy, log *logrus.Entry) func(engine.GameState) {
	return func(g engine.GameState) {
		if g.UI.PendingAction {
			return
		}
		if _, ok := g.Turn.(engine.DropTurn); ok {
			return
		}
		a, ok := agent.Act(policy, g, s.LocalPlayerID)
		if !ok {
			return
		}
		if _, err := s.Submit(ctx, a); err != nil {
			log.WithError(err).Debug("Bot submission refused")
		}
	}
}

// converge waits for every player to reach the observer's final state.
func converge(ctx context.Context, players []*game.Session, want result) error {
	deadline := time.Now().Add(convergeWait)
	for _, s := range players {
		for s.Next() <= want.Entries {
			if time.Now().After(deadline) || ctx.Err() != nil {
				return fmt.Errorf("player %s stuck at seq %d of %d", s.LocalPlayerID, s.Next()-1, want.Entries)
			}
			time.Sleep(time.Millisecond)
		}
		fp, err := replay.Fingerprint(s.State())
		if err != nil {
			return err
		}
		if fp != want.Fingerprint {
			return fmt.Errorf("player %s diverged: fingerprint %s, observer %s", s.LocalPlayerID, fp, want.Fingerprint)
		}
	}
	return nil
}

// checkArchive waits for the observer's archived result and compares it.
func checkArchive(ctx context.Context, archive database.ResultArchive, want result) error {
	deadline := time.Now().Add(convergeWait)
	for {
		got, err := archive.FinalResult(ctx, want.GameID)
		switch {
		case err == nil:
			if got.Fingerprint != want.Fingerprint {
				return fmt.Errorf("archived fingerprint %s, observed %s", got.Fingerprint, want.Fingerprint)
			}
			return nil
		case !errors.Is(err, database.ErrResultNotFound):
			return err
		case time.Now().After(deadline):
			return fmt.Errorf("result for game %s was not archived", want.GameID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
