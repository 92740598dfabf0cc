// Command sim plays bot games end to end through a log store, the same way
// real clients do: every player runs its own session and folds the shared
// log, and an observer reports the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jason-s-yu/keepbreathing/internal/database"
	"github.com/jason-s-yu/keepbreathing/internal/logstore"
)

func main() {
	var opts options
	var policies, storeKind, sqlitePath, level string
	flag.IntVar(&opts.Games, "games", 10, "number of games to play")
	flag.IntVar(&opts.Players, "players", 4, "players per game (2-6)")
	flag.StringVar(&policies, "policy", "cautious,random", "comma-separated bot policies, assigned to seats in turn")
	flag.Int64Var(&opts.Seed, "seed", 1, "seed for random policies")
	flag.IntVar(&opts.Parallel, "parallel", 4, "games played at once")
	flag.DurationVar(&opts.Timeout, "timeout", time.Minute, "give up on a game after this long")
	flag.StringVar(&storeKind, "store", "memory", "log store: memory or sqlite")
	flag.StringVar(&sqlitePath, "sqlite", "sim.db", "sqlite file for -store=sqlite")
	flag.StringVar(&level, "log-level", "info", "log level")
	flag.Parse()
	opts.Policies = strings.Split(policies, ",")

	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.Fatalf("log level: %v", err)
	}
	log.SetLevel(lvl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch storeKind {
	case "memory":
		m := logstore.NewMemory()
		defer m.Close()
		opts.Store = m
	case "sqlite":
		db, err := database.OpenSQLite(sqlitePath)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer db.Close()
		opts.Store, opts.Archive = db, db
	default:
		log.Fatalf("unknown store %q", storeKind)
	}

	entry := logrus.NewEntry(log)
	summary, err := run(ctx, opts, entry)
	if err != nil {
		log.WithError(err).Error("Simulation failed")
		os.Exit(1)
	}
	summary.log(entry)
}

// summary tallies wins across games by policy.
type summary struct {
	mu     sync.Mutex
	games  int
	wins   map[string]int
	points map[string]int
}

func (s *summary) add(r result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games++
	for _, st := range r.Standings {
		s.points[r.Policies[st.PlayerID]] += st.Total
	}
	for _, id := range r.Winners {
		s.wins[r.Policies[id]]++
	}
}

func (s *summary) log(log *logrus.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for policy, pts := range s.points {
		log.WithFields(logrus.Fields{
			"policy": policy,
			"wins":   s.wins[policy],
			"points": pts,
		}).Info(fmt.Sprintf("Summary over %d games", s.games))
	}
}

func run(ctx context.Context, opts options, log *logrus.Entry) (*summary, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	sum := &summary{wins: map[string]int{}, points: map[string]int{}}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Parallel, 1))
	for i := range opts.Games {
		g.Go(func() error {
			r, err := playGame(ctx, opts, i, log)
			if err != nil {
				return fmt.Errorf("game %d: %w", i, err)
			}
			sum.add(r)
			return nil
		})
	}
	return sum, g.Wait()
}
