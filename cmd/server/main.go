// Command server runs the relay: the shared action log, identities and
// lobby color slots for Keep Breathing clients.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	engine "github.com/jason-s-yu/keepbreathing/engine"
	"github.com/jason-s-yu/keepbreathing/internal/auth"
	"github.com/jason-s-yu/keepbreathing/internal/cache"
	"github.com/jason-s-yu/keepbreathing/internal/config"
	"github.com/jason-s-yu/keepbreathing/internal/database"
	"github.com/jason-s-yu/keepbreathing/internal/game"
	"github.com/jason-s-yu/keepbreathing/internal/lobby"
	"github.com/jason-s-yu/keepbreathing/internal/logstore"
	"github.com/jason-s-yu/keepbreathing/internal/server"
)

// observeFor bounds how long an archiving observer waits for its game.
const observeFor = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log, err := cfg.Logger()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logrus.NewEntry(log)); err != nil {
		log.WithError(err).Fatal("Relay stopped")
	}
}

// backend is everything the relay runs on, chosen by STORE_DRIVER.
type backend struct {
	store   logstore.Store
	slots   lobby.Slots
	archive database.ResultArchive
	closers []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, log *logrus.Entry) (*backend, error) {
	b := &backend{slots: lobby.NewMemory()}
	switch cfg.StoreDriver {
	case config.DriverMemory:
		m := logstore.NewMemory()
		b.store = m
		b.closers = append(b.closers, func() { _ = m.Close() })
	case config.DriverSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.store, b.archive = db, db
		b.closers = append(b.closers, func() { _ = db.Close() })
	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		// The log and the archive share one pool.
		b.store = database.NewPostgresLog(pool, log)
		b.archive = database.NewPostgresArchive(pool)
		b.closers = append(b.closers, pool.Close)
	case config.DriverRedis:
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.store = cache.NewRedisLog(client, log)
		b.slots = cache.NewRedisSlots(client)
		b.closers = append(b.closers, func() { _ = client.Close() })
	}

	if cfg.ArchiveResults && b.archive == nil {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			b.close()
			return nil, err
		}
		b.archive = database.NewPostgresArchive(pool)
		b.closers = append(b.closers, pool.Close)
	}
	if !cfg.ArchiveResults {
		b.archive = nil
	}
	return b, nil
}

func run(ctx context.Context, cfg config.Config, log *logrus.Entry) error {
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	g, ctx := errgroup.WithContext(ctx)
	srv := server.New(b.store, b.slots, issuer, log)
	if b.archive != nil {
		srv.OnGameCreated = func(gameID uuid.UUID) {
			g.Go(func() error {
				observe(ctx, gameID, b, log)
				return nil
			})
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "store": cfg.StoreDriver}).Info("Relay listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// observe follows gameID until it ends, so its final standings land in the
// archive.
func observe(ctx context.Context, gameID uuid.UUID, b *backend, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(ctx, observeFor)
	defer cancel()

	s := game.NewSession(gameID, "", b.store, log.WithField("role", "archiver"))
	s.Archive = b.archive
	s.OnGameEnd = func(uuid.UUID, []string, []engine.Standing) { cancel() }
	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).WithField("game", gameID).Warn("Archiver stopped")
	}
}
