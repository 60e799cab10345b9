package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/divvyhq/divvy/internal/api"
	"github.com/divvyhq/divvy/internal/config"
	"github.com/divvyhq/divvy/internal/connectivity"
	"github.com/divvyhq/divvy/internal/identity"
	"github.com/divvyhq/divvy/internal/queue"
	"github.com/divvyhq/divvy/internal/remote"
	"github.com/divvyhq/divvy/internal/service"
	"github.com/divvyhq/divvy/internal/state"
	"github.com/divvyhq/divvy/internal/storage/sqlite"
	"github.com/divvyhq/divvy/internal/syncer"
	"github.com/divvyhq/divvy/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("Daemon exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	session, err := remote.LoadSession(ctx, store)
	if err != nil {
		return err
	}

	q, err := queue.Load(ctx, store)
	needsRefresh := false
	if errors.Is(err, queue.ErrQueueCorrupt) {
		// The queue cannot be trusted, and neither can the cache built
		// from it. Discard everything except the session and re-pull.
		slog.Warn("Mutation queue is corrupt, discarding local cache", "error", err)
		token := session.Token()
		if err := store.Flush(ctx); err != nil {
			return err
		}
		if token != "" {
			if err := session.SetToken(ctx, token); err != nil {
				return err
			}
		}
		if q, err = queue.Load(ctx, store); err != nil {
			return err
		}
		needsRefresh = true
	} else if err != nil {
		return err
	}

	domain, err := state.Open(ctx, store)
	if err != nil {
		return err
	}
	defer domain.Close()

	ids, err := identity.Load(ctx, store)
	if err != nil {
		return err
	}
	ids.Register(domain)
	ids.Register(q)

	monitor := connectivity.NewMonitor(cfg.HealthURL, cfg.ProbeInterval, cfg.RemoteTimeout)
	client := remote.NewClient(cfg.RemoteURL, session, cfg.RemoteTimeout)
	metrics := syncer.NewMetrics(func() float64 { return float64(q.Len()) })

	worker := syncer.New(q, ids, domain, client, session, monitor, syncer.Config{
		MaxAttempts:  cfg.SyncMaxAttempts,
		BaseBackoff:  cfg.SyncBaseBackoff,
		MaxBackoff:   cfg.SyncMaxBackoff,
		Jitter:       cfg.SyncJitter,
		WakeInterval: cfg.SyncWakeEvery,
	}, metrics)

	svc := service.New(domain, q, ids, client, monitor, worker)
	server := api.NewServer(cfg.AppAddr, svc, session, worker, metrics, cfg.AppReadTimeout, cfg.AppWriteTimeout)

	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Stop()

	if err := worker.Start(ctx); err != nil {
		return err
	}
	defer worker.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if needsRefresh {
		g.Go(func() error {
			refreshWhenOnline(ctx, svc, monitor)
			return nil
		})
	}

	slog.Info("Sync daemon started", "address", cfg.AppAddr, "remote", cfg.RemoteURL)
	return g.Wait()
}

// refreshWhenOnline re-pulls all collections as soon as connectivity
// allows. Used after a corrupt-cache flush, when the local state is empty.
func refreshWhenOnline(ctx context.Context, svc *service.Service, monitor *connectivity.Monitor) {
	for {
		if monitor.Online() {
			if err := svc.Refresh(ctx); err == nil {
				return
			} else if !errors.Is(err, service.ErrOffline) {
				slog.Warn("Refresh failed, will retry", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-monitor.BecameOnline():
		case <-time.After(30 * time.Second):
		}
	}
}
