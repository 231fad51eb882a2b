// Package app wires the offline core together behind a small terminal REPL:
// local store, retrying queue, connectivity monitor, sync manager and the
// session layer, all sharing one SQLite database.
package app

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/pdcpos/posoffline/internal/common"
	"github.com/pdcpos/posoffline/internal/config"
	"github.com/pdcpos/posoffline/internal/connmon"
	"github.com/pdcpos/posoffline/internal/logging"
	"github.com/pdcpos/posoffline/internal/models"
	"github.com/pdcpos/posoffline/internal/queue"
	"github.com/pdcpos/posoffline/internal/remote"
	"github.com/pdcpos/posoffline/internal/repositories/metadata"
	"github.com/pdcpos/posoffline/internal/retryx"
	"github.com/pdcpos/posoffline/internal/session"
	"github.com/pdcpos/posoffline/internal/store"
	"github.com/pdcpos/posoffline/internal/syncmgr"
)

const tabIDKey = "tab_id"

type App struct {
	config  *config.Config
	log     logging.Logger
	db      *sql.DB
	exec    *retryx.Executor
	queue   *queue.Queue
	monitor *connmon.Monitor
	syncer  *syncmgr.Manager
	sess    *session.Manager
	refs    *session.RefCache
	client  remote.Client

	tabID   string
	current *models.Session
	reader  *bufio.Reader
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	exec := retryx.NewExecutor(log)
	q := queue.New(db, exec, log, cfg.QueueCapacity, cfg.QueueMaxAttempts)
	client := remote.NewHTTPClient(cfg.ServerEndpointAddr, cfg.ProbeTimeout, log)

	monCfg := connmon.DefaultConfig()
	monCfg.SteadyInterval = cfg.ProbeInterval
	monCfg.ProbeTimeout = cfg.ProbeTimeout
	monitor := connmon.New(
		connmon.NewHTTPProber(cfg.ServerEndpointAddr+"/api/v1/ping", cfg.ProbeTimeout),
		monCfg, log)

	syncCfg := syncmgr.DefaultConfig()
	syncCfg.Interval = cfg.SyncInterval
	syncCfg.BatchSize = cfg.SyncBatchSize
	syncCfg.Retention = cfg.Retention
	syncer := syncmgr.New(q, client, monitor, db, exec, log, syncCfg)

	a := &App{
		config:  cfg,
		log:     log.With("component", "app"),
		db:      db,
		exec:    exec,
		queue:   q,
		monitor: monitor,
		syncer:  syncer,
		sess:    session.NewManager(db, client, exec, log, cfg.SessionTTL),
		refs:    session.NewRefCache(db, exec, log),
		client:  client,
		reader:  bufio.NewReader(os.Stdin),
	}

	if err := a.loadTabID(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// loadTabID reads this terminal's tab id from the store, minting one on
// first start. Restarting the process keeps the same tab, so its session
// can be restored.
func (a *App) loadTabID(ctx context.Context) error {
	repo := metadata.NewSQLiteRepository(a.db)
	raw, err := retryx.DoValue(ctx, a.exec, "app.tab_id",
		func(ctx context.Context) ([]byte, error) {
			return repo.Get(ctx, tabIDKey)
		})
	if err != nil {
		return err
	}
	if raw != nil {
		a.tabID = string(raw)
		return nil
	}

	a.tabID = session.NewTabID()
	return a.exec.Do(ctx, "app.save_tab_id", func(ctx context.Context) error {
		return repo.Set(ctx, tabIDKey, []byte(a.tabID))
	})
}

// Run starts the background machinery and blocks in the REPL until the user
// exits or the process receives an interrupt.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Snapshot first; zero reference data is fine for a fresh install.
	if err := a.refs.Restore(ctx); err != nil && !errors.Is(err, common.ErrSnapshotUnusable) {
		return err
	}
	if n, err := a.sess.PurgeExpired(ctx); err == nil && n > 0 {
		a.log.Info(ctx, "purged expired sessions", "count", n)
	}

	a.monitor.Start(ctx)
	a.syncer.Start(ctx)
	defer func() {
		a.syncer.Stop()
		a.monitor.Stop()
		_ = a.client.Close()
		_ = a.db.Close()
	}()

	a.restoreSession(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.repl(ctx)
		stop() // REPL done, unblock the group
		return nil
	})
	g.Go(func() error {
		// After a reconnection the UI must never see an empty catalog:
		// make sure the snapshot is loaded without waiting on the network.
		events := a.monitor.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if ev.State == models.ConnReachable {
					if err := a.refs.EnsureAvailable(ctx); err != nil {
						a.log.Warn(ctx, "reference data unavailable after reconnect", "error", err)
					}
				}
			}
		}
	})
	return g.Wait()
}

func (a *App) isLoggedIn() bool {
	return a.current != nil
}

// restoreSession looks for a live session of this tab from a previous run.
// The owner of the last session is remembered per tab; absent or expired
// sessions just mean the user logs in again.
func (a *App) restoreSession(ctx context.Context) {
	repo := metadata.NewSQLiteRepository(a.db)
	ownerRaw, err := retryx.DoValue(ctx, a.exec, "app.last_owner",
		func(ctx context.Context) ([]byte, error) {
			return repo.Get(ctx, "last_owner_"+a.tabID)
		})
	if err != nil || ownerRaw == nil {
		return
	}

	s, err := a.sess.Restore(ctx, string(ownerRaw), a.tabID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			a.log.Warn(ctx, "session restore failed", "error", err)
		}
		return
	}
	a.current = s
	fmt.Printf("Restored session for %s\n", s.OwnerID)
}

func (a *App) rememberOwner(ctx context.Context, ownerID string) {
	err := a.exec.Do(ctx, "app.remember_owner", func(ctx context.Context) error {
		return metadata.NewSQLiteRepository(a.db).Set(ctx, "last_owner_"+a.tabID, []byte(ownerID))
	})
	if err != nil {
		a.log.Warn(ctx, "remembering session owner failed", "error", err)
	}
}
