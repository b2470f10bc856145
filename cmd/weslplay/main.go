// Command weslplay serves the WESL playground API: per-session project state,
// debounced compiles through the configured backends, and shareable
// snapshots.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/weslplay/backend"
	"github.com/hazyhaar/weslplay/backend/wesljs"
	"github.com/hazyhaar/weslplay/backend/weslrs"
	"github.com/hazyhaar/weslplay/compile"
	"github.com/hazyhaar/weslplay/dbopen"
	"github.com/hazyhaar/weslplay/internal/config"
	"github.com/hazyhaar/weslplay/localstore"
	"github.com/hazyhaar/weslplay/observability"
	"github.com/hazyhaar/weslplay/schema"
	"github.com/hazyhaar/weslplay/server"
	"github.com/hazyhaar/weslplay/session"
	"github.com/hazyhaar/weslplay/share"
	"github.com/hazyhaar/weslplay/sharestore"
)

func main() {
	configPath := flag.String("config", os.Getenv("WESLPLAY_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("weslplay: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	db, err := dbopen.Open(filepath.Join(cfg.DataDir, "weslplay.db"), dbopen.WithMkdirAll())
	if err != nil {
		return err
	}
	defer db.Close()

	kv, err := openKV(cfg, db)
	if err != nil {
		return err
	}
	defer kv.Close()

	// Snapshot store: remote when configured, embedded otherwise.
	var (
		shareClient share.Client
		shareMount  http.Handler
	)
	if cfg.Share.URL != "" {
		remote, err := share.NewRemote(cfg.Share.URL, cfg.Share.Timeout)
		if err != nil {
			return err
		}
		shareClient = remote
		logger.Info("weslplay: remote snapshot store", "url", remote.URL())
	} else {
		store, err := sharestore.New(sharestore.Config{
			DB:       db,
			MaxBytes: cfg.Share.MaxBytes,
			Logger:   logger,
			OnSave:   metrics.SnapshotSaved,
			OnLoad:   metrics.SnapshotLoaded,
		})
		if err != nil {
			return err
		}
		shareClient = store
		shareMount = store.Handler()
		logger.Info("weslplay: embedded snapshot store", "path", "/share")
	}

	router := backend.NewRouter(backend.WithLogger(logger))
	if err := router.Apply(cfg.Routes()); err != nil {
		// Broken routes leave their backend unavailable; compiles report it.
		logger.Warn("weslplay: backend routes", "error", err)
	}

	sessions := session.NewManager(ctx, kv, session.Deps{
		Router: router,
		Adapters: map[schema.Backend]backend.Adapter{
			schema.BackendRs: weslrs.New(),
			schema.BackendJs: wesljs.New(),
		},
		Share:        shareClient,
		PublicURL:    cfg.PublicURL,
		StoreVersion: cfg.Store.Version,
		Compile: compile.Options{
			Debounce:     cfg.Compile.Debounce,
			DiscardStale: cfg.Compile.DiscardStale,
		},
		Metrics: metrics,
		Logger:  logger,
	})
	defer sessions.CloseAll()

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.New(server.Config{
			Sessions:       sessions,
			ShareStore:     shareMount,
			Metrics:        metrics,
			AllowedOrigins: cfg.AllowedOrigins,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("weslplay: listening", "addr", cfg.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("weslplay: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// openKV opens the per-session store selected by store.driver.
func openKV(cfg *config.Config, db *sql.DB) (localstore.KV, error) {
	if cfg.Store.Driver == "bolt" {
		kv, err := localstore.OpenBolt(filepath.Join(cfg.DataDir, "sessions.bolt"))
		if err != nil {
			return nil, err
		}
		return kv, nil
	}
	kv, err := localstore.NewSQLite(db)
	if err != nil {
		return nil, err
	}
	return kv, nil
}
