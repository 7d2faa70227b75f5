package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/mediadesk/config"
	"github.com/bnema/mediadesk/internal/adapter/backend"
	HTTPAdapter "github.com/bnema/mediadesk/internal/adapter/http"
	"github.com/bnema/mediadesk/internal/adapter/storage/jsonfile"
	redisstore "github.com/bnema/mediadesk/internal/adapter/storage/redis"
	sqlitestore "github.com/bnema/mediadesk/internal/adapter/storage/sqlite"
	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/infrastructure/logger"
	"github.com/bnema/mediadesk/internal/port"
	"github.com/bnema/mediadesk/internal/service"
)

func main() {
	if err := run(); err != nil {
		log := logger.Base()
		log.Fatal().Err(err).Msg("mediadesk stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Configure(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logger.WithComponent("main")
	log.Info().Int("port", cfg.Port).Str("domain", cfg.Domain).Str("backend", cfg.Backend.BaseURL).Msg("starting mediadesk")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlitestore.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	prefStore, closePrefs, err := openPreferences(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer closePrefs()

	client := backend.NewClient(cfg.Backend)
	eventBus := service.NewEventBus()

	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	defer monitorCancel()
	monitor := service.NewJobMonitor(client, eventBus, cfg.Backend.PollInterval)
	monitor.Start(monitorCtx)

	server := HTTPAdapter.NewServer(HTTPAdapter.Deps{
		Auth:        service.NewAuthService(store, cfg.AuthSecret),
		Submissions: service.NewSubmissionService(client, store, monitor),
		Metadata:    service.NewMetadataService(client),
		Preferences: service.NewPreferenceService(prefStore),
		Backend:     client,
		History:     store,
		Jobs:        monitor,
		Events:      eventBus,
	}, HTTPAdapter.Options{
		AuthSecret:      cfg.AuthSecret,
		MaxUploadSizeMB: cfg.MaxUploadSizeMB,
		BehindProxy:     cfg.BehindProxy,
		Voices:          domain.BuiltinVoices,
	})
	go server.Run(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Minute,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: event streams stay open for the life of a job page.
		// Request contexts derive from ctx so those streams end on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	monitorCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	monitor.Wait()

	log.Info().Msg("shutdown complete")
	return nil
}

// openPreferences selects the preference backend named in the config. The
// returned func releases it.
func openPreferences(ctx context.Context, cfg *config.Config, store *sqlitestore.Store) (port.PreferenceStore, func(), error) {
	noop := func() {}
	switch cfg.PreferenceBackend {
	case "redis":
		rs, err := redisstore.NewStore(ctx, cfg.Redis)
		if err != nil {
			return nil, noop, fmt.Errorf("open redis preferences: %w", err)
		}
		return rs, func() { _ = rs.Close() }, nil
	case "jsonfile":
		js, err := jsonfile.NewStore(cfg.DataDir)
		if err != nil {
			return nil, noop, fmt.Errorf("open preference file: %w", err)
		}
		return js, noop, nil
	case "memory":
		return jsonfile.NewMemoryStore(), noop, nil
	default:
		return store, noop, nil
	}
}
