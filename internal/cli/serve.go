package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/backend"
	"github.com/smart-pulse-M1-GI/frontend/internal/journal"
	"github.com/smart-pulse-M1-GI/frontend/internal/realtime"
	"github.com/smart-pulse-M1-GI/frontend/internal/store"
	"github.com/smart-pulse-M1-GI/frontend/internal/stream"
	"github.com/smart-pulse-M1-GI/frontend/internal/vitals"
	"github.com/smart-pulse-M1-GI/frontend/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard gateway",
	Long: `Serve the dashboard: REST endpoints proxied to the monitoring backend,
live patient screens on /ws and the doctor roster on /ws/roster.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, level, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings := watcher.NewSettings(cfg, level, log)
	if cfgPath != "" {
		cfgWatch := watcher.New(log, settings.Apply)
		if err := cfgWatch.Watch(cfgPath); err != nil {
			log.Warn("Configuration hot reload disabled", zap.Error(err))
		}
		defer cfgWatch.Shutdown()
	}

	opts := realtime.Options{
		Backend: backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log),
		NewFeed: func(token string) (stream.Feed, error) {
			return stream.NewFeed(cfg.Stream, token, log)
		},
		WindowCapacity:     cfg.Window.Capacity,
		DefaultThresholds:  vitals.Thresholds{Min: cfg.Thresholds.DefaultMin, Max: cfg.Thresholds.DefaultMax},
		WarningBand:        settings.WarningBand,
		ReconnectDelay:     cfg.Stream.ReconnectDelay,
		NotificationsEvery: cfg.Refresh.Notifications,
		RosterEvery:        cfg.Refresh.Roster,
		StaticDir:          cfg.Server.StaticDir,
		Logger:             log,
	}

	if cfg.Journal.Path != "" {
		repo, err := journal.Open(cfg.Journal.Path, log)
		if err != nil {
			log.Warn("Session journal disabled", zap.Error(err))
		} else {
			defer repo.Close()
			opts.Journal = repo
		}
	}

	if cfg.Redis.Addr != "" {
		client, err := store.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("Live snapshot cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			opts.Live = store.NewLiveCache(client, cfg.Redis.TTL, log)
		}
	}

	server := realtime.New(opts)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Handler(),
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		log.Info("Shutting down...")
		// Screens stop their sessions before the journal and cache close.
		server.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("Smart Pulse gateway running",
		zap.String("addr", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("stream_transport", cfg.Stream.Transport),
	)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	<-shutdownDone
	return nil
}
