package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/callforge/callforge/internal/api"
	"github.com/callforge/callforge/internal/automation"
	"github.com/callforge/callforge/internal/config"
	"github.com/callforge/callforge/internal/database"
	"github.com/callforge/callforge/internal/database/pgstore"
	"github.com/callforge/callforge/internal/engine"
	"github.com/callforge/callforge/internal/metrics"
	"github.com/callforge/callforge/internal/reconcile"
	"github.com/callforge/callforge/internal/session"
	"github.com/callforge/callforge/internal/telnyx"
	"github.com/callforge/callforge/internal/timing"
)

// stores bundles the persistence gateways so the rest of main does not
// care which backend produced them.
type stores struct {
	callLogs   database.CallLogRepository
	settings   database.AutomationSettingsRepository
	voicemails database.VoicemailRepository
	drops      database.VoicemailDropRepository
	templates  database.SMSTemplateRepository
	smsLogs    database.SMSLogRepository
	callbacks  database.ScheduledCallbackRepository
	prospects  database.ProspectRepository
	close      func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("starting callforge",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"provider_configured", cfg.ProviderConfigured(),
	)

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Open durable storage and run migrations.
	st, err := openStores(appCtx, cfg)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer st.close()

	// Session registry, in-process by default or Redis when configured.
	sessionStore, err := openSessionStore(appCtx, cfg)
	if err != nil {
		slog.Error("failed to open session store", "error", err)
		os.Exit(1)
	}

	clock := timing.System()
	registry := session.NewRegistry(sessionStore, clock, logger)

	// Provider client for call-control commands and SMS.
	control := telnyx.NewClient(cfg.TelnyxAPIURL, cfg.TelnyxAPIKey, logger)

	// Recording artifact reconciliation.
	reconciler := reconcile.New(st.callLogs, clock, logger)

	// Machine-detection automation.
	orchestrator := automation.New(automation.Stores{
		Settings:   st.settings,
		Voicemails: st.voicemails,
		Drops:      st.drops,
		Templates:  st.templates,
		SMSLogs:    st.smsLogs,
		Callbacks:  st.callbacks,
		Prospects:  st.prospects,
	}, control, clock, logger)

	dispatcher := engine.NewDispatcher(registry, reconciler, orchestrator, control, st.callLogs, logger)

	collector := metrics.NewCollector(registry, reconciler, st.callLogs, st.drops, time.Now())

	// HTTP server using the api package.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      api.NewServer(cfg, dispatcher, registry, reconciler, st.callLogs, collector, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down server")

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("callforge stopped")
}

// openStores opens PostgreSQL when a DSN is configured, otherwise the
// embedded SQLite database in the data directory.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.PostgresDSN != "" {
		pg, err := pgstore.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgresql store: %w", err)
		}
		slog.Info("using postgresql storage")
		return &stores{
			callLogs:   pgstore.NewCallLogRepository(pg),
			settings:   pgstore.NewAutomationSettingsRepository(pg),
			voicemails: pgstore.NewVoicemailRepository(pg),
			drops:      pgstore.NewVoicemailDropRepository(pg),
			templates:  pgstore.NewSMSTemplateRepository(pg),
			smsLogs:    pgstore.NewSMSLogRepository(pg),
			callbacks:  pgstore.NewScheduledCallbackRepository(pg),
			prospects:  pgstore.NewProspectRepository(pg),
			close:      pg.Close,
		}, nil
	}

	db, err := database.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	slog.Info("using sqlite storage", "data_dir", cfg.DataDir)
	return &stores{
		callLogs:   database.NewCallLogRepository(db),
		settings:   database.NewAutomationSettingsRepository(db),
		voicemails: database.NewVoicemailRepository(db),
		drops:      database.NewVoicemailDropRepository(db),
		templates:  database.NewSMSTemplateRepository(db),
		smsLogs:    database.NewSMSLogRepository(db),
		callbacks:  database.NewScheduledCallbackRepository(db),
		prospects:  database.NewProspectRepository(db),
		close:      func() { db.Close() },
	}, nil
}

// openSessionStore returns a Redis-backed session store when an address
// is configured, otherwise the in-process map.
func openSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	if cfg.RedisAddr == "" {
		slog.Info("using in-process session store")
		return session.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	slog.Info("using redis session store", "addr", cfg.RedisAddr)
	return session.NewRedisStore(client), nil
}
