package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	graphadapter "github.com/ericfisherdev/insightpanel/internal/adapter/driven/graph"
	sqliteadapter "github.com/ericfisherdev/insightpanel/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/insightpanel/internal/adapter/driven/tokenfile"
	httphandler "github.com/ericfisherdev/insightpanel/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/insightpanel/internal/adapter/driving/web"
	"github.com/ericfisherdev/insightpanel/internal/application"
	"github.com/ericfisherdev/insightpanel/internal/config"
	"github.com/ericfisherdev/insightpanel/internal/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on a missing or short secret).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"graph_version", cfg.GraphVersion,
		"basic_auth", cfg.BasicAuthEnabled(),
		"token_exchange", cfg.CanExchangeTokens(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the encrypted token store, creating an empty one on first run.
	key, err := tokenfile.DeriveKey(cfg.SecretKey)
	if err != nil {
		return err
	}
	credentialStore, err := tokenfile.New(cfg.TokenFilePath(), key, logger)
	if err != nil {
		return err
	}
	if err := credentialStore.EnsureExists(ctx); err != nil {
		return err
	}
	slog.Info("token store ready", "path", credentialStore.Path())

	// 4. Open snapshot database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 5. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 6. Wire adapters and services.
	snapshotStore := sqliteadapter.NewSnapshotRepo(db)
	graphClient := graphadapter.NewClient(graphadapter.Options{
		Version:           cfg.GraphVersion,
		AppID:             cfg.MetaAppID,
		AppSecret:         cfg.MetaAppSecret,
		RequestsPerSecond: cfg.GraphRequestsPerSecond,
	})

	tokenSvc := application.NewTokenService(credentialStore, snapshotStore)
	insightSvc := application.NewInsightService(tokenSvc, graphClient)

	// 7. Create and start poll service.
	pollSvc := application.NewPollService(tokenSvc, insightSvc, snapshotStore, cfg.PollInterval)
	go pollSvc.Start(ctx)

	// 8. Register API, metrics and dashboard routes.
	mux := http.NewServeMux()
	apiHandler := httphandler.NewHandler(tokenSvc, insightSvc, pollSvc, snapshotStore, graphClient, logger)
	httphandler.RegisterAPIRoutes(mux, apiHandler)

	metrics := httphandler.NewMetrics()
	httphandler.RegisterMetricsRoute(mux, metrics)

	webHandler := webhandler.NewHandler(tokenSvc, pollSvc, snapshotStore, logger)
	webhandler.RegisterRoutes(mux, webHandler)

	// Apply middleware.
	handler := httphandler.ApplyMiddleware(mux, logger, httphandler.MiddlewareOptions{
		AdminUser: cfg.AdminUser,
		AdminPass: cfg.AdminPass,
		Metrics:   metrics,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Exports fan out one Graph call per post.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	// 9. Log startup complete.
	slog.Info("insightpanel started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
	)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 11. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
