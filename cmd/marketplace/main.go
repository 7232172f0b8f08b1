package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/carbonx/marketplace/internal/compliance"
	"github.com/carbonx/marketplace/internal/config"
	"github.com/carbonx/marketplace/internal/engine"
	"github.com/carbonx/marketplace/internal/events"
	"github.com/carbonx/marketplace/internal/handler"
	"github.com/carbonx/marketplace/internal/notify"
	"github.com/carbonx/marketplace/internal/service"
	"github.com/carbonx/marketplace/internal/settlement"
	"github.com/carbonx/marketplace/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store: Postgres when configured, in-memory otherwise.
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		st = pg
		logger.Info("using postgres store")
	} else {
		st = store.NewMemoryStore()
		logger.Info("using in-memory store")
	}

	// Event publisher: Redis pub/sub when configured.
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RedisAddr != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("failed to connect to redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer client.Close()
		publisher = events.NewRedisPublisher(client)
		logger.Info("using redis event publisher", slog.String("addr", cfg.RedisAddr))
	}

	// Compliance sink: external endpoint when configured, logs otherwise.
	var sink compliance.Sink = compliance.NewLogSink(logger)
	if cfg.ComplianceSinkURL != "" {
		sink = compliance.NewHTTPSink(cfg.ComplianceSinkURL, cfg.NotifyTimeout)
		logger.Info("using http compliance sink")
	}

	reporter := compliance.NewReporter(st, sink, logger)
	dispatcher := notify.NewWebhookDispatcher(cfg.NotifyTimeout, logger)
	effects := service.NewMatchEffects(st, reporter, publisher, dispatcher, logger)

	// Engine and settlement gate.
	matcher := engine.NewMatcher(st, effects, logger)
	gate := settlement.NewGate(st, publisher, logger)

	// Services.
	partySvc := service.NewPartyService(st)
	auctionSvc := service.NewAuctionService(st, gate)
	bidSvc := service.NewBidService(st, matcher, logger)

	// Router.
	router := handler.NewRouter(partySvc, auctionSvc, bidSvc, logger)

	// Start reallocation sweep with cancellable context.
	realloc := engine.NewReallocationManager(cfg.ReallocationInterval, matcher, st, logger)
	realloc.Start(ctx)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, cancel context (stops sweep).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}
