package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/habitsync/internal/api"
	"example.com/habitsync/internal/app"
	"example.com/habitsync/internal/config"
	"example.com/habitsync/internal/logging"
	httptransport "example.com/habitsync/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to assemble client", zap.Error(err))
	}
	defer client.Close()

	failures := api.NewFailureLog(cfg.FailureBuffer)
	go failures.Run(ctx, client.Coordinator.Failures())

	go func() {
		if err := client.Coordinator.Start(ctx); err != nil {
			logger.Warn("initial load incomplete", zap.Error(err))
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}
	handler := api.NewHandler(client.Coordinator,
		api.WithClock(func() time.Time { return time.Now().In(loc) }),
		api.WithFeed(client.Feed),
		api.WithFailureLog(failures),
		api.WithLogger(logger.Named("api")),
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	guard := api.NewSessionGuard(client.Session)
	guard.Skipper = func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	}

	server := httptransport.NewServer(
		httptransport.DefaultServerConfig(cfg.HTTPAddress, cfg.StoreTimeout),
		api.RequestLogger(logger.Named("http"))(api.CORS(cfg.CORSOrigin)(guard.Wrap(mux))),
	)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("habitsync api listening",
			zap.String("address", cfg.HTTPAddress),
			zap.String("backend", cfg.StoreBackend),
			zap.String("user_id", client.Session.UserID),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-shutdownCh
	logger.Info("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	cancel()
}
