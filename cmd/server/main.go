package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/config"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/events"
	v1 "github.com/dmehra2102/prod-golang-projects/lifeline/internal/handler/v1"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/notify"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/service"
	"github.com/dmehra2102/prod-golang-projects/lifeline/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/lifeline/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/lifeline/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/lifeline/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/lifeline/pkg/tracer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting lifeline",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := tracer.Init(cfg.Tracing)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db, log); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	m := metrics.NewCollector(cfg.App.Name)

	var bus events.Bus
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		bus = events.NewRedisBus(client, log, m)
		log.Info("event bus ready", zap.String("transport", "redis"), zap.String("addr", cfg.Redis.Addr))
	} else {
		bus = events.NewMemoryBus(log, m)
		log.Info("event bus ready", zap.String("transport", "memory"))
	}
	defer func() { _ = bus.Close() }()

	emergencyRepo := repository.NewEmergencyRepository(db)
	responderRepo := repository.NewResponderRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	auditSvc := service.NewAuditService(auditRepo, log, m)
	defer auditSvc.Shutdown()

	dispatcher := service.NewDispatcher(notify.NewLogSender(log), emergencyRepo, cfg.Notify, log, m)
	defer dispatcher.Shutdown()

	emergencySvc := service.NewEmergencyService(emergencyRepo, responderRepo, bus, dispatcher, auditSvc, log, m)

	jwtManager := auth.NewJWTManager(cfg.JWT)

	router := v1.NewRouter(v1.RouterDeps{
		Emergency:  v1.NewEmergencyHandler(emergencySvc),
		WS:         v1.NewWSHandler(bus, log),
		JWTManager: jwtManager,
		Metrics:    m,
		Log:        log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
