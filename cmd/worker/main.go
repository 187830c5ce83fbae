package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/config"
	"github.com/ErlanBelekov/voice-scheduler/internal/email"
	"github.com/ErlanBelekov/voice-scheduler/internal/health"
	"github.com/ErlanBelekov/voice-scheduler/internal/infrastructure/bus"
	"github.com/ErlanBelekov/voice-scheduler/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/voice-scheduler/internal/janitor"
	ctxlog "github.com/ErlanBelekov/voice-scheduler/internal/log"
	"github.com/ErlanBelekov/voice-scheduler/internal/metrics"
	"github.com/ErlanBelekov/voice-scheduler/internal/notifier"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := ctxlog.New(os.Stdout, cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL,
		postgres.WithMaxConns(cfg.DBMaxConns),
		postgres.WithApplicationName("voice-scheduler-worker"),
	)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	deps := []health.Dependency{{Name: "postgres", Pinger: pool}}

	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)

	var wg sync.WaitGroup

	j := janitor.New(sessionRepo, userRepo, cfg.SessionRetention, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := j.Start(ctx, cfg.SessionPurgeCron); err != nil {
			logger.Error("janitor", "error", err)
			stop()
		}
	}()

	if cfg.NATSURL != "" {
		b, err := bus.New(cfg.NATSURL, logger)
		if err != nil {
			stop()
			log.Fatalf("nats: %v", err)
		}
		defer b.Close()
		deps = append(deps, health.Dependency{Name: "nats", Pinger: b})

		sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
		n := notifier.New(userRepo, sender, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.Start(ctx, b); err != nil {
				logger.Error("notifier", "error", err)
				stop()
			}
		}()
	} else {
		logger.Warn("NATS_URL not set, confirmation emails disabled")
	}

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer, deps...)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("worker shut down")
}
