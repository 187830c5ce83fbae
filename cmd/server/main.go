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

	"github.com/ErlanBelekov/voice-scheduler/config"
	"github.com/ErlanBelekov/voice-scheduler/internal/ai"
	"github.com/ErlanBelekov/voice-scheduler/internal/email"
	"github.com/ErlanBelekov/voice-scheduler/internal/health"
	"github.com/ErlanBelekov/voice-scheduler/internal/infrastructure/archive"
	"github.com/ErlanBelekov/voice-scheduler/internal/infrastructure/bus"
	"github.com/ErlanBelekov/voice-scheduler/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/voice-scheduler/internal/log"
	"github.com/ErlanBelekov/voice-scheduler/internal/metrics"
	"github.com/ErlanBelekov/voice-scheduler/internal/telemetry"
	"github.com/ErlanBelekov/voice-scheduler/internal/token"
	httptransport "github.com/ErlanBelekov/voice-scheduler/internal/transport/http"
	"github.com/ErlanBelekov/voice-scheduler/internal/transport/http/handler"
	"github.com/ErlanBelekov/voice-scheduler/internal/transport/http/middleware"
	"github.com/ErlanBelekov/voice-scheduler/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type archiver interface {
	Archive(ctx context.Context, userID int64, filename string, audio []byte) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := ctxlog.New(os.Stdout, cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "voice-scheduler-api", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL,
		postgres.WithMaxConns(cfg.DBMaxConns),
		postgres.WithApplicationName("voice-scheduler-api"),
	)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		logger.Info("migrations applied")
	}

	deps := []health.Dependency{{Name: "postgres", Pinger: pool}}

	// Auth
	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	deviceRepo := postgres.NewDeviceRepository(pool)

	tokens, err := token.NewService([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	authUsecase := usecase.NewAuthUsecase(userRepo, sessionRepo, deviceRepo, tokens, sender, cfg.AppBaseURL, logger)
	authHandler := handler.NewAuthHandler(authUsecase, logger)

	// Appointments
	aiClient := ai.NewHTTPClient(cfg.OpenAITimeout)
	transcriber := ai.NewTranscriber(aiClient, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey)
	extractor := ai.NewExtractor(aiClient, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey)

	var audio archiver
	if cfg.S3Endpoint != "" {
		a, err := archive.NewS3Archive(ctx, archive.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
		if err != nil {
			log.Fatalf("s3: %v", err)
		}
		audio = a
		logger.Info("audio archiving enabled", "bucket", cfg.S3Bucket)
	}

	var events publisher = bus.NewLogPublisher(logger)
	if cfg.NATSURL != "" {
		b, err := bus.New(cfg.NATSURL, logger)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer b.Close()
		events = b
		deps = append(deps, health.Dependency{Name: "nats", Pinger: b, Optional: true})
	}

	appointmentUsecase := usecase.NewAppointmentUsecase(
		postgres.NewAppointmentRepository(pool), transcriber, extractor, audio, events, logger,
	)
	appointmentHandler := handler.NewAppointmentHandler(appointmentUsecase, cfg.MaxUploadBytes, logger)

	limiter := middleware.NewRateLimiter(ctx, cfg.AuthRateLimitRPS, cfg.AuthRateLimitBurst)

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer, deps...)

	router := httptransport.NewRouter(logger, httptransport.Handlers{
		Auth:         authHandler,
		Appointments: appointmentHandler,
	}, tokens, limiter)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "voice-scheduler-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", "error", err)
	}
}
