package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"8080"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	DatabaseURL    string `env:"DATABASE_URL,required" validate:"required"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`
	DBMaxConns     int32  `env:"DB_MAX_CONNS"     envDefault:"25" validate:"min=1"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret   string `env:"JWT_SECRET,required" validate:"required,min=32"`
	JWTIssuer   string `env:"JWT_ISSUER"   envDefault:"voice-scheduler"     validate:"required"`
	JWTAudience string `env:"JWT_AUDIENCE" envDefault:"voice-scheduler-app" validate:"required"`

	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"  validate:"required_if=Env production,required_if=Env staging"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com" validate:"required,url"`
	OpenAITimeout time.Duration `env:"OPENAI_TIMEOUT"  envDefault:"60s" validate:"min=1s"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`
	AppBaseURL   string `env:"APP_BASE_URL"   envDefault:"http://localhost:8080"`

	// Audio archiving is disabled when S3Endpoint is empty.
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Bucket    string `env:"S3_BUCKET"     validate:"required_with=S3Endpoint"`
	S3AccessKey string `env:"S3_ACCESS_KEY" validate:"required_with=S3Endpoint"`
	S3SecretKey string `env:"S3_SECRET_KEY" validate:"required_with=S3Endpoint"`
	S3Region    string `env:"S3_REGION"     envDefault:"us-east-1"`

	NATSURL      string `env:"NATS_URL"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	AuthRateLimitRPS   float64 `env:"AUTH_RATE_LIMIT_RPS"   envDefault:"5"  validate:"gt=0"`
	AuthRateLimitBurst int     `env:"AUTH_RATE_LIMIT_BURST" envDefault:"10" validate:"min=1"`

	SessionPurgeCron string        `env:"SESSION_PURGE_CRON" envDefault:"@every 1h" validate:"required,cronexpr"`
	SessionRetention time.Duration `env:"SESSION_RETENTION"  envDefault:"168h"`

	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"26214400" validate:"min=1024"`
}

func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	v := validator.New()
	if err := v.RegisterValidation("cronexpr", validCron); err != nil {
		return nil, fmt.Errorf("register validation: %w", err)
	}
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel maps LOG_LEVEL onto slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func validCron(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}
