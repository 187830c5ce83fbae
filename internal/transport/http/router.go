package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/voice-scheduler/internal/token"
	"github.com/ErlanBelekov/voice-scheduler/internal/transport/http/handler"
	"github.com/ErlanBelekov/voice-scheduler/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

type Handlers struct {
	Auth         *handler.AuthHandler
	Appointments *handler.AppointmentHandler
}

// NewRouter mounts the public auth routes and the bearer-protected
// appointment routes. limiter may be nil to disable auth rate limiting.
func NewRouter(logger *slog.Logger, h Handlers, tokens *token.Service, limiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Security())
	r.Use(sloggin.NewWithConfig(logger, sloggin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
	}))
	r.Use(middleware.Metrics())

	auth := r.Group("/auth")
	if limiter != nil {
		auth.Use(middleware.RateLimit(limiter))
	}
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/logout", h.Auth.Logout)
	auth.POST("/verify-email", h.Auth.VerifyEmail)
	auth.POST("/forgot-password", h.Auth.ForgotPassword)
	auth.POST("/reset-password", h.Auth.ResetPassword)

	protected := r.Group("", middleware.Auth(tokens))
	protected.POST("/UploadAudio", h.Appointments.Upload)
	protected.POST("/ConfirmAppointment", h.Appointments.Confirm)
	protected.GET("/appointments", h.Appointments.List)

	return r
}
