package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/ErlanBelekov/voice-scheduler/internal/usecase"
	"github.com/gin-gonic/gin"
)

// authUsecaser is the subset of AuthUsecase the handler needs.
// Defined here (point of use) so tests can inject a fake.
type authUsecaser interface {
	Register(ctx context.Context, in usecase.RegisterInput) (*domain.TokenPair, error)
	Login(ctx context.Context, in usecase.LoginInput) (*usecase.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Logout(ctx context.Context, userID int64, refreshToken string) error
	VerifyEmail(ctx context.Context, token string) (bool, error)
	RequestPasswordReset(ctx context.Context, email string) (bool, error)
	ResetPassword(ctx context.Context, token, newPassword string) (bool, error)
}

type AuthHandler struct {
	authUsecase authUsecaser
	logger      *slog.Logger
}

func NewAuthHandler(authUsecase authUsecaser, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authUsecase: authUsecase,
		logger:      logger.With("component", "auth_handler"),
	}
}

type registerRequest struct {
	Email     string  `json:"email"     binding:"required,email,max=320"`
	Password  string  `json:"password"  binding:"required,min=1,max=1024"`
	FirstName *string `json:"firstName" binding:"omitempty,max=100"`
	LastName  *string `json:"lastName"  binding:"omitempty,max=100"`
}

type loginRequest struct {
	Email       string `json:"email"       binding:"required"`
	Password    string `json:"password"    binding:"required"`
	DeviceToken string `json:"deviceToken" binding:"max=512"`
	Platform    string `json:"platform"    binding:"max=32"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type logoutRequest struct {
	UserID       int64  `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"       binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,max=1024"`
}

type tokenResponse struct {
	Message      string `json:"message,omitempty"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	UserID       int64  `json:"userId,omitempty"`
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": errInvalidRequest})
		return
	}

	pair, err := h.authUsecase.Register(c.Request.Context(), usecase.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"message": msgDuplicateEmail})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "register", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"message": msgRegistrationFailed})
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		Message:      msgRegistered,
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": errInvalidRequest})
		return
	}

	res, err := h.authUsecase.Login(c.Request.Context(), usecase.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		DeviceToken: req.DeviceToken,
		Platform:    req.Platform,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			h.logger.ErrorContext(c.Request.Context(), "login", "error", err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"message": msgInvalidCredentials})
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		Message:      msgLoggedIn,
		Token:        res.AccessToken,
		RefreshToken: res.RefreshToken,
		UserID:       res.UserID,
	})
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": msgInvalidRefresh})
		return
	}

	pair, err := h.authUsecase.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
			h.logger.ErrorContext(c.Request.Context(), "refresh", "error", err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"message": msgInvalidRefresh})
		return
	}

	c.JSON(http.StatusOK, tokenResponse{Token: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// POST /auth/logout
// Succeeds whether or not the session exists.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": errInvalidRequest})
		return
	}

	if req.RefreshToken != "" {
		if err := h.authUsecase.Logout(c.Request.Context(), req.UserID, req.RefreshToken); err != nil {
			h.logger.ErrorContext(c.Request.Context(), "logout", "user_id", req.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": errInternalServer})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": msgLoggedOut})
}

// POST /auth/verify-email?token=<token>
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	ok, err := h.authUsecase.VerifyEmail(c.Request.Context(), c.Query("token"))
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "verify email", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": errInternalServer})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidVerifyToken})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgEmailVerified})
}

// POST /auth/forgot-password
// Always returns 200 to avoid revealing whether the email exists.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": errInvalidRequest})
		return
	}

	if _, err := h.authUsecase.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.logger.ErrorContext(c.Request.Context(), "request password reset", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": msgResetEmailSent})
}

// POST /auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": errInvalidRequest})
		return
	}

	ok, err := h.authUsecase.ResetPassword(c.Request.Context(), req.Token, req.NewPassword)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "reset password", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": errInternalServer})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidResetToken})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgPasswordReset})
}
