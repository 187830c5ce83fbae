package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/ErlanBelekov/voice-scheduler/internal/email"
	"github.com/ErlanBelekov/voice-scheduler/internal/metrics"
	"github.com/ErlanBelekov/voice-scheduler/internal/password"
	"github.com/ErlanBelekov/voice-scheduler/internal/repository"
	"github.com/ErlanBelekov/voice-scheduler/internal/token"
)

// tokenIssuer is the part of token.Service the auth flows need.
type tokenIssuer interface {
	IssueAccessToken(u *domain.User) (string, error)
	IssueRefreshToken() (string, error)
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName *string
	LastName  *string
}

type LoginInput struct {
	Email       string
	Password    string
	DeviceToken string
	Platform    string
}

type LoginResult struct {
	domain.TokenPair
	UserID int64
}

type AuthUsecase struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	devices  repository.DeviceRepository
	tokens   tokenIssuer
	email    email.Sender
	baseURL  string
	logger   *slog.Logger
	now      func() time.Time

	// compared against when the email is unknown so both paths do the same work
	dummyHash []byte
	dummySalt []byte
}

func NewAuthUsecase(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	devices repository.DeviceRepository,
	tokens tokenIssuer,
	sender email.Sender,
	baseURL string,
	logger *slog.Logger,
) *AuthUsecase {
	hash, salt, err := password.Hash("dummy password for unknown users")
	if err != nil {
		// crypto/rand failing at startup leaves nothing sensible to do
		panic(err)
	}
	return &AuthUsecase{
		users:     users,
		sessions:  sessions,
		devices:   devices,
		tokens:    tokens,
		email:     sender,
		baseURL:   baseURL,
		logger:    logger.With("component", "auth_usecase"),
		now:       time.Now,
		dummyHash: hash,
		dummySalt: salt,
	}
}

// Register creates an unverified user together with its first session.
func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (*domain.TokenPair, error) {
	exists, err := u.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, u.registrationFailed(err)
	}
	if exists {
		metrics.AuthEventsTotal.WithLabelValues("register", "duplicate").Inc()
		return nil, domain.ErrDuplicateEmail
	}

	hash, salt, err := password.Hash(in.Password)
	if err != nil {
		return nil, u.registrationFailed(err)
	}
	verification, err := token.RandomToken()
	if err != nil {
		return nil, u.registrationFailed(err)
	}
	refresh, err := u.tokens.IssueRefreshToken()
	if err != nil {
		return nil, u.registrationFailed(err)
	}

	user := &domain.User{
		Email:                  in.Email,
		PasswordHash:           hash,
		PasswordSalt:           salt,
		FirstName:              in.FirstName,
		LastName:               in.LastName,
		EmailVerificationToken: &verification,
	}
	session := &domain.Session{
		RefreshToken: refresh,
		ExpiresAt:    u.now().Add(domain.SessionTTL),
	}

	created, err := u.users.Create(ctx, user, session)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			metrics.AuthEventsTotal.WithLabelValues("register", "duplicate").Inc()
			return nil, domain.ErrDuplicateEmail
		}
		return nil, u.registrationFailed(err)
	}

	access, err := u.tokens.IssueAccessToken(created)
	if err != nil {
		return nil, u.registrationFailed(err)
	}

	msg := email.Verification(u.baseURL, verification)
	if err := u.email.Send(ctx, created.Email, msg); err != nil {
		u.logger.WarnContext(ctx, "send verification email", "user_id", created.ID, "error", err)
	}

	metrics.AuthEventsTotal.WithLabelValues("register", "success").Inc()
	u.logger.InfoContext(ctx, "user registered", "user_id", created.ID)
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (u *AuthUsecase) registrationFailed(err error) error {
	metrics.AuthEventsTotal.WithLabelValues("register", "error").Inc()
	return fmt.Errorf("%w: %w", domain.ErrRegistrationFailed, err)
}

// Login checks credentials, records the device when both device token and
// platform are given, and opens a new session.
func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	user, err := u.users.FindByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		password.Verify(in.Password, u.dummyHash, u.dummySalt)
		metrics.AuthEventsTotal.WithLabelValues("login", "invalid").Inc()
		return nil, domain.ErrInvalidCredentials
	}
	if !password.Verify(in.Password, user.PasswordHash, user.PasswordSalt) {
		metrics.AuthEventsTotal.WithLabelValues("login", "invalid").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	now := u.now()
	if in.DeviceToken != "" && in.Platform != "" {
		if err := u.touchDevice(ctx, user.ID, in.DeviceToken, in.Platform, now); err != nil {
			u.logger.WarnContext(ctx, "register device", "user_id", user.ID, "error", err)
		}
	}

	pair, err := u.openSession(ctx, user, now)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// The password changed between the read and the write.
			metrics.AuthEventsTotal.WithLabelValues("login", "invalid").Inc()
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	metrics.AuthEventsTotal.WithLabelValues("login", "success").Inc()
	return &LoginResult{TokenPair: *pair, UserID: user.ID}, nil
}

func (u *AuthUsecase) touchDevice(ctx context.Context, userID int64, deviceToken, platform string, now time.Time) error {
	d, err := u.devices.Get(ctx, userID, deviceToken)
	switch {
	case err == nil:
		d.LastActiveAt = now
		d.Platform = platform
		return u.devices.Update(ctx, d)
	case errors.Is(err, domain.ErrDeviceNotFound):
		_, err = u.devices.Create(ctx, &domain.Device{
			UserID:       userID,
			DeviceToken:  deviceToken,
			Platform:     platform,
			LastActiveAt: now,
		})
		return err
	default:
		return err
	}
}

// openSession records the login and creates the session against the
// password hash the caller verified.
func (u *AuthUsecase) openSession(ctx context.Context, user *domain.User, now time.Time) (*domain.TokenPair, error) {
	refresh, err := u.tokens.IssueRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := u.users.RecordLogin(ctx, user.ID, user.PasswordHash, now, &domain.Session{
		UserID:       user.ID,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(domain.SessionTTL),
	}); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	user.LastLoginAt = &now
	access, err := u.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates the presented refresh token. The store revokes the old
// session and creates the new one atomically, so a token works at most once.
func (u *AuthUsecase) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, domain.ErrInvalidOrExpiredToken
	}

	next, err := u.tokens.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	now := u.now()
	created, err := u.sessions.Rotate(ctx, refreshToken, now, &domain.Session{
		RefreshToken: next,
		ExpiresAt:    now.Add(domain.SessionTTL),
	})
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			metrics.AuthEventsTotal.WithLabelValues("refresh", "invalid").Inc()
			return nil, domain.ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("rotate session: %w", err)
	}

	user, err := u.users.FindByID(ctx, created.UserID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	access, err := u.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	metrics.AuthEventsTotal.WithLabelValues("refresh", "success").Inc()
	return &domain.TokenPair{AccessToken: access, RefreshToken: created.RefreshToken}, nil
}

// Logout revokes the session if there is one. Unknown or already revoked
// sessions are not an error.
func (u *AuthUsecase) Logout(ctx context.Context, userID int64, refreshToken string) error {
	s, err := u.sessions.GetByUserAndToken(ctx, userID, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("find session: %w", err)
	}
	if s.RevokedAt != nil {
		return nil
	}

	now := u.now()
	s.RevokedAt = &now
	if err := u.sessions.Update(ctx, s); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	metrics.AuthEventsTotal.WithLabelValues("logout", "success").Inc()
	return nil
}

// VerifyEmail returns false, not an error, for unknown tokens.
func (u *AuthUsecase) VerifyEmail(ctx context.Context, verificationToken string) (bool, error) {
	if verificationToken == "" {
		return false, nil
	}
	ok, err := u.users.ConsumeVerificationToken(ctx, verificationToken)
	if err != nil {
		return false, fmt.Errorf("mark email verified: %w", err)
	}
	return ok, nil
}

// RequestPasswordReset returns false, not an error, for unknown emails.
func (u *AuthUsecase) RequestPasswordReset(ctx context.Context, emailAddr string) (bool, error) {
	user, err := u.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find user: %w", err)
	}

	resetToken, err := token.RandomToken()
	if err != nil {
		return false, err
	}
	expires := u.now().Add(domain.PasswordResetTTL)
	if err := u.users.SetPasswordResetToken(ctx, user.ID, resetToken, expires); err != nil {
		return false, fmt.Errorf("store reset token: %w", err)
	}

	msg := email.PasswordReset(u.baseURL, resetToken, domain.PasswordResetTTL)
	if err := u.email.Send(ctx, user.Email, msg); err != nil {
		u.logger.WarnContext(ctx, "send password reset email", "user_id", user.ID, "error", err)
	}
	u.logger.InfoContext(ctx, "password reset requested", "user_id", user.ID)
	return true, nil
}

// ResetPassword consumes an unexpired reset token and signs the user out
// everywhere.
func (u *AuthUsecase) ResetPassword(ctx context.Context, resetToken, newPassword string) (bool, error) {
	if resetToken == "" {
		return false, nil
	}
	hash, salt, err := password.Hash(newPassword)
	if err != nil {
		return false, err
	}
	now := u.now()
	user, err := u.users.ConsumePasswordResetToken(ctx, resetToken, now, hash, salt)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("store new password: %w", err)
	}

	if n, err := u.sessions.RevokeAllForUser(ctx, user.ID, now); err != nil {
		u.logger.WarnContext(ctx, "revoke sessions after reset", "user_id", user.ID, "error", err)
	} else if n > 0 {
		u.logger.InfoContext(ctx, "revoked sessions after reset", "user_id", user.ID, "count", n)
	}
	return true, nil
}
