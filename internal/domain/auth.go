package domain

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrDeviceNotFound        = errors.New("device not found")
	ErrDuplicateEmail        = errors.New("user with this email already exists")
	ErrRegistrationFailed    = errors.New("registration failed")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired refresh token")
	ErrInvalidToken          = errors.New("invalid access token")
	ErrUnauthorized          = errors.New("unauthorized")
)

const (
	AccessTokenTTL   = time.Hour
	SessionTTL       = 30 * 24 * time.Hour
	PasswordResetTTL = time.Hour
)

type User struct {
	ID                     int64
	Email                  string
	PasswordHash           []byte
	PasswordSalt           []byte
	FirstName              *string
	LastName               *string
	IsEmailVerified        bool
	EmailVerificationToken *string
	PasswordResetToken     *string
	PasswordResetExpires   *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
	LastLoginAt            *time.Time
}

// Session is a refresh-token record.
type Session struct {
	ID           int64
	UserID       int64
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	RevokedAt    *time.Time
}

// Active reports whether the session is neither revoked nor expired at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

type Device struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	DeviceToken  string    `db:"device_token"`
	Platform     string    `db:"platform"`
	DeviceName   *string   `db:"device_name"`
	LastActiveAt time.Time `db:"last_active_at"`
	CreatedAt    time.Time `db:"created_at"`
}

// TokenPair is what every successful sign-in style operation hands back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
