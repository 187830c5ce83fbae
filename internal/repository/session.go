package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
)

type SessionRepository interface {
	GetActiveByRefreshToken(ctx context.Context, token string, now time.Time) (*domain.Session, error)
	GetByUserAndToken(ctx context.Context, userID int64, token string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) (*domain.Session, error)
	Update(ctx context.Context, s *domain.Session) error

	// Rotate locks the active session holding token, revokes it and inserts
	// next for the same user, all in one transaction. A token that is missing,
	// revoked or expired yields domain.ErrSessionNotFound.
	Rotate(ctx context.Context, token string, now time.Time, next *domain.Session) (*domain.Session, error)
	RevokeAllForUser(ctx context.Context, userID int64, now time.Time) (int64, error)
	// DeleteStale removes sessions that expired or were revoked before cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}
