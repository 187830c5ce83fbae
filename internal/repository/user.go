package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
)

// UserRepository is the user half of the credential store. Writes touch only
// the columns they own so concurrent flows never overwrite each other.
type UserRepository interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	// Create inserts the user and, when session is non-nil, its first session
	// in the same transaction. Returns domain.ErrDuplicateEmail on a taken email.
	Create(ctx context.Context, u *domain.User, session *domain.Session) (*domain.User, error)
	// RecordLogin stamps last_login_at and inserts session in one transaction,
	// but only while the stored password hash still equals passwordHash.
	// Returns domain.ErrUserNotFound when the hash has changed since it was read.
	RecordLogin(ctx context.Context, userID int64, passwordHash []byte, at time.Time, session *domain.Session) (*domain.Session, error)
	// ConsumeVerificationToken marks the owner verified and clears the token.
	// Reports false when no user holds the token.
	ConsumeVerificationToken(ctx context.Context, token string) (bool, error)
	SetPasswordResetToken(ctx context.Context, userID int64, token string, expires time.Time) error
	// ConsumePasswordResetToken swaps in the new credentials and clears the
	// token, only while the token is unexpired at now. Returns
	// domain.ErrUserNotFound when the token is unknown, expired or already used.
	ConsumePasswordResetToken(ctx context.Context, token string, now time.Time, hash, salt []byte) (*domain.User, error)
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}
