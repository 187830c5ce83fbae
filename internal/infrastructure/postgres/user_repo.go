package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `
	id, email, password_hash, password_salt, first_name, last_name,
	is_email_verified, email_verification_token, password_reset_token,
	password_reset_expires, created_at, updated_at, last_login_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists by email: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// Create inserts the user and its first session in one transaction.
func (r *UserRepository) Create(ctx context.Context, u *domain.User, session *domain.Session) (created *domain.User, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		INSERT INTO users (
			email, password_hash, password_salt, first_name, last_name,
			is_email_verified, email_verification_token
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+userColumns,
		u.Email, u.PasswordHash, u.PasswordSalt, u.FirstName, u.LastName,
		u.IsEmailVerified, u.EmailVerificationToken,
	)
	created, err = scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, err
	}

	if session != nil {
		session.UserID = created.ID
		if _, err = insertSession(ctx, tx, session); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

// RecordLogin holds the user row lock from the conditional UPDATE until the
// session is committed, so a concurrent password reset either lands first and
// fails this login, or waits and then revokes the new session.
func (r *UserRepository) RecordLogin(ctx context.Context, userID int64, passwordHash []byte, at time.Time, session *domain.Session) (created *domain.Session, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET    last_login_at = $2, updated_at = NOW()
		WHERE  id = $1 AND password_hash = $3`,
		userID, at, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrUserNotFound
		return nil, err
	}

	session.UserID = userID
	if created, err = insertSession(ctx, tx, session); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

func (r *UserRepository) ConsumeVerificationToken(ctx context.Context, token string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET    is_email_verified = TRUE, email_verification_token = NULL, updated_at = NOW()
		WHERE  email_verification_token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("consume verification token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UserRepository) SetPasswordResetToken(ctx context.Context, userID int64, token string, expires time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET    password_reset_token = $2, password_reset_expires = $3, updated_at = NOW()
		WHERE  id = $1`, userID, token, expires)
	if err != nil {
		return fmt.Errorf("set password reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) ConsumePasswordResetToken(ctx context.Context, token string, now time.Time, hash, salt []byte) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET    password_hash          = $3,
		       password_salt          = $4,
		       password_reset_token   = NULL,
		       password_reset_expires = NULL,
		       updated_at             = NOW()
		WHERE  password_reset_token = $1 AND password_reset_expires > $2
		RETURNING `+userColumns,
		token, now, hash, salt)
	return scanUser(row)
}

func (r *UserRepository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET    password_reset_token = NULL, password_reset_expires = NULL, updated_at = NOW()
		WHERE  password_reset_expires <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("clear expired reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.PasswordSalt, &u.FirstName, &u.LastName,
		&u.IsEmailVerified, &u.EmailVerificationToken, &u.PasswordResetToken,
		&u.PasswordResetExpires, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
