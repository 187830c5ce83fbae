package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, user_id, refresh_token, expires_at, created_at, revoked_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) GetActiveByRefreshToken(ctx context.Context, token string, now time.Time) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM user_sessions
		WHERE refresh_token = $1 AND revoked_at IS NULL AND expires_at > $2`, token, now)
	return scanSession(row)
}

func (r *SessionRepository) GetByUserAndToken(ctx context.Context, userID int64, token string) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM user_sessions
		WHERE user_id = $1 AND refresh_token = $2`, userID, token)
	return scanSession(row)
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	return insertSession(ctx, r.pool, s)
}

func (r *SessionRepository) Update(ctx context.Context, s *domain.Session) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_sessions SET expires_at = $2, revoked_at = $3 WHERE id = $1`,
		s.ID, s.ExpiresAt, s.RevokedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// Rotate runs revoke-and-replace under a row lock on the presented token.
// A concurrent caller with the same token waits on the lock and then sees
// revoked_at set, so it gets ErrSessionNotFound.
func (r *SessionRepository) Rotate(ctx context.Context, token string, now time.Time, next *domain.Session) (created *domain.Session, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := scanSession(tx.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM user_sessions
		WHERE refresh_token = $1 AND revoked_at IS NULL AND expires_at > $2
		FOR UPDATE`, token, now))
	if err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx,
		`UPDATE user_sessions SET revoked_at = $2 WHERE id = $1`, current.ID, now); err != nil {
		return nil, fmt.Errorf("revoke session: %w", err)
	}

	next.UserID = current.UserID
	created, err = insertSession(ctx, tx, next)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_sessions SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2`, userID, now)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM user_sessions
		WHERE expires_at < $1 OR revoked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func insertSession(ctx context.Context, q querier, s *domain.Session) (*domain.Session, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO user_sessions (user_id, refresh_token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING `+sessionColumns,
		s.UserID, s.RefreshToken, s.ExpiresAt)
	created, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return created, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshToken, &s.ExpiresAt, &s.CreatedAt, &s.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}
