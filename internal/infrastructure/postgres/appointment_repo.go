package postgres

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/ErlanBelekov/voice-scheduler/internal/repository"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentColumns = `id, user_id, name, phone, starts_at, duration_minutes, notes, created_at`

type AppointmentRepository struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepository(pool *pgxpool.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) ListByUserID(ctx context.Context, userID int64) ([]*domain.Appointment, error) {
	var out []*domain.Appointment
	if err := pgxscan.Select(ctx, r.pool, &out, listAppointmentsSQL, userID); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

func (r *AppointmentRepository) Save(ctx context.Context, a *domain.Appointment) (*domain.Appointment, error) {
	return insertAppointment(ctx, r.pool, a)
}

// SaveValidated holds pg_advisory_xact_lock(user_id) for the whole
// read-decide-insert sequence, so two confirms for one user cannot both
// pass validation against the same snapshot.
func (r *AppointmentRepository) SaveValidated(ctx context.Context, userID int64, decide repository.DecideFunc) (saved *domain.Appointment, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
		return nil, fmt.Errorf("lock user schedule: %w", err)
	}

	var existing []*domain.Appointment
	if err = pgxscan.Select(ctx, tx, &existing, listAppointmentsSQL, userID); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	candidate, err := decide(existing)
	if err != nil {
		return nil, err
	}
	if candidate != nil {
		if saved, err = insertAppointment(ctx, tx, candidate); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return saved, nil
}

const listAppointmentsSQL = `
	SELECT ` + appointmentColumns + ` FROM appointments
	WHERE user_id = $1
	ORDER BY starts_at NULLS LAST, id`

func insertAppointment(ctx context.Context, q pgxscan.Querier, a *domain.Appointment) (*domain.Appointment, error) {
	var created domain.Appointment
	err := pgxscan.Get(ctx, q, &created, `
		INSERT INTO appointments (user_id, name, phone, starts_at, duration_minutes, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+appointmentColumns,
		a.UserID, a.Name, a.Phone, a.StartsAt, a.DurationMinutes, a.Notes)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return &created, nil
}
