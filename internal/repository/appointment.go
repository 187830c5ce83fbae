package repository

import (
	"context"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
)

// DecideFunc inspects the user's current appointments and returns the record
// to insert, or nil to insert nothing.
type DecideFunc func(existing []*domain.Appointment) (*domain.Appointment, error)

type AppointmentRepository interface {
	ListByUserID(ctx context.Context, userID int64) ([]*domain.Appointment, error)
	Save(ctx context.Context, a *domain.Appointment) (*domain.Appointment, error)

	// SaveValidated serialises schedule writes per user: it takes a per-user
	// lock, loads the user's appointments, calls decide, and inserts what
	// decide returns, all in one transaction.
	SaveValidated(ctx context.Context, userID int64, decide DecideFunc) (*domain.Appointment, error)
}
