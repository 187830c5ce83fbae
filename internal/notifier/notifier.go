// Package notifier emails users when their appointments are confirmed.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/ErlanBelekov/voice-scheduler/internal/email"
	"github.com/ErlanBelekov/voice-scheduler/internal/infrastructure/bus"
)

const durableName = "confirmation-mailer"

type userFinder interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
}

type subscriber interface {
	Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error)
}

type Notifier struct {
	users  userFinder
	sender email.Sender
	logger *slog.Logger
}

func New(users userFinder, sender email.Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		users:  users,
		sender: sender,
		logger: logger.With("component", "notifier"),
	}
}

// Start consumes appointments.confirmed until ctx is done.
func (n *Notifier) Start(ctx context.Context, sub subscriber) error {
	closer, err := sub.Subscribe(ctx, bus.SubjectAppointmentConfirmed, durableName, n.Handle)
	if err != nil {
		return err
	}
	n.logger.Info("notifier started", "subject", bus.SubjectAppointmentConfirmed)

	<-ctx.Done()
	if err := closer.Close(); err != nil {
		n.logger.Warn("close subscription", "error", err)
	}
	n.logger.Info("notifier shut down")
	return nil
}

// Handle sends the confirmation email for one event. Only delivery failures
// are returned, so that the event is redelivered; events that can never
// succeed are logged and dropped.
func (n *Notifier) Handle(ctx context.Context, data []byte) error {
	var evt domain.AppointmentConfirmed
	if err := json.Unmarshal(data, &evt); err != nil {
		n.logger.ErrorContext(ctx, "decode event", "error", err)
		return nil
	}

	user, err := n.users.FindByID(ctx, evt.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			n.logger.WarnContext(ctx, "event for unknown user", "user_id", evt.UserID, "appointment_id", evt.AppointmentID)
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}

	msg := email.AppointmentConfirmed(evt.Name, evt.StartsAt, evt.DurationMinutes)
	if err := n.sender.Send(ctx, user.Email, msg); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}

	n.logger.InfoContext(ctx, "confirmation sent", "user_id", user.ID, "appointment_id", evt.AppointmentID)
	return nil
}
