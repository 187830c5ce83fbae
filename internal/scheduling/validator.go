// Package scheduling checks candidate appointments against a user's calendar.
package scheduling

import (
	"fmt"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
)

const (
	MsgDateRequired     = "Appointment date is required."
	MsgDurationPositive = "Appointment duration must be positive."
	MsgDurationTooLong  = "Appointment duration must not exceed 7 days."
	startLayout         = "2006-01-02 15:04 UTC"
)

// Validate runs the same checks for the preliminary and the final pass.
// Intervals are half-open, so back-to-back appointments do not conflict.
func Validate(userID int64, candidate domain.CandidateAppointment, existing []*domain.Appointment) domain.ValidationResult {
	if candidate.Start.IsZero() {
		return domain.ValidationFail(MsgDateRequired)
	}
	if candidate.DurationMinutes <= 0 {
		return domain.ValidationFail(MsgDurationPositive)
	}
	if candidate.DurationMinutes > domain.MaxDurationMinutes {
		return domain.ValidationFail(MsgDurationTooLong)
	}

	start := candidate.Start.UTC()
	end := start.Add(time.Duration(candidate.DurationMinutes) * time.Minute)

	for _, ex := range existing {
		if ex == nil || ex.UserID != userID {
			continue
		}
		exStart, exEnd, ok := ex.Interval()
		if !ok {
			continue
		}
		if Overlaps(start, end, exStart, exEnd) {
			return domain.ValidationFail(fmt.Sprintf(
				"Appointment overlaps with existing appointment '%s' on %s (%d min).",
				ex.Name, exStart.Format(startLayout), *ex.DurationMinutes,
			))
		}
	}

	return domain.ValidationOK()
}

// Overlaps reports whether [a,b) and [c,d) share an instant.
func Overlaps(a, b, c, d time.Time) bool {
	return a.Before(d) && c.Before(b)
}
