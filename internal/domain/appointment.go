package domain

import (
	"errors"
	"time"
)

var (
	ErrTranscriptionUnavailable = errors.New("transcription service unavailable")
	ErrTranscriptionTimeout     = errors.New("transcription timed out")
	ErrExtractionFailed         = errors.New("could not extract appointment from transcript")
	ErrExtractionTimeout        = errors.New("extraction timed out")
	ErrValidationFailed         = errors.New("appointment validation failed")
	ErrNoFileProvided           = errors.New("no file provided")
	ErrUnsupportedContentType   = errors.New("expected multipart/form-data request")
)

// Appointment is a confirmed, persisted booking.
type Appointment struct {
	ID              int64      `db:"id"              json:"id"`
	UserID          int64      `db:"user_id"         json:"userId"`
	Name            string     `db:"name"            json:"name"`
	Phone           string     `db:"phone"           json:"phone"`
	StartsAt        *time.Time `db:"starts_at"       json:"appointmentDate"`
	DurationMinutes *int       `db:"duration_minutes" json:"durationMinutes"`
	Notes           string     `db:"notes"           json:"notes"`
	CreatedAt       time.Time  `db:"created_at"      json:"createdAt"`
}

// MaxDurationMinutes is the longest appointment a candidate may request.
const MaxDurationMinutes = 7 * 24 * 60

// maxIntervalMinutes caps stored durations when computing an end time, well
// below the ~153M minutes at which time.Duration overflows.
const maxIntervalMinutes = 100_000_000

// Interval returns the half-open [start, end) range the appointment occupies.
// ok is false when the start is unknown or the duration is unknown or not
// positive. Oversized stored durations are clamped, so end never wraps to
// before start.
func (a *Appointment) Interval() (start, end time.Time, ok bool) {
	if a.StartsAt == nil || a.DurationMinutes == nil || *a.DurationMinutes <= 0 {
		return time.Time{}, time.Time{}, false
	}
	start = a.StartsAt.UTC()
	minutes := min(*a.DurationMinutes, maxIntervalMinutes)
	return start, start.Add(time.Duration(minutes) * time.Minute), true
}

// CandidateAppointment is an extracted appointment awaiting confirmation.
type CandidateAppointment struct {
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	Start           Timestamp `json:"appointmentDate"`
	DurationMinutes int       `json:"durationMinutes"`
	Notes           string    `json:"notes"`
}

// ToAppointment converts the candidate into a record owned by userID.
func (c CandidateAppointment) ToAppointment(userID int64) *Appointment {
	a := &Appointment{
		UserID: userID,
		Name:   c.Name,
		Phone:  c.Phone,
		Notes:  c.Notes,
	}
	if !c.Start.IsZero() {
		start := c.Start.UTC()
		a.StartsAt = &start
	}
	d := c.DurationMinutes
	a.DurationMinutes = &d
	return a
}

type ValidationResult struct {
	IsSuccess bool   `json:"isSuccess"`
	Error     string `json:"error"`
}

func ValidationOK() ValidationResult {
	return ValidationResult{IsSuccess: true}
}

func ValidationFail(msg string) ValidationResult {
	return ValidationResult{IsSuccess: false, Error: msg}
}

// AppointmentConfirmed is published after a candidate is stored.
type AppointmentConfirmed struct {
	AppointmentID   int64      `json:"appointmentId"`
	UserID          int64      `json:"userId"`
	Name            string     `json:"name"`
	StartsAt        *time.Time `json:"startsAt"`
	DurationMinutes *int       `json:"durationMinutes"`
	ConfirmedAt     time.Time  `json:"confirmedAt"`
}
