package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/ai"
	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/ErlanBelekov/voice-scheduler/internal/infrastructure/bus"
	"github.com/ErlanBelekov/voice-scheduler/internal/metrics"
	"github.com/ErlanBelekov/voice-scheduler/internal/repository"
	"github.com/ErlanBelekov/voice-scheduler/internal/scheduling"
)

// MsgCorruptedAudio is returned when the transcription provider answers with
// an error envelope instead of a transcript.
const MsgCorruptedAudio = "Audio might be corrupted. Please record again."

type transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

type extractor interface {
	Extract(ctx context.Context, transcript string) (domain.CandidateAppointment, error)
}

type audioArchiver interface {
	Archive(ctx context.Context, userID int64, filename string, audio []byte) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// Intake is a candidate together with the outcome of validating it.
type Intake struct {
	Appointment domain.CandidateAppointment `json:"appointment"`
	Validation  domain.ValidationResult     `json:"validation"`
}

type AppointmentUsecase struct {
	repo        repository.AppointmentRepository
	transcriber transcriber
	extractor   extractor
	archiver    audioArchiver
	events      publisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewAppointmentUsecase wires the intake pipeline. archiver may be nil, in
// which case uploads are not archived.
func NewAppointmentUsecase(
	repo repository.AppointmentRepository,
	t transcriber,
	e extractor,
	archiver audioArchiver,
	events publisher,
	logger *slog.Logger,
) *AppointmentUsecase {
	return &AppointmentUsecase{
		repo:        repo,
		transcriber: t,
		extractor:   e,
		archiver:    archiver,
		events:      events,
		logger:      logger.With("component", "appointment_usecase"),
		now:         time.Now,
	}
}

// IntakeFromAudio turns a recording into a validated candidate. Nothing is
// persisted: the caller confirms separately.
func (u *AppointmentUsecase) IntakeFromAudio(ctx context.Context, userID int64, audio []byte, filename string) (*Intake, error) {
	if u.archiver != nil {
		start := time.Now()
		key, err := u.archiver.Archive(ctx, userID, filename, audio)
		observeStage("archive", start, err)
		if err != nil {
			u.logger.WarnContext(ctx, "archive audio", "error", err)
		} else {
			u.logger.DebugContext(ctx, "audio archived", "key", key)
		}
	}

	start := time.Now()
	raw, err := u.transcriber.Transcribe(ctx, audio, filename)
	observeStage("transcribe", start, err)
	if err != nil {
		return nil, err
	}

	if apiErr, ok := ai.ProbeErrorEnvelope(raw); ok {
		u.logger.WarnContext(ctx, "transcription returned an error envelope",
			"type", apiErr.Type, "message", apiErr.Message)
		metrics.ValidationsTotal.WithLabelValues("preliminary", "corrupted_audio").Inc()
		return &Intake{Validation: domain.ValidationFail(MsgCorruptedAudio)}, nil
	}

	start = time.Now()
	candidate, err := u.extractor.Extract(ctx, ai.TranscriptText(raw))
	observeStage("extract", start, err)
	if err != nil {
		return nil, err
	}

	existing, err := u.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	res := scheduling.Validate(userID, candidate, existing)
	metrics.ValidationsTotal.WithLabelValues("preliminary", resultLabel(res)).Inc()
	return &Intake{Appointment: candidate, Validation: res}, nil
}

// Confirm re-validates the candidate against the stored schedule and saves it
// when it passes. A failed validation is reported in the result, not as an
// error.
func (u *AppointmentUsecase) Confirm(ctx context.Context, userID int64, candidate domain.CandidateAppointment) (*Intake, error) {
	var res domain.ValidationResult
	saved, err := u.repo.SaveValidated(ctx, userID, func(existing []*domain.Appointment) (*domain.Appointment, error) {
		res = scheduling.Validate(userID, candidate, existing)
		if !res.IsSuccess {
			return nil, nil
		}
		return candidate.ToAppointment(userID), nil
	})
	if err != nil {
		return nil, fmt.Errorf("save appointment: %w", err)
	}
	metrics.ValidationsTotal.WithLabelValues("final", resultLabel(res)).Inc()

	if saved != nil {
		metrics.AppointmentsConfirmedTotal.Inc()
		u.logger.InfoContext(ctx, "appointment confirmed", "appointment_id", saved.ID)
		u.publishConfirmed(ctx, saved)
	}
	return &Intake{Appointment: candidate, Validation: res}, nil
}

func (u *AppointmentUsecase) publishConfirmed(ctx context.Context, a *domain.Appointment) {
	if u.events == nil {
		return
	}
	evt := domain.AppointmentConfirmed{
		AppointmentID:   a.ID,
		UserID:          a.UserID,
		Name:            a.Name,
		StartsAt:        a.StartsAt,
		DurationMinutes: a.DurationMinutes,
		ConfirmedAt:     u.now().UTC(),
	}
	if err := u.events.Publish(ctx, bus.SubjectAppointmentConfirmed, evt); err != nil {
		u.logger.WarnContext(ctx, "publish appointment confirmed", "appointment_id", a.ID, "error", err)
	}
}

func (u *AppointmentUsecase) List(ctx context.Context, userID int64) ([]*domain.Appointment, error) {
	out, err := u.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if out == nil {
		out = []*domain.Appointment{}
	}
	return out, nil
}

func resultLabel(res domain.ValidationResult) string {
	if res.IsSuccess {
		return "ok"
	}
	return "rejected"
}

func observeStage(stage string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTranscriptionTimeout), errors.Is(err, domain.ErrExtractionTimeout):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	metrics.PipelineStageDuration.WithLabelValues(stage, outcome).Observe(time.Since(start).Seconds())
}
