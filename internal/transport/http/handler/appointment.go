package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"mime/multipart"
	"net/http"
	"slices"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/ErlanBelekov/voice-scheduler/internal/usecase"
	"github.com/gin-gonic/gin"
)

type appointmentUsecaser interface {
	IntakeFromAudio(ctx context.Context, userID int64, audio []byte, filename string) (*usecase.Intake, error)
	Confirm(ctx context.Context, userID int64, candidate domain.CandidateAppointment) (*usecase.Intake, error)
	List(ctx context.Context, userID int64) ([]*domain.Appointment, error)
}

type AppointmentHandler struct {
	appointments   appointmentUsecaser
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewAppointmentHandler(appointments appointmentUsecaser, maxUploadBytes int64, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		appointments:   appointments,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With("component", "appointment_handler"),
	}
}

type listAppointmentsResponse struct {
	Appointments []*domain.Appointment `json:"appointments"`
}

// POST /UploadAudio (multipart; part "file", else the first file part)
func (h *AppointmentHandler) Upload(c *gin.Context) {
	if c.ContentType() != "multipart/form-data" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errUnsupportedContentType})
		return
	}
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": errFileTooLarge})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errNoFileProvided})
		return
	}
	fh := uploadedFile(form)
	if fh == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errNoFileProvided})
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "open upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	defer f.Close()

	audio, err := io.ReadAll(f)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "read upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if len(audio) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errNoFileProvided})
		return
	}

	intake, err := h.appointments.IntakeFromAudio(c.Request.Context(), c.GetInt64("userID"), audio, fh.Filename)
	if err != nil {
		h.writePipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, intake)
}

// uploadedFile prefers the part named "file" and otherwise takes the first
// file part by field name, so clients that name the part differently still work.
func uploadedFile(form *multipart.Form) *multipart.FileHeader {
	if files := form.File["file"]; len(files) > 0 {
		return files[0]
	}
	fields := slices.Sorted(maps.Keys(form.File))
	for _, field := range fields {
		if files := form.File[field]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func (h *AppointmentHandler) writePipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrTranscriptionTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": errTranscriptionTimeout})
	case errors.Is(err, domain.ErrExtractionTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": errExtractionTimeout})
	case errors.Is(err, domain.ErrTranscriptionUnavailable):
		h.logger.WarnContext(c.Request.Context(), "transcription", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": errTranscriptionUnavailable})
	case errors.Is(err, domain.ErrExtractionFailed):
		h.logger.WarnContext(c.Request.Context(), "extraction", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": errExtractionFailed})
	default:
		h.logger.ErrorContext(c.Request.Context(), "intake from audio", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}

// POST /ConfirmAppointment
// A failed validation is still a 200; the result says why.
func (h *AppointmentHandler) Confirm(c *gin.Context) {
	var candidate domain.CandidateAppointment
	if err := c.ShouldBindJSON(&candidate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	intake, err := h.appointments.Confirm(c.Request.Context(), c.GetInt64("userID"), candidate)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "confirm appointment", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, intake)
}

// GET /appointments
func (h *AppointmentHandler) List(c *gin.Context) {
	items, err := h.appointments.List(c.Request.Context(), c.GetInt64("userID"))
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "list appointments", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, listAppointmentsResponse{Appointments: items})
}
