package handler_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/ErlanBelekov/voice-scheduler/internal/transport/http/handler"
	"github.com/ErlanBelekov/voice-scheduler/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAppointmentUsecase struct {
	intake  func(ctx context.Context, userID int64, audio []byte, filename string) (*usecase.Intake, error)
	confirm func(ctx context.Context, userID int64, c domain.CandidateAppointment) (*usecase.Intake, error)
	list    func(ctx context.Context, userID int64) ([]*domain.Appointment, error)
}

func (f *fakeAppointmentUsecase) IntakeFromAudio(ctx context.Context, userID int64, audio []byte, filename string) (*usecase.Intake, error) {
	return f.intake(ctx, userID, audio, filename)
}

func (f *fakeAppointmentUsecase) Confirm(ctx context.Context, userID int64, c domain.CandidateAppointment) (*usecase.Intake, error) {
	return f.confirm(ctx, userID, c)
}

func (f *fakeAppointmentUsecase) List(ctx context.Context, userID int64) ([]*domain.Appointment, error) {
	return f.list(ctx, userID)
}

const authedUser int64 = 42

func newAppointmentEngine(uc *fakeAppointmentUsecase) *gin.Engine {
	return newAppointmentEngineWithLimit(uc, 1<<20)
}

func newAppointmentEngineWithLimit(uc *fakeAppointmentUsecase, maxUploadBytes int64) *gin.Engine {
	h := handler.NewAppointmentHandler(uc, maxUploadBytes, discard)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("userID", authedUser) })
	r.POST("/UploadAudio", h.Upload)
	r.POST("/ConfirmAppointment", h.Confirm)
	r.GET("/appointments", h.List)
	return r
}

func multipartUpload(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/UploadAudio", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---- Upload ----

func TestUpload_PassesAudioAndReturnsIntake(t *testing.T) {
	uc := &fakeAppointmentUsecase{intake: func(_ context.Context, userID int64, audio []byte, filename string) (*usecase.Intake, error) {
		assert.Equal(t, authedUser, userID)
		assert.Equal(t, []byte("m4a-bytes"), audio)
		assert.Equal(t, "rec.m4a", filename)
		return &usecase.Intake{
			Appointment: domain.CandidateAppointment{Name: "Dana", Start: domain.ParseTimestamp("2026-02-13T14:30:00"), DurationMinutes: 30},
			Validation:  domain.ValidationOK(),
		}, nil
	}}

	w := serve(newAppointmentEngine(uc), multipartUpload(t, "file", "rec.m4a", []byte("m4a-bytes")))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"appointment": {"name":"Dana","phone":"","appointmentDate":"2026-02-13T14:30:00Z","durationMinutes":30,"notes":""},
		"validation": {"isSuccess":true,"error":""}
	}`, w.Body.String())
}

func TestUpload_NotMultipart_Returns400(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/UploadAudio", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	w := serve(newAppointmentEngine(&fakeAppointmentUsecase{}), req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "multipart/form-data")
}

func TestUpload_NoFilePart_Returns400(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no audio here"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/UploadAudio", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := serve(newAppointmentEngine(&fakeAppointmentUsecase{}), req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No file provided")
}

func TestUpload_AnyFilePartNameIsAccepted(t *testing.T) {
	var called bool
	uc := &fakeAppointmentUsecase{intake: func(_ context.Context, _ int64, audio []byte, filename string) (*usecase.Intake, error) {
		called = true
		assert.Equal(t, []byte("m4a-bytes"), audio)
		assert.Equal(t, "voice.m4a", filename)
		return &usecase.Intake{Validation: domain.ValidationOK()}, nil
	}}

	w := serve(newAppointmentEngine(uc), multipartUpload(t, "audio", "voice.m4a", []byte("m4a-bytes")))

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, called)
}

func TestUpload_OversizedBody_Returns413(t *testing.T) {
	uc := &fakeAppointmentUsecase{intake: func(context.Context, int64, []byte, string) (*usecase.Intake, error) {
		t.Error("IntakeFromAudio called for an oversized upload")
		return nil, nil
	}}

	big := bytes.Repeat([]byte("a"), 64<<10)
	w := serve(newAppointmentEngineWithLimit(uc, 1<<10), multipartUpload(t, "file", "rec.m4a", big))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"error":"Audio file is too large"}`, w.Body.String())
}

func TestUpload_PipelineErrorsMapToStatus(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{domain.ErrTranscriptionUnavailable, http.StatusBadGateway},
		{domain.ErrExtractionFailed, http.StatusBadGateway},
		{domain.ErrTranscriptionTimeout, http.StatusGatewayTimeout},
		{domain.ErrExtractionTimeout, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		t.Run(tc.err.Error(), func(t *testing.T) {
			uc := &fakeAppointmentUsecase{intake: func(context.Context, int64, []byte, string) (*usecase.Intake, error) {
				return nil, tc.err
			}}
			w := serve(newAppointmentEngine(uc), multipartUpload(t, "file", "rec.m4a", []byte("x")))
			assert.Equal(t, tc.want, w.Code)
			assert.NotContains(t, w.Body.String(), "boom")
		})
	}
}

func TestUpload_ErrorEnvelopeResultIs200(t *testing.T) {
	uc := &fakeAppointmentUsecase{intake: func(context.Context, int64, []byte, string) (*usecase.Intake, error) {
		return &usecase.Intake{Validation: domain.ValidationFail(usecase.MsgCorruptedAudio)}, nil
	}}

	w := serve(newAppointmentEngine(uc), multipartUpload(t, "file", "rec.m4a", []byte("x")))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), usecase.MsgCorruptedAudio)
	assert.Contains(t, w.Body.String(), `"appointmentDate":null`)
}

// ---- Confirm ----

func TestConfirm_ValidationFailureIs200(t *testing.T) {
	var got domain.CandidateAppointment
	uc := &fakeAppointmentUsecase{confirm: func(_ context.Context, userID int64, c domain.CandidateAppointment) (*usecase.Intake, error) {
		assert.Equal(t, authedUser, userID)
		got = c
		return &usecase.Intake{Appointment: c, Validation: domain.ValidationFail("Appointment date is required.")}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/ConfirmAppointment",
		strings.NewReader(`{"name":"Dana","appointmentDate":"2026-02-13T16:30:00+02:00","durationMinutes":30}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(newAppointmentEngine(uc), req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isSuccess":false`)
	assert.Equal(t, "2026-02-13T14:30:00Z", got.Start.Format("2006-01-02T15:04:05Z07:00"))
}

func TestConfirm_BadJSON_Returns400(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/ConfirmAppointment", strings.NewReader(`{bad`))
	req.Header.Set("Content-Type", "application/json")

	assert.Equal(t, http.StatusBadRequest, serve(newAppointmentEngine(&fakeAppointmentUsecase{}), req).Code)
}

// ---- List ----

func TestList_ReturnsAppointments(t *testing.T) {
	uc := &fakeAppointmentUsecase{list: func(context.Context, int64) ([]*domain.Appointment, error) {
		return []*domain.Appointment{{ID: 1, UserID: authedUser, Name: "Dana"}}, nil
	}}

	w := serve(newAppointmentEngine(uc), httptest.NewRequest(http.MethodGet, "/appointments", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"appointments":[{"id":1`)
}
