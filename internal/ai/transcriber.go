package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
)

const (
	TranscriptionModel = "gpt-4o-transcribe"
	transcriptionPath  = "/v1/audio/transcriptions"
	audioContentType   = "audio/mp4"
	maxResponseBytes   = 4 << 20
)

type Transcriber struct {
	endpoint
	model string
}

func NewTranscriber(httpClient *http.Client, baseURL, apiKey string) *Transcriber {
	return &Transcriber{
		endpoint: endpoint{http: httpClient, baseURL: baseURL, apiKey: apiKey},
		model:    TranscriptionModel,
	}
}

// Transcribe uploads audio and returns the raw response body. Non-2xx bodies
// are returned as-is so the caller can inspect the error envelope.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	body, contentType, err := t.form(audio, filename)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url(transcriptionPath), body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	t.authorize(req)

	resp, err := t.http.Do(req)
	if err != nil {
		return "", classify(err, domain.ErrTranscriptionUnavailable, domain.ErrTranscriptionTimeout)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", classify(err, domain.ErrTranscriptionUnavailable, domain.ErrTranscriptionTimeout)
	}
	return string(raw), nil
}

func (t *Transcriber) form(audio []byte, filename string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", audioContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err = part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err = w.WriteField("model", t.model); err != nil {
		return nil, "", fmt.Errorf("write model field: %w", err)
	}
	if err = w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
