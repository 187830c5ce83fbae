package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
)

const (
	ExtractionModel = "gpt-4.1"
	chatPath        = "/v1/chat/completions"
)

const systemPrompt = `You extract appointment booking details from a conversation.
Return ONLY valid JSON matching the schema.
If some data is missing, still fill every field as best as possible.
Phone must be digits only.
All dates must be returned in ISO 8601 format (YYYY-MM-DDTHH:MM:SS),
for example: 2026-02-13T14:30:00.`

var requiredFields = []string{"name", "phone", "appointmentDate", "durationMinutes", "notes"}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type Extractor struct {
	endpoint
	model string
}

func NewExtractor(httpClient *http.Client, baseURL, apiKey string) *Extractor {
	return &Extractor{
		endpoint: endpoint{http: httpClient, baseURL: baseURL, apiKey: apiKey},
		model:    ExtractionModel,
	}
}

func (e *Extractor) Extract(ctx context.Context, transcript string) (domain.CandidateAppointment, error) {
	var zero domain.CandidateAppointment

	payload, err := json.Marshal(e.request(transcript))
	if err != nil {
		return zero, fmt.Errorf("encode extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url(chatPath), bytes.NewReader(payload))
	if err != nil {
		return zero, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	e.authorize(req)

	resp, err := e.http.Do(req)
	if err != nil {
		return zero, classify(err, domain.ErrExtractionFailed, domain.ErrExtractionTimeout)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return zero, classify(err, domain.ErrExtractionFailed, domain.ErrExtractionTimeout)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, fmt.Errorf("%w: status %d", domain.ErrExtractionFailed, resp.StatusCode)
	}

	return ParseCompletion(raw)
}

// ParseCompletion pulls choices[0].message.content out of a chat completion
// and decodes it as a candidate appointment.
func ParseCompletion(raw []byte) (domain.CandidateAppointment, error) {
	var zero domain.CandidateAppointment

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return zero, fmt.Errorf("%w: decode completion: %w", domain.ErrExtractionFailed, err)
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return zero, fmt.Errorf("%w: empty completion", domain.ErrExtractionFailed)
	}
	content := []byte(chat.Choices[0].Message.Content)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(content, &fields); err != nil {
		return zero, fmt.Errorf("%w: decode content: %w", domain.ErrExtractionFailed, err)
	}
	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			return zero, fmt.Errorf("%w: missing field %q", domain.ErrExtractionFailed, f)
		}
	}

	var c domain.CandidateAppointment
	if err := json.Unmarshal(content, &c); err != nil {
		return zero, fmt.Errorf("%w: decode appointment: %w", domain.ErrExtractionFailed, err)
	}
	return c, nil
}

func (e *Extractor) request(transcript string) chatRequest {
	return chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Transcript:\n" + transcript},
		},
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   "appointment",
				Strict: true,
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":            map[string]any{"type": "string"},
						"phone":           map[string]any{"type": "string"},
						"appointmentDate": map[string]any{"type": "string", "format": "date-time"},
						"durationMinutes": map[string]any{"type": "integer"},
						"notes":           map[string]any{"type": "string"},
					},
					"required":             requiredFields,
					"additionalProperties": false,
				},
			},
		},
	}
}
