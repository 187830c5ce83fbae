package ai

import "encoding/json"

// APIError is the provider's error object.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   any    `json:"param"`
	Code    any    `json:"code"`
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// ProbeErrorEnvelope reports whether raw is an {"error":{...}} envelope.
// Anything that does not parse as one, including invalid JSON, is not an
// error.
func ProbeErrorEnvelope(raw string) (*APIError, bool) {
	var env errorEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, false
	}
	if env.Error == nil {
		return nil, false
	}
	return env.Error, true
}

// TranscriptText returns the "text" field of a transcription response, even
// when it is empty, or raw unchanged when the field is absent.
func TranscriptText(raw string) string {
	var body struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil || body.Text == nil {
		return raw
	}
	return *body.Text
}
