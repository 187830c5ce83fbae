package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Timestamp is an instant held in UTC. The zero value means "not set".
//
// Inputs carrying a zone offset are converted to UTC. Offset-less inputs are
// read as UTC. Anything unparseable decodes to the zero value rather than an
// error, since extracted dates are best-effort.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// NewTimestamp normalises t to UTC.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Time: t.UTC()}
}

// ParseTimestamp returns the zero Timestamp when s is blank or unparseable.
func ParseTimestamp(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(t)
		}
	}
	return Timestamp{}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = Timestamp{}
		return nil
	}
	*t = ParseTimestamp(s)
	return nil
}
