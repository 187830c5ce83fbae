// Package email renders and delivers account and appointment notices.
package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/voice-scheduler/internal/metrics"
	"github.com/resend/resend-go/v2"
)

// Sender delivers one rendered message to one recipient.
type Sender interface {
	Send(ctx context.Context, to string, msg Message) error
}

// LogSender writes messages to the log. Used for ENV=local so that links
// can be copied out of the server output.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "email")}
}

func (s *LogSender) Send(ctx context.Context, to string, msg Message) error {
	s.logger.InfoContext(ctx, "email (local dev)",
		"kind", msg.Kind,
		"to", to,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	metrics.EmailsSentTotal.WithLabelValues(string(msg.Kind), "logged").Inc()
	return nil
}

// ResendSender delivers through the Resend API, tagging each email with its
// kind so bounces can be traced back to the flow that sent them.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(ctx context.Context, to string, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: msg.Subject,
		Html:    msg.Body,
		Tags:    []resend.Tag{{Name: "kind", Value: string(msg.Kind)}},
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		metrics.EmailsSentTotal.WithLabelValues(string(msg.Kind), "error").Inc()
		return fmt.Errorf("send %s email: %w", msg.Kind, err)
	}
	metrics.EmailsSentTotal.WithLabelValues(string(msg.Kind), "sent").Inc()
	return nil
}

// NewSender picks LogSender for ENV=local and ResendSender elsewhere.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return NewLogSender(logger)
	}
	return NewResendSender(apiKey, from)
}
