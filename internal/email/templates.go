package email

import (
	"fmt"
	"html"
	"net/url"
	"time"
)

type Kind string

const (
	KindVerification         Kind = "verification"
	KindPasswordReset        Kind = "password_reset"
	KindAppointmentConfirmed Kind = "appointment_confirmed"
)

// Message is a rendered HTML email.
type Message struct {
	Kind    Kind
	Subject string
	Body    string
}

func Verification(baseURL, token string) Message {
	link := baseURL + "/auth/verify-email?token=" + url.QueryEscape(token)
	return Message{
		Kind:    KindVerification,
		Subject: "Confirm your email address",
		Body: fmt.Sprintf(
			`<p>Welcome! Confirm your email address by following this link:</p><p><a href="%s">%s</a></p>`,
			html.EscapeString(link), html.EscapeString(link),
		),
	}
}

func PasswordReset(baseURL, token string, ttl time.Duration) Message {
	link := baseURL + "/reset-password?token=" + url.QueryEscape(token)
	return Message{
		Kind:    KindPasswordReset,
		Subject: "Reset your password",
		Body: fmt.Sprintf(
			`<p>Use the link below to choose a new password (expires in %d minutes):</p><p><a href="%s">%s</a></p>`,
			int(ttl.Minutes()), html.EscapeString(link), html.EscapeString(link),
		),
	}
}

func AppointmentConfirmed(name string, start *time.Time, durationMinutes *int) Message {
	when := "an unspecified time"
	if start != nil {
		when = start.UTC().Format("Mon, 02 Jan 2006 15:04 UTC")
	}
	length := ""
	if durationMinutes != nil {
		length = fmt.Sprintf(" for %d minutes", *durationMinutes)
	}
	return Message{
		Kind:    KindAppointmentConfirmed,
		Subject: "Appointment confirmed",
		Body: fmt.Sprintf(`<p>Your appointment with <b>%s</b> is booked for %s%s.</p>`,
			html.EscapeString(name), when, length),
	}
}
