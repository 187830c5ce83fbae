package notifier_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/ErlanBelekov/voice-scheduler/internal/email"
	"github.com/ErlanBelekov/voice-scheduler/internal/infrastructure/bus"
	"github.com/ErlanBelekov/voice-scheduler/internal/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeUsers struct {
	findByID func(ctx context.Context, id int64) (*domain.User, error)
}

func (f *fakeUsers) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return f.findByID(ctx, id)
}

type fakeSender struct {
	to, subject, body string
	kind              email.Kind
	err               error
}

func (s *fakeSender) Send(_ context.Context, to string, msg email.Message) error {
	s.to, s.subject, s.body, s.kind = to, msg.Subject, msg.Body, msg.Kind
	return s.err
}

func knownUser() *fakeUsers {
	return &fakeUsers{findByID: func(_ context.Context, id int64) (*domain.User, error) {
		return &domain.User{ID: id, Email: "dana@example.com"}, nil
	}}
}

const event = `{"appointmentId":9,"userId":42,"name":"Dr. Levi","startsAt":"2026-02-13T14:30:00Z","durationMinutes":30}`

func TestHandle_SendsConfirmation(t *testing.T) {
	sender := &fakeSender{}
	n := notifier.New(knownUser(), sender, discard)

	require.NoError(t, n.Handle(context.Background(), []byte(event)))

	assert.Equal(t, "dana@example.com", sender.to)
	assert.Equal(t, "Appointment confirmed", sender.subject)
	assert.Equal(t, email.KindAppointmentConfirmed, sender.kind)
	assert.Contains(t, sender.body, "Dr. Levi")
	assert.Contains(t, sender.body, "14:30")
	assert.Contains(t, sender.body, "30 minutes")
}

func TestHandle_SendFailureIsRetried(t *testing.T) {
	sender := &fakeSender{err: errors.New("resend down")}
	n := notifier.New(knownUser(), sender, discard)

	assert.Error(t, n.Handle(context.Background(), []byte(event)))
}

func TestHandle_DropsUndeliverableEvents(t *testing.T) {
	sender := &fakeSender{}
	unknown := &fakeUsers{findByID: func(context.Context, int64) (*domain.User, error) {
		return nil, domain.ErrUserNotFound
	}}

	assert.NoError(t, notifier.New(knownUser(), sender, discard).Handle(context.Background(), []byte("{not json")))
	assert.NoError(t, notifier.New(unknown, sender, discard).Handle(context.Background(), []byte(event)))
	assert.Empty(t, sender.to)
}

func TestHandle_StoreErrorIsRetried(t *testing.T) {
	broken := &fakeUsers{findByID: func(context.Context, int64) (*domain.User, error) {
		return nil, errors.New("db down")
	}}

	assert.Error(t, notifier.New(broken, &fakeSender{}, discard).Handle(context.Background(), []byte(event)))
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type fakeSubscriber struct {
	subject string
	closed  chan struct{}
}

func (s *fakeSubscriber) Subscribe(_ context.Context, subj, _ string, _ func(context.Context, []byte) error) (io.Closer, error) {
	s.subject = subj
	return closerFunc(func() error { close(s.closed); return nil }), nil
}

func TestStart_SubscribesAndClosesOnCancel(t *testing.T) {
	sub := &fakeSubscriber{closed: make(chan struct{})}
	n := notifier.New(knownUser(), &fakeSender{}, discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Start(ctx, sub) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
	assert.Equal(t, bus.SubjectAppointmentConfirmed, sub.subject)
	select {
	case <-sub.closed:
	default:
		t.Error("subscription not closed")
	}
}
