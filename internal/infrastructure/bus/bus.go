// Package bus publishes and consumes domain events over NATS JetStream.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	StreamName                  = "APPOINTMENTS"
	SubjectAppointmentConfirmed = "appointments.confirmed"
)

type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New connects and makes sure the APPOINTMENTS stream exists.
func New(url string, logger *slog.Logger, opts ...nats.Option) (*Bus, error) {
	opts = append([]nats.Option{
		nats.Name("voice-scheduler"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	}, opts...)

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if _, err := js.StreamInfo(StreamName); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, fmt.Errorf("stream info: %w", err)
		}
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     StreamName,
			Subjects: []string{"appointments.>"},
			MaxAge:   7 * 24 * time.Hour,
		}); err != nil {
			nc.Close()
			return nil, fmt.Errorf("add stream: %w", err)
		}
	}

	return &Bus{conn: nc, js: js}, nil
}

// Close drains the connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Ping round-trips to the server.
func (b *Bus) Ping(ctx context.Context) error {
	if b == nil {
		return errors.New("nil bus")
	}
	return b.conn.FlushWithContext(ctx)
}

// Publish encodes v as JSON and publishes it to subj.
func (b *Bus) Publish(ctx context.Context, subj string, v any) error {
	if b == nil {
		return errors.New("nil bus")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if _, err = b.js.Publish(subj, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	return nil
}

type subscription struct {
	sub    *nats.Subscription
	mu     sync.Mutex
	closed bool
}

func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sub.Drain()
}

// Subscribe creates a durable consumer on subj. A handler error naks the
// message so JetStream redelivers it.
func (b *Bus) Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error) {
	if b == nil {
		return nil, errors.New("nil bus")
	}
	if fn == nil {
		return nil, errors.New("nil handler")
	}

	handler := func(msg *nats.Msg) {
		handlerCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		if err := fn(handlerCtx, msg.Data); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}

	sub, err := b.js.Subscribe(subj, handler, nats.Durable(durable), nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subj, err)
	}

	s := &subscription{sub: sub}
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return s, nil
}

// LogPublisher logs events instead of publishing them. Used when NATS_URL
// is unset.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "bus")}
}

func (p *LogPublisher) Publish(ctx context.Context, subj string, v any) error {
	p.logger.InfoContext(ctx, "event (no bus configured)", "subject", subj, "event", v)
	return nil
}
