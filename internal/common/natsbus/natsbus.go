// Package natsbus wraps the NATS connection and JetStream plumbing used as
// the internal event bus between the webhook endpoint and its subscribers.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config holds NATS configuration.
type Config struct {
	URL           string        `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	Name          string        `envconfig:"NATS_CLIENT_NAME" default:"liqgate"`
	MaxReconnects int           `envconfig:"NATS_MAX_RECONNECTS" default:"10"`
	ReconnectWait time.Duration `envconfig:"NATS_RECONNECT_WAIT" default:"2s"`
}

// Client wraps a NATS connection with JetStream support.
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// New creates a new NATS client.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			logger.Error("NATS error", "error", err, "subject", s.Subject)
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	logger.Info("NATS connection established", "url", conn.ConnectedUrl())

	return &Client{conn: conn, js: js, logger: logger}, nil
}

// Close closes the NATS connection.
func (c *Client) Close() {
	c.conn.Close()
}

// HealthCheck checks NATS connection health.
func (c *Client) HealthCheck() error {
	if !c.conn.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}
	return nil
}

// StreamConfig defines a JetStream stream.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
}

// EnsureStream creates or updates a stream.
func (c *Client) EnsureStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = 7 * 24 * time.Hour
	}

	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    maxAge,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("creating/updating stream %s: %w", cfg.Name, err)
	}

	c.logger.Info("stream ensured", "name", cfg.Name, "subjects", cfg.Subjects)
	return stream, nil
}

// ConsumerConfig defines a JetStream consumer.
type ConsumerConfig struct {
	Name          string
	Stream        string
	FilterSubject string
	MaxDeliver    int
	AckWait       time.Duration
}

// EnsureConsumer creates or updates a durable consumer.
func (c *Client) EnsureConsumer(ctx context.Context, cfg ConsumerConfig) (jetstream.Consumer, error) {
	maxDeliver := cfg.MaxDeliver
	if maxDeliver == 0 {
		maxDeliver = 5
	}
	ackWait := cfg.AckWait
	if ackWait == 0 {
		ackWait = 30 * time.Second
	}

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		MaxDeliver:    maxDeliver,
		AckWait:       ackWait,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("creating/updating consumer %s: %w", cfg.Name, err)
	}

	c.logger.Info("consumer ensured",
		"name", cfg.Name,
		"stream", cfg.Stream,
		"filter", cfg.FilterSubject,
	)
	return consumer, nil
}

// Publisher publishes JSON payloads to JetStream subjects.
type Publisher struct {
	client *Client
	logger *slog.Logger
}

// NewPublisher creates a new publisher.
func NewPublisher(client *Client, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Publish marshals payload and publishes it to subject.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	if _, err := p.client.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	p.logger.Debug("published", "subject", subject)
	return nil
}

// Backoff is returned by a handler to request redelivery after a delay
// instead of reporting a failure. The message stays in the stream, so the
// postponement survives restarts.
type Backoff struct {
	After time.Duration
}

func (b *Backoff) Error() string {
	return fmt.Sprintf("redeliver after %s", b.After)
}

// Handler handles a raw message payload for a subject.
type Handler func(ctx context.Context, subject string, data []byte) error

// Subscriber consumes messages from a JetStream consumer.
type Subscriber struct {
	consumer jetstream.Consumer
	logger   *slog.Logger
}

// NewSubscriber creates a new subscriber.
func NewSubscriber(consumer jetstream.Consumer, logger *slog.Logger) *Subscriber {
	return &Subscriber{consumer: consumer, logger: logger}
}

// Start consumes messages until ctx is done. Handler errors NAK the message
// for redelivery.
func (s *Subscriber) Start(ctx context.Context, handler Handler) error {
	iter, err := s.consumer.Messages()
	if err != nil {
		return fmt.Errorf("getting message iterator: %w", err)
	}

	go func() {
		<-ctx.Done()
		iter.Stop()
	}()

	for {
		msg, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("error getting next message", "error", err)
			continue
		}

		if err := handler(ctx, msg.Subject(), msg.Data()); err != nil {
			var backoff *Backoff
			if errors.As(err, &backoff) {
				s.logger.Debug("message postponed",
					"subject", msg.Subject(),
					"after", backoff.After,
				)
				_ = msg.NakWithDelay(backoff.After)
				continue
			}
			s.logger.Error("error handling message",
				"error", err,
				"subject", msg.Subject(),
			)
			_ = msg.Nak()
			continue
		}

		if err := msg.Ack(); err != nil {
			s.logger.Error("error acknowledging message", "error", err)
		}
	}
}
