// Package events publishes domain events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"hearth/internal/middleware"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys.
const (
	UserRegistered    = "user.registered"
	UserFollowed      = "user.followed"
	GroupCreated      = "group.created"
	PostCreated       = "post.created"
	ChatMessageSent   = "chat.message.sent"
	RefreshTokenReuse = "auth.refresh.reuse"
)

// Envelope is the JSON body of every published event.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	RequestID  string    `json:"requestId,omitempty"`
	Data       any       `json:"data"`
}

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher, or a noop publisher when the URL
// is empty or the broker cannot be reached.
func NewPublisher(amqpURL, exchange string) Publisher {
	log := middleware.Component("events")
	if amqpURL == "" {
		return NewNoop("empty amqp url")
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Warn("rabbitmq disabled, using noop", slog.String("error", err.Error()))
		return NewNoop(err.Error())
	}
	ch, err := conn.Channel()
	if err != nil {
		log.Warn("rabbitmq disabled, using noop", slog.String("error", err.Error()))
		_ = conn.Close()
		return NewNoop(err.Error())
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Warn("rabbitmq disabled, using noop", slog.String("error", err.Error()))
		_ = ch.Close()
		_ = conn.Close()
		return NewNoop(err.Error())
	}

	log.Info("rabbitmq connected", slog.String("exchange", exchange))
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
}

// NewNoop returns a Publisher that only logs at debug level.
func NewNoop(reason string) Publisher {
	return noopPublisher{reason: reason}
}

func (p noopPublisher) Publish(ctx context.Context, routingKey string, _ any) error {
	middleware.Logger.DebugContext(ctx, "noop publish",
		slog.String("routing_key", routingKey),
		slog.String("reason", p.reason),
	)
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// Mode reports the publisher mode for logging.
func Mode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// Emit wraps data in an Envelope and publishes it. Failures are logged and
// never returned; events are best-effort notifications.
func Emit(ctx context.Context, p Publisher, routingKey string, data any) {
	if p == nil {
		return
	}
	env := Envelope{Type: routingKey, OccurredAt: time.Now().UTC(), Data: data}
	if rid, ok := ctx.Value(middleware.RequestIDKey).(string); ok {
		env.RequestID = rid
	}
	if err := p.Publish(ctx, routingKey, env); err != nil {
		middleware.Logger.WarnContext(ctx, "event publish failed",
			slog.String("routing_key", routingKey),
			slog.String("error", err.Error()),
		)
	}
}
