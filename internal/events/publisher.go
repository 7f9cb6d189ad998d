package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Routing keys published by this service.
const (
	KeyWaitlistReserved     = "waitlist.reserved"
	KeyNewsletterSubscribed = "newsletter.subscribed"
	KeyConversationStarted  = "chat.conversation.started"
)

// Envelope is the wire shape of a published domain event.
type Envelope struct {
	ID         string          `json:"id"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher emits domain events. All call sites treat publishing as
// best-effort: a failure is logged, never propagated to the user.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
	Close() error
}

type rmqClient struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

// NewRabbit connects to RabbitMQ and declares a durable topic exchange
// for domain events.
func NewRabbit(url, exchange string, logger *slog.Logger) (Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}

	return &rmqClient{
		conn:     conn,
		exchange: exchange,
		log:      logger,
	}, nil
}

func (r *rmqClient) Publish(ctx context.Context, key string, payload any) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Key:        key,
		OccurredAt: time.Now(),
		Payload:    raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx, r.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    env.ID,
			Timestamp:    env.OccurredAt,
			Body:         body,
		},
	)
	if err == nil {
		r.log.Info("published", slog.String("key", key), slog.String("exchange", r.exchange))
	}
	return err
}

func (r *rmqClient) Close() error {
	return r.conn.Close()
}

// Noop discards events. Used when AMQP_URL is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
func (Noop) Close() error                               { return nil }
