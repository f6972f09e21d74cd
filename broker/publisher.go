// Package broker publishes registration lifecycle messages for downstream
// consumers such as the confirmation mailer.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	RegistrationCreated   = "registration.created"
	RegistrationConfirmed = "registration.confirmed"
	RegistrationCancelled = "registration.cancelled"
	RegistrationRefunded  = "registration.refunded"
)

// RegistrationMessage is the JSON body of every lifecycle message.
type RegistrationMessage struct {
	Type               string    `json:"type"`
	RegistrationID     uint      `json:"registrationId"`
	RegistrationNumber string    `json:"registrationNumber"`
	EventID            uint      `json:"eventId"`
	UserID             string    `json:"userId"`
	Status             string    `json:"status"`
	PaymentStatus      string    `json:"paymentStatus"`
	TotalAmount        int64     `json:"totalAmount"`
	OccurredAt         time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, msg RegistrationMessage) error
	Close()
}

// Noop drops messages. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, RegistrationMessage) error { return nil }
func (Noop) Close()                                            {}

// Rabbit publishes to a durable topic exchange, routed by message type.
type Rabbit struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewRabbit(url, exchange string) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	log.Info().Str("exchange", exchange).Msg("RabbitMQ publisher initialized")
	return &Rabbit{conn: conn, channel: ch, exchange: exchange}, nil
}

func (r *Rabbit) Publish(ctx context.Context, msg RegistrationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Type, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.channel.PublishWithContext(ctx,
		r.exchange,
		msg.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    msg.OccurredAt,
			MessageId:    fmt.Sprintf("%s:%d", msg.Type, msg.RegistrationID),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	log.Debug().Str("routing_key", msg.Type).Uint("registration_id", msg.RegistrationID).Msg("message published")
	return nil
}

func (r *Rabbit) Close() {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
	log.Info().Msg("RabbitMQ connection closed")
}
