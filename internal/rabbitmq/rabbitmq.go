// Package rabbitmq publishes order events to an AMQP topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-pcparts-orders/internal/orders"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const ExchangeType = "topic"

// Connect dials with a few retries (the broker may still be starting) and
// declares the durable orders exchange.
func Connect(url string, attempts int) (*amqp.Connection, *amqp.Channel, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("rabbitmq dial failed")
		if i < attempts-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		orders.ExchangeOrders, // name
		ExchangeType,          // type
		true,                  // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, ch, nil
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	ch channel
}

func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// PublishEvent implements orders.Publisher. Routing key: order.<event>.
func (p *Publisher) PublishEvent(ctx context.Context, ev orders.Envelope) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return p.ch.PublishWithContext(ctx,
		orders.ExchangeOrders,
		orders.RoutingKey(ev.EventType),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     ev.EventID,
			CorrelationId: ev.CorrelationID,
			Type:          ev.EventType,
			Timestamp:     ev.OccurredAt,
			AppId:         ev.Producer,
			Headers:       amqp.Table{"x-event-version": strconv.Itoa(ev.EventVersion)},
			Body:          body,
		},
	)
}
