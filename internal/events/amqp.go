package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

const Exchange = "consultations"

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher sends events to a durable topic exchange, routed by
// lower-cased event type (e.g. "consultation_booked").
type AMQPPublisher struct {
	mu sync.Mutex
	ch Channel
}

func NewAMQPPublisher(ch Channel) *AMQPPublisher {
	return &AMQPPublisher{ch: ch}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	const op = "events.AMQPPublisher.Publish"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.Publish(Exchange, RoutingKey(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ConsultationID.String(),
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func RoutingKey(eventType string) string {
	return strings.ToLower(eventType)
}

// Retrier runs fn with bounded attempts. db.RetryPolicy satisfies it.
type Retrier interface {
	Do(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

var dialAMQP = amqp.DialConfig

const dialTimeout = 30 * time.Second

func dialConfig(ctx context.Context) amqp.Config {
	return amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: dialTimeout}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			// cleared by the client once the handshake completes
			if err := conn.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
				_ = conn.Close()
				return nil, err
			}
			return conn, nil
		},
	}
}

// Dial connects to the broker under retry and declares the exchange.
func Dial(ctx context.Context, url string, retry Retrier) (*amqp.Connection, *amqp.Channel, error) {
	const op = "events.Dial"

	var conn *amqp.Connection
	err := retry.Do(ctx, "rabbitmq", func(ctx context.Context) error {
		c, err := dialAMQP(url, dialConfig(ctx))
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%s: open channel: %w", op, err)
	}

	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%s: declare exchange: %w", op, err)
	}

	return conn, ch, nil
}
