package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the outbound half of the bus as seen by the gateway.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) error
}

// Bus is an AMQP client for the device command and response topics.
// It is constructed once by the composition root and injected into
// the gateway; there is no package-level connection. Publishes are
// fire-and-forget: no confirms, no retries. Lost commands are healed
// by the STATE snapshot resync, not by redelivery.
type Bus struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialBus connects to the broker and opens a channel for publishing.
func DialBus(url string) (*Bus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &Bus{conn: conn, ch: ch}, nil
}

// Publish sends one frame to the topic via the default exchange. The
// queue is declared on every publish so device simulators may attach
// in any order; the declaration is idempotent.
func (b *Bus) Publish(ctx context.Context, topic, payload string) error {
	if _, err := b.ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return b.ch.PublishWithContext(ctx,
		"",    // default exchange
		topic, // routing key = queue name
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "text/plain",
			Timestamp:   time.Now().UTC(),
			Body:        []byte(payload),
		})
}

func (b *Bus) Close() error {
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// StartConsumer connects to the broker, declares the response topic
// and feeds every delivery to handle. It runs a reconnect loop with
// exponential backoff and returns only when the context is
// cancelled. Deliveries are auto-acked: the transport is at-most-once
// and a message lost mid-handling is indistinguishable from one lost
// on the wire.
func StartConsumer(ctx context.Context, url, topic string, handle func(payload []byte)) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("device-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(ctx, conn, topic, handle); err != nil {
			log.Printf("device-consumer: consume loop ended: %v; reconnecting", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, topic string, handle func(payload []byte)) error {
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(topic, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			handle(d.Body)
		}
	}
}
