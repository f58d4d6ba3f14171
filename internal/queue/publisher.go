package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"aiprofile/internal/domain"
)

// retryCountHeader carries the job's delivery attempt counter. The initial
// publish sets it to zero; any out-of-band republish bumps it.
const retryCountHeader = "x-retry-count"

// Publisher enqueues job requests with persistent delivery and broker
// confirms. The API server uses it for the asynchronous submission path.
type Publisher struct {
	mu        sync.Mutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	confirms  chan amqp.Confirmation
	queueName string
}

// NewPublisher connects to the broker, declares the durable job queue, and
// enables publish confirmations.
func NewPublisher(url, queueName string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return &Publisher{
		conn:      conn,
		channel:   ch,
		confirms:  ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		queueName: queueName,
	}, nil
}

// Publish enqueues one job request and waits for the broker confirm.
// Publishes are serialized: the channel and its confirm stream are shared,
// and an interleaved publish would consume another caller's confirm.
func (p *Publisher) Publish(ctx context.Context, req *domain.JobRequest) error {
	msg, err := newPublishing(req)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(
		ctx,
		"",          // default exchange
		p.queueName, // routing key
		false,
		false,
		msg,
	)
	if err != nil {
		return fmt.Errorf("publish job %s: %w", req.ID, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case confirmed := <-p.confirms:
		if !confirmed.Ack {
			return fmt.Errorf("publish job %s: broker nacked", req.ID)
		}
	}
	return nil
}

func newPublishing(req *domain.JobRequest) (amqp.Publishing, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode job request: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    req.ID,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{retryCountHeader: int32(0)},
		Body:         body,
	}, nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
