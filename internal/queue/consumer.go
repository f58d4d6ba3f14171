// Package queue connects the worker to RabbitMQ. The consumer takes one
// message at a time and resolves every delivery exactly once: ack after the
// success record is persisted, reject without requeue on any failure.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"aiprofile/internal/domain"
	"aiprofile/internal/infra"
)

// JobService executes jobs and records their outcomes.
type JobService interface {
	Execute(ctx context.Context, req *domain.JobRequest) ([]string, error)
	RecordFailure(ctx context.Context, jobID string, err error) domain.Kind
}

// StatusStore mirrors job progress for the HTTP status endpoint. It is
// advisory: its errors are logged, never propagated.
type StatusStore interface {
	MarkRunning(ctx context.Context, jobID string) error
	MarkDone(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, kind domain.Kind, detail string) error
}

const reconnectBackoff = 5 * time.Second

// Consumer is the worker's queue loop.
type Consumer struct {
	url       string
	queueName string
	service   JobService
	status    StatusStore
	logger    infra.Logger
}

// NewConsumer creates a consumer for the named queue.
func NewConsumer(url, queueName string, service JobService, status StatusStore, logger infra.Logger) *Consumer {
	return &Consumer{
		url:       url,
		queueName: queueName,
		service:   service,
		status:    status,
		logger:    logger,
	}
}

// Run consumes until ctx is cancelled, reconnecting with a fixed backoff
// when the broker connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Dur("backoff", reconnectBackoff).Msg("queue: connection lost, reconnecting")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectBackoff):
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// One unacked message at a time keeps job memory bounded and lets the
	// broker redistribute work across workers.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	tag := "aiprofile-worker-" + uuid.NewString()[:8]
	deliveries, err := ch.Consume(
		c.queueName,
		tag,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}
	c.logger.Info().Str("queue", c.queueName).Str("consumer", tag).Msg("queue: consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery processes one message and resolves it exactly once. A
// panic anywhere in the job is converted into a rejected delivery with a
// persisted failure record.
//
// The job runs detached from the consume loop's context: there is no
// mid-job cancellation, so a shutdown signal must not abort the in-flight
// job's HTTP calls and dead-letter a healthy message. The loop exits after
// the delivery is resolved.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	ctx = context.WithoutCancel(ctx)
	resolved := false
	reject := func() {
		if resolved {
			return
		}
		resolved = true
		if err := d.Reject(false); err != nil {
			c.logger.Error().Err(err).Msg("queue: reject failed")
		}
	}
	jobID := domain.UnknownJobID

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("job panicked: %v", r)
			c.logger.Error().Str("job_id", jobID).Msg(err.Error())
			kind := c.service.RecordFailure(ctx, jobID, err)
			c.markFailed(ctx, jobID, kind, err)
			reject()
		}
	}()

	req, err := domain.DecodeJobRequest(d.Body)
	if err != nil {
		jobID = recoverJobID(d.Body)
		kind := c.service.RecordFailure(ctx, jobID, err)
		c.markFailed(ctx, jobID, kind, err)
		reject()
		return
	}
	jobID = req.ID
	c.logger.Info().Str("job_id", jobID).Int("retry", retryCount(d)).Msg("queue: job received")

	if serr := c.status.MarkRunning(ctx, jobID); serr != nil {
		c.logger.Warn().Err(serr).Str("job_id", jobID).Msg("queue: status update failed")
	}

	if _, err := c.service.Execute(ctx, req); err != nil {
		kind := c.service.RecordFailure(ctx, jobID, err)
		c.markFailed(ctx, jobID, kind, err)
		reject()
		return
	}

	if serr := c.status.MarkDone(ctx, jobID); serr != nil {
		c.logger.Warn().Err(serr).Str("job_id", jobID).Msg("queue: status update failed")
	}
	resolved = true
	if err := d.Ack(false); err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("queue: ack failed")
	}
}

func (c *Consumer) markFailed(ctx context.Context, jobID string, kind domain.Kind, err error) {
	if serr := c.status.MarkFailed(ctx, jobID, kind, err.Error()); serr != nil {
		c.logger.Warn().Err(serr).Str("job_id", jobID).Msg("queue: status update failed")
	}
}

// retryCount reads the delivery attempt counter set by the publisher. A
// message without the header that the broker flags as redelivered counts
// as one prior attempt.
func retryCount(d amqp.Delivery) int {
	if v, ok := d.Headers[retryCountHeader]; ok {
		switch n := v.(type) {
		case int32:
			return int(n)
		case int64:
			return int(n)
		case int:
			return n
		}
	}
	if d.Redelivered {
		return 1
	}
	return 0
}

// recoverJobID salvages the id field from a message that failed full
// decoding, so the failure record can still point at the job.
func recoverJobID(body []byte) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.ID == "" {
		return domain.UnknownJobID
	}
	return probe.ID
}
