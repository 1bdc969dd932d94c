package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/fetch"
	"github.com/civicworks/lexgraph/backend/pkg/ingest"
	"github.com/civicworks/lexgraph/backend/pkg/logger"
	"github.com/civicworks/lexgraph/backend/pkg/manifest"

	"github.com/rabbitmq/amqp091-go"
)

// IngestJob is the wire format of one queued ingestion request.
type IngestJob struct {
	Entry manifest.Entry `json:"entry"`
}

// Consumer pulls ingestion jobs off the queue, fetches the document, and
// runs the pipeline on it.
type Consumer struct {
	ch       *amqp091.Channel
	fetcher  fetch.Fetcher
	pipeline *ingest.Pipeline

	maxRetries int
}

func NewConsumer(ch *amqp091.Channel, fetcher fetch.Fetcher, pipeline *ingest.Pipeline) *Consumer {
	return &Consumer{
		ch:         ch,
		fetcher:    fetcher,
		pipeline:   pipeline,
		maxRetries: util.GetEnvInt("INGEST_QUEUE_MAX_RETRIES", 3),
	}
}

// Run consumes until ctx is cancelled. Validation failures go straight to
// the dlq; anything else retries through the delay queue until the retry
// budget runs out.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.Consume(
		IngestQueue,
		"",    // consumer
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return err
	}

	logger.Info("Ingestion consumer started", "queue", IngestQueue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("ingest queue channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	var job IngestJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		logger.Error("Dropping malformed ingest job", "err", err)
		c.deadLetter(msg)
		return
	}

	err := c.process(ctx, job)
	if err == nil {
		_ = msg.Ack(false)
		return
	}

	if errors.Is(err, ingest.ErrValidation) {
		logger.Error("Ingest job failed validation", "locator", job.Entry.Locator, "err", err)
		c.deadLetter(msg)
		return
	}

	retries := retryCount(msg)
	if retries >= c.maxRetries {
		logger.Error("Ingest job exhausted retries", "locator", job.Entry.Locator, "retries", retries, "err", err)
		c.deadLetter(msg)
		return
	}

	logger.Warn("Ingest job failed, scheduling retry", "locator", job.Entry.Locator, "attempt", retries+1, "err", err)
	headers := amqp091.Table{retryCountHeader: int32(retries + 1)}
	if pubErr := publish(c.ch, IngestRetryQueue, msg.Body, headers); pubErr != nil {
		logger.Error("Failed to publish to retry queue", "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func (c *Consumer) process(ctx context.Context, job IngestJob) error {
	text, err := c.fetcher.Fetch(ctx, job.Entry.Locator)
	if err != nil {
		return err
	}

	doc := ingest.Document{
		Locator: job.Entry.Locator,
		Text:    text,
		Meta:    job.Entry.Meta(),
	}
	_, _, _, err = c.pipeline.IngestDocument(ctx, doc)
	return err
}

func (c *Consumer) deadLetter(msg amqp091.Delivery) {
	if err := publish(c.ch, IngestDLQ, msg.Body, msg.Headers); err != nil {
		logger.Error("Failed to publish to dlq", "err", err)
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}
