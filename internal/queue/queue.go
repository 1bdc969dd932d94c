package queue

import (
	"fmt"
	"time"

	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// IngestQueue carries one ingestion job per message. Failed jobs bounce
// through the retry queue (with a TTL that dead-letters back here) and land
// in the dlq once retries are exhausted.
const (
	IngestQueue      = "ingest_queue"
	IngestRetryQueue = "ingest_queue_retry"
	IngestDLQ        = "ingest_queue_dlq"

	retryCountHeader = "x-retry-count"
)

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnv("RABBITMQ_PORT")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

func SetupQueues(ch *amqp091.Channel) error {
	_, err := ch.QueueDeclare(
		IngestQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("declare %s: %w", IngestQueue, err)
	}

	_, err = ch.QueueDeclare(
		IngestDLQ,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare %s: %w", IngestDLQ, err)
	}

	retryTTL := util.GetEnvDuration("INGEST_RETRY_DELAY", 10*time.Second)
	_, err = ch.QueueDeclare(
		IngestRetryQueue,
		true,
		false,
		false,
		false,
		amqp091.Table{
			"x-message-ttl":             int32(retryTTL.Milliseconds()),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": IngestQueue,
		},
	)
	if err != nil {
		return fmt.Errorf("declare %s: %w", IngestRetryQueue, err)
	}

	return nil
}

func Publish(ch *amqp091.Channel, queueName string, data []byte) error {
	return publish(ch, queueName, data, nil)
}

func publish(ch *amqp091.Channel, queueName string, data []byte, headers amqp091.Table) error {
	return ch.Publish(
		"",
		queueName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Headers:      headers,
		},
	)
}

func retryCount(msg amqp091.Delivery) int {
	if msg.Headers == nil {
		return 0
	}
	switch v := msg.Headers[retryCountHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
