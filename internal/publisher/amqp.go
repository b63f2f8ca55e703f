package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/streamforge/encoding-service/internal/config"
	"github.com/streamforge/encoding-service/pkg/models"
)

const (
	// EncodeQueueName is the durable queue the worker fleet consumes.
	EncodeQueueName = "encode_jobs"
	// ExchangeName is the direct exchange encode jobs are routed through.
	ExchangeName = "encoding"
)

// AMQPPublisher publishes encode jobs to RabbitMQ. AMQP assigns no message
// id on publish, so one is generated locally and attached as the message id
// header for audit.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPPublisher connects to RabbitMQ and declares the encode exchange,
// queue and binding.
func NewAMQPPublisher(cfg config.BrokerConfig) (*AMQPPublisher, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.AMQPUser, cfg.AMQPPassword, cfg.AMQPHost, cfg.AMQPPort, cfg.AMQPVhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = channel.QueueDeclare(
		EncodeQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = channel.QueueBind(
		EncodeQueueName,
		EncodeQueueName,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &AMQPPublisher{
		conn:    conn,
		channel: channel,
	}, nil
}

// Publish publishes an encode job as a persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, msg *models.EncodeJobMessage) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", &PublishError{Err: fmt.Errorf("failed to marshal job message: %w", err)}
	}

	messageID := uuid.New().String()

	err = p.channel.PublishWithContext(ctx,
		ExchangeName,
		EncodeQueueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    messageID,
			Body:         body,
			Timestamp:    time.Now(),
			Headers: amqp.Table{
				"videoId": msg.VideoID,
				"jobId":   msg.JobID,
			},
		},
	)
	if err != nil {
		return "", &PublishError{Err: fmt.Errorf("failed to publish job: %w", err)}
	}

	return messageID, nil
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
