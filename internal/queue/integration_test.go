//go:build integration

package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

type QueueIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *QueueIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *QueueIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestQueueIntegrationSuite(t *testing.T) {
	suite.Run(t, new(QueueIntegrationSuite))
}

type testPayload struct {
	StateID        int64 `json:"state_id"`
	UpdateExisting bool  `json:"update_existing"`
}

func (s *QueueIntegrationSuite) TestEnqueueRoundTrip() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-roundtrip",
		RoutingKey: "test-rk-roundtrip",
		QueueName:  "test-queue-roundtrip",
	}

	q, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer q.Close()

	err = q.Enqueue(s.ctx, "process_import_batch", testPayload{StateID: 7, UpdateExisting: true}, 0)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)
	s.Equal("application/json", msg.ContentType)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
	s.Equal(uint8(0), msg.Priority)

	var job Job
	s.Require().NoError(json.Unmarshal(msg.Body, &job))
	s.Equal("process_import_batch", job.Name)
	s.False(job.EnqueuedAt.IsZero())

	var payload testPayload
	s.Require().NoError(json.Unmarshal(job.Payload, &payload))
	s.Equal(int64(7), payload.StateID)
	s.True(payload.UpdateExisting)
}

func (s *QueueIntegrationSuite) TestLowPriorityYields() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-priority",
		RoutingKey: "test-rk-priority",
		QueueName:  "test-queue-priority",
	}

	q, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer q.Close()

	// a low-priority continuation enqueued first must be delivered after
	// higher-priority work
	s.Require().NoError(q.Enqueue(s.ctx, "continuation", testPayload{StateID: 1}, 0))
	s.Require().NoError(q.Enqueue(s.ctx, "urgent", testPayload{StateID: 2}, 5))

	// give the broker a moment to order the backlog
	time.Sleep(500 * time.Millisecond)

	first := s.consumeMessage(cfg)
	s.Require().NotNil(first)

	var job Job
	s.Require().NoError(json.Unmarshal(first.Body, &job))
	s.Equal("urgent", job.Name)
}

func (s *QueueIntegrationSuite) TestConsumeDispatchesJobs() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-consume",
		RoutingKey: "test-rk-consume",
		QueueName:  "test-queue-consume",
	}

	q, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer q.Close()

	s.Require().NoError(q.Enqueue(s.ctx, "process_import_batch", testPayload{StateID: 3}, 0))

	received := make(chan Job, 1)
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	go func() {
		_ = q.Consume(ctx, func(_ context.Context, job Job) error {
			received <- job
			cancel()
			return nil
		})
	}()

	select {
	case job := <-received:
		s.Equal("process_import_batch", job.Name)
	case <-ctx.Done():
		s.Fail("timeout waiting for job dispatch")
	}
}

func (s *QueueIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("timeout waiting for message")
		return nil
	}
}
