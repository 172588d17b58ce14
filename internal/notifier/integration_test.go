//go:build integration

package notifier

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

	"highlight_courier/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
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

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) TestNotifier_Connection() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange",
		RoutingKey: "test-routing-key",
		QueueName:  "test-queue",
	}

	n, err := NewRabbitMQ(cfg, s.logger)
	s.NoError(err)
	s.NotNil(n)

	s.NoError(n.Close())
}

func (s *RabbitMQIntegrationSuite) TestNotifier_DeliverRoundTrip() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-deliver",
		RoutingKey: "test-routing-key-deliver",
		QueueName:  "test-queue-deliver",
	}

	n, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer n.Close()

	deliverable := &domain.Deliverable{
		Highlights: []domain.Highlight{
			{ID: "h1", SourceID: "s1", Text: "First.", Category: domain.CategoryQuote},
			{ID: "h2", SourceID: "s1", Text: "Second.", Category: domain.CategoryIdea},
		},
		Recipient:   "reader@example.com",
		RenderHints: map[string]string{"mode": "spaced-repetition"},
	}

	result, err := n.Deliver(s.ctx, deliverable)
	s.Require().NoError(err)
	s.Equal(domain.DeliverySent, result.Status)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)
	s.Equal("application/json", msg.ContentType)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

	var received DeliverableMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal("reader@example.com", received.Deliverable.Recipient)
	s.Len(received.Deliverable.Highlights, 2)
	s.Equal("h1", received.Deliverable.Highlights[0].ID)
	s.Equal("spaced-repetition", received.Deliverable.RenderHints["mode"])
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
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
		s.Fail("Timeout waiting for message")
		return nil
	}
}
