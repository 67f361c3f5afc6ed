package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memorylane/internal/domain"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(ch *fakeChannel) *Publisher {
	return &Publisher{
		open:     func() (publishChannel, error) { return ch, nil },
		exchange: DefaultExchange,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "generation.succeeded", RoutingKey(domain.OutcomeSucceeded))
	assert.Equal(t, "generation.failed", RoutingKey(domain.OutcomeFailed))
}

func TestPublishOutcome(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	o := domain.DeliveryOutcome{JobID: "job-1", Channel: "C1", Status: domain.OutcomeFailed, Error: "boom"}
	require.NoError(t, p.PublishOutcome(context.Background(), o))

	assert.Equal(t, DefaultExchange, ch.exchange)
	assert.Equal(t, "generation.failed", ch.key)
	assert.True(t, ch.closed)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "job-1", ch.msg.CorrelationId)
	assert.NotEmpty(t, ch.msg.MessageId)

	var env Envelope
	require.NoError(t, json.Unmarshal(ch.msg.Body, &env))
	assert.Equal(t, ch.msg.MessageId, env.ID)
	assert.Equal(t, "generation.failed", env.Type)
	assert.Equal(t, "job-1", env.Payload.JobID)
	assert.Equal(t, "boom", env.Payload.Error)
}

func TestPublishOutcome_BrokerError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel/connection is not open")}
	p := newTestPublisher(ch)

	err := p.PublishOutcome(context.Background(), domain.DeliveryOutcome{JobID: "j", Status: domain.OutcomeSucceeded})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation.succeeded")
	assert.True(t, ch.closed)
}

func TestBuildPublishing_Timestamp(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, err := buildPublishing(domain.DeliveryOutcome{JobID: "j", Status: domain.OutcomeSucceeded}, now)
	require.NoError(t, err)
	assert.Equal(t, now, msg.Timestamp)
	assert.Equal(t, "generation.succeeded", msg.Type)
}

func TestClose_WithoutConnection(t *testing.T) {
	assert.NoError(t, (&Publisher{}).Close())
}
