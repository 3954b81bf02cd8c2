package queue

import (
	"context"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerNextReturnsDeliveredMessage(t *testing.T) {
	dialer, mockCh := NewMockAMQPDialer()
	b, err := Dial(Config{URL: "amqp://test", QueueName: "graphs"}, dialer)
	require.NoError(t, err)
	require.NoError(t, b.Listen(""))

	mockCh.Deliver(amqp.Delivery{ContentType: "application/n-triples", Body: []byte("<a> <b> <c> .")})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok, err := b.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "application/n-triples", msg.ContentType)
}

func TestBrokerNextUnblocksOnContextCancellation(t *testing.T) {
	dialer, _ := NewMockAMQPDialer()
	b, err := Dial(Config{URL: "amqp://test", QueueName: "graphs"}, dialer)
	require.NoError(t, err)
	require.NoError(t, b.Listen(""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := b.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
