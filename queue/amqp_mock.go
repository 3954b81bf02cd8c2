package queue

import (
	"github.com/streadway/amqp"
)

// MockAMQPConnection is a mock implementation of AMQPConnection for testing.
type MockAMQPConnection struct {
	MockChannel   AMQPChannel
	ChannelErr    error
	CloseErr      error
	ChannelCalled bool
	CloseCalled   bool
}

func (m *MockAMQPConnection) Channel() (AMQPChannel, error) {
	m.ChannelCalled = true
	if m.ChannelErr != nil {
		return nil, m.ChannelErr
	}
	return m.MockChannel, nil
}

func (m *MockAMQPConnection) Close() error {
	m.CloseCalled = true
	return m.CloseErr
}

// MockAMQPChannel is a mock implementation of AMQPChannel for testing. It
// additionally lets tests feed deliveries into Consume's returned channel
// via Deliver. Ack/Nack calls on those deliveries are not recorded; the
// deliveries carry no acknowledger, so those calls return an error.
type MockAMQPChannel struct {
	PublishedMessages []amqp.Publishing
	PublishedKeys     []string
	QueueDeclareErr   error
	PublishErr        error
	ConsumeErr        error
	CloseErr          error
	CloseCalled       bool

	deliveries chan amqp.Delivery
}

func NewMockAMQPChannel() *MockAMQPChannel {
	return &MockAMQPChannel{deliveries: make(chan amqp.Delivery, 64)}
}

func (m *MockAMQPChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if m.QueueDeclareErr != nil {
		return amqp.Queue{}, m.QueueDeclareErr
	}
	return amqp.Queue{Name: name}, nil
}

func (m *MockAMQPChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.PublishedMessages = append(m.PublishedMessages, msg)
	m.PublishedKeys = append(m.PublishedKeys, key)
	return nil
}

func (m *MockAMQPChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if m.ConsumeErr != nil {
		return nil, m.ConsumeErr
	}
	return m.deliveries, nil
}

func (m *MockAMQPChannel) QueueInspect(name string) (amqp.Queue, error) {
	return amqp.Queue{Name: name, Messages: len(m.deliveries)}, nil
}

func (m *MockAMQPChannel) Qos(prefetchCount, prefetchSize int, global bool) error { return nil }

func (m *MockAMQPChannel) Close() error {
	m.CloseCalled = true
	close(m.deliveries)
	return m.CloseErr
}

// Deliver feeds a synthetic delivery to whatever Consume call is reading
// from this mock channel.
func (m *MockAMQPChannel) Deliver(d amqp.Delivery) {
	m.deliveries <- d
}

// MockAMQPDialer is a mock implementation of AMQPDialer for testing.
type MockAMQPDialer struct {
	MockConnection AMQPConnection
	DialErr        error
	DialCalled     bool
	LastURL        string
}

func (m *MockAMQPDialer) Dial(url string) (AMQPConnection, error) {
	m.DialCalled = true
	m.LastURL = url
	if m.DialErr != nil {
		return nil, m.DialErr
	}
	return m.MockConnection, nil
}

// NewMockAMQPDialer wires a mock dialer over a fresh mock channel/connection pair.
func NewMockAMQPDialer() (*MockAMQPDialer, *MockAMQPChannel) {
	ch := NewMockAMQPChannel()
	conn := &MockAMQPConnection{MockChannel: ch}
	return &MockAMQPDialer{MockConnection: conn}, ch
}
