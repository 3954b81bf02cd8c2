package queue

import (
	"context"

	"github.com/streadway/amqp"

	"twine.work/twineerr"
)

// Message is one broker delivery, reduced to what the dispatch loop's
// resolve-by-content-type contract needs (§4.4): subject is carried in
// the AMQP message headers as "subject" when present.
type Message struct {
	ContentType string
	Body        []byte
	Subject     string

	delivery amqp.Delivery
}

// Config configures the broker connection.
type Config struct {
	URL       string
	QueueName string
	Prefetch  int
}

// Broker is the blocking pull/ack/reject contract the dispatch loop
// drives: Next blocks for the next delivery (or until the underlying
// channel closes), Ack/Reject settle it. Built over the AMQPDialer seam
// so tests substitute a mock dialer/channel pair.
type Broker struct {
	conn     AMQPConnection
	channel  AMQPChannel
	queue    string
	messages <-chan amqp.Delivery
}

// Dial connects, opens a channel, declares the queue durable, and sets
// QoS, mirroring the reference codebase's Consumer.Connect sequence.
func Dial(cfg Config, dialer AMQPDialer) (*Broker, error) {
	if dialer == nil {
		dialer = &RealAMQPDialer{}
	}
	conn, err := dialer.Dial(cfg.URL)
	if err != nil {
		return nil, twineerr.New(twineerr.UpstreamFailure, "queue.Dial", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, twineerr.New(twineerr.UpstreamFailure, "queue.Dial", err)
	}
	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, twineerr.New(twineerr.UpstreamFailure, "queue.Dial", err)
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, twineerr.New(twineerr.UpstreamFailure, "queue.Dial", err)
	}
	return &Broker{conn: conn, channel: ch, queue: cfg.QueueName}, nil
}

// Listen begins consuming; Next will block until a delivery or cancellation.
func (b *Broker) Listen(consumerTag string) error {
	msgs, err := b.channel.Consume(b.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return twineerr.New(twineerr.UpstreamFailure, "queue.Listen", err)
	}
	b.messages = msgs
	return nil
}

// Next blocks for the next message, or returns (nil, false, nil) if ctx
// is cancelled first or the delivery channel closes — the wake mechanism the dispatch loop uses
// to unblock at a shutdown boundary (per the REDESIGN FLAGS note
// preferring a cancellation token over relying on signal-interrupted I/O).
func (b *Broker) Next(ctx context.Context) (*Message, bool, error) {
	select {
	case d, ok := <-b.messages:
		if !ok {
			return nil, false, nil
		}
		return &Message{
			ContentType: d.ContentType,
			Body:        d.Body,
			Subject:     subjectFromHeaders(d.Headers),
			delivery:    d,
		}, true, nil
	case <-ctx.Done():
		return nil, false, nil
	}
}

func subjectFromHeaders(headers amqp.Table) string {
	if headers == nil {
		return ""
	}
	if v, ok := headers["subject"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Ack acknowledges successful processing of msg.
func (b *Broker) Ack(msg *Message) error {
	if err := msg.delivery.Ack(false); err != nil {
		return twineerr.New(twineerr.UpstreamFailure, "queue.Ack", err)
	}
	return nil
}

// Reject rejects msg; requeue controls whether the broker redelivers it.
func (b *Broker) Reject(msg *Message, requeue bool) error {
	if err := msg.delivery.Nack(false, requeue); err != nil {
		return twineerr.New(twineerr.UpstreamFailure, "queue.Reject", err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (b *Broker) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
	return nil
}
