package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/tnewman/event-gateway/pkg/events"
)

// Header represents a single key-value pair in a message header.
type Header struct {
	Key   string
	Value []byte
}

// Message is a broker-agnostic representation of an inbound record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []Header
	Timestamp time.Time
}

// Delivery is what a Handler receives: the decoded envelope plus the
// topic/partition context it was read from.
type Delivery struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       string
	Timestamp time.Time
	Envelope  events.RawEnvelope
}

// DecodeDelivery decodes the envelope payload of d into T.
func DecodeDelivery[T any](d Delivery) (events.Envelope[T], error) {
	env, err := events.Decode[T](d.Envelope)
	if err != nil {
		return env, fmt.Errorf("%s[%d]@%d: %w", d.Topic, d.Partition, d.Offset, err)
	}
	return env, nil
}

// DeliveryAck is the per-partition metadata the broker returns for a
// successful write.
type DeliveryAck struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// BatchEntry is one record of a heterogeneous batch publish.
type BatchEntry struct {
	Topic   string
	Payload any
	Key     string
}

// Handler processes deliveries for one topic.
type Handler interface {
	Handle(ctx context.Context, d Delivery) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, d Delivery) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}

// Publisher publishes payloads to topics.
type Publisher interface {
	// Publish sends payload to topic. An optional key drives partition assignment.
	Publish(ctx context.Context, topic string, payload any, key ...string) (DeliveryAck, error)
	// PublishBatch sends every entry and fails if any single send fails.
	PublishBatch(ctx context.Context, entries []BatchEntry) ([]DeliveryAck, error)
}

// Subscriber binds handlers to topics.
type Subscriber interface {
	// Subscribe registers handler for topic, replacing any previous handler.
	Subscribe(ctx context.Context, topic string, handler Handler) error
}
