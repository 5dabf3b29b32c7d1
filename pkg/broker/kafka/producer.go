package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tnewman/event-gateway/pkg/broker"
)

var errProducerDisconnected = errors.New("producer is disconnected, call Connect to reconnect")

// Producer owns one outbound Kafka connection.
//
// A Producer starts Uninitialized. Initialize with zero brokers leaves it
// Uninitialized and every publish fails with a SendError; the hosting process
// keeps running with Kafka publishing disabled.
type Producer struct {
	log       *zap.Logger
	newClient func(opts ...kgo.Opt) (produceClient, error)
	clock     sendClock

	// connectMu serializes connection attempts, including lazy ones.
	connectMu sync.Mutex

	mu     sync.Mutex
	state  broker.State
	cfg    ConnectionConfig
	client produceClient
}

var _ broker.Publisher = (*Producer)(nil)

// NewProducer returns an uninitialized producer.
func NewProducer(log *zap.Logger) *Producer {
	return &Producer{
		log:       log.Named("kafka.producer"),
		newClient: newProduceClient,
	}
}

// State returns the current lifecycle state.
func (p *Producer) State() broker.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Initialize builds the client from cfg. It performs no network I/O.
func (p *Producer) Initialize(cfg ConnectionConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case broker.StateInitialized, broker.StateConnected:
		p.log.Debug("Producer already initialized", zap.Stringer("state", p.state))
		return nil
	}

	if len(cfg.brokers) == 0 {
		p.log.Warn("No Kafka brokers configured, producer disabled")
		return &ConfigurationError{Component: roleProducer, Reason: "no brokers configured"}
	}

	client, err := p.newClient(p.clientOpts(cfg)...)
	if err != nil {
		return &ConfigurationError{Component: roleProducer, Reason: err.Error()}
	}

	p.cfg = cfg
	p.client = client
	p.state = broker.StateInitialized
	p.log.Info("Producer initialized",
		zap.Strings("brokers", cfg.brokers),
		zap.String("client_id", cfg.clientID),
		zap.String("sasl_mechanism", cfg.mechanismName()),
	)
	return nil
}

func (p *Producer) clientOpts(cfg ConnectionConfig) []kgo.Opt {
	return append(cfg.clientOpts(p.log),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
	)
}

// Connect verifies broker reachability and authentication. It is a no-op
// when already connected. From Disconnected it rebuilds the client from the
// stored configuration first.
//
// A failure leaves the producer unconnected and is returned as a
// *ConnectionError; callers are expected to log it and carry on.
func (p *Producer) Connect(ctx context.Context) error {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	p.mu.Lock()
	switch p.state {
	case broker.StateConnected:
		p.mu.Unlock()
		return nil
	case broker.StateUninitialized:
		p.mu.Unlock()
		return &ConfigurationError{Component: roleProducer, Reason: "not initialized"}
	case broker.StateDisconnected:
		client, err := p.newClient(p.clientOpts(p.cfg)...)
		if err != nil {
			p.mu.Unlock()
			return &ConfigurationError{Component: roleProducer, Reason: err.Error()}
		}
		p.client = client
		p.state = broker.StateInitialized
	}
	client, seeds := p.client, p.cfg.brokers
	p.mu.Unlock()

	connectAttempts.WithLabelValues(roleProducer).Inc()
	p.log.Info("Connecting producer", zap.Strings("brokers", seeds))

	brokers, err := pingBrokers(ctx, client)
	if err != nil {
		cerr := &ConnectionError{Component: roleProducer, Cause: classifyConnectError(err), Err: err}
		connectErrors.WithLabelValues(roleProducer, string(cerr.Cause)).Inc()
		p.log.Error("Failed to connect producer",
			zap.String("cause", string(cerr.Cause)),
			zap.String("hint", connectHint(cerr.Cause)),
			zap.Error(err),
		)
		return cerr
	}

	p.mu.Lock()
	p.state = broker.StateConnected
	p.mu.Unlock()

	p.log.Info("Producer connected", zap.Int("brokers", brokers))
	return nil
}

// ready returns a connected client, connecting lazily from Initialized.
func (p *Producer) ready(ctx context.Context) (produceClient, error) {
	p.mu.Lock()
	state, client := p.state, p.client
	p.mu.Unlock()

	switch state {
	case broker.StateConnected:
		return client, nil
	case broker.StateInitialized:
		if err := p.Connect(ctx); err != nil {
			return nil, err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.state != broker.StateConnected {
			return nil, errProducerDisconnected
		}
		return p.client, nil
	case broker.StateDisconnected:
		return nil, errProducerDisconnected
	default:
		return nil, errNotInitialized
	}
}

// Publish sends payload to topic and waits for the broker acknowledgement.
// Strings, byte slices and json.RawMessage are sent as is; anything else is
// JSON encoded.
func (p *Producer) Publish(ctx context.Context, topic string, payload any, key ...string) (broker.DeliveryAck, error) {
	ctx, span := tracer.Start(ctx, "kafka.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("messaging.destination.name", topic)),
	)
	defer span.End()

	ack, err := p.publish(ctx, topic, payload, key)
	if err != nil {
		publishTotal.WithLabelValues(topic, resultError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return broker.DeliveryAck{}, &SendError{Topic: topic, Err: err}
	}

	publishTotal.WithLabelValues(topic, resultOK).Inc()
	span.SetAttributes(
		attribute.Int("messaging.kafka.partition", int(ack.Partition)),
		attribute.Int64("messaging.kafka.offset", ack.Offset),
	)
	return ack, nil
}

func (p *Producer) publish(ctx context.Context, topic string, payload any, key []string) (broker.DeliveryAck, error) {
	if topic == "" {
		return broker.DeliveryAck{}, errors.New("topic is required")
	}
	value, err := serialize(payload)
	if err != nil {
		return broker.DeliveryAck{}, err
	}

	client, err := p.ready(ctx)
	if err != nil {
		return broker.DeliveryAck{}, err
	}

	rec := &kgo.Record{
		Topic:     topic,
		Value:     value,
		Timestamp: p.clock.next(),
	}
	if len(key) > 0 && key[0] != "" {
		rec.Key = []byte(key[0])
	}

	start := time.Now()
	r, err := client.ProduceSync(ctx, rec).First()
	publishLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		p.log.Error("Failed to publish record", zap.String("topic", topic), zap.Error(err))
		return broker.DeliveryAck{}, err
	}

	p.log.Debug("Record published",
		zap.String("topic", r.Topic),
		zap.Int32("partition", r.Partition),
		zap.Int64("offset", r.Offset),
	)
	return broker.DeliveryAck{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Timestamp: r.Timestamp,
	}, nil
}

// PublishBatch publishes every entry concurrently. It waits for all sends to
// settle and succeeds only if each one did. On failure the returned
// *SendError wraps every individual failure in entry order.
func (p *Producer) PublishBatch(ctx context.Context, entries []broker.BatchEntry) ([]broker.DeliveryAck, error) {
	ctx, span := tracer.Start(ctx, "kafka.publish_batch",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(entries))),
	)
	defer span.End()

	acks := make([]broker.DeliveryAck, len(entries))
	errs := make([]error, len(entries))

	var g errgroup.Group
	for i, e := range entries {
		g.Go(func() error {
			acks[i], errs[i] = p.Publish(ctx, e.Topic, e.Payload, e.Key)
			return nil
		})
	}
	_ = g.Wait()

	if err := multierr.Combine(errs...); err != nil {
		failed := len(multierr.Errors(err))
		p.log.Error("Batch publish failed",
			zap.Int("entries", len(entries)),
			zap.Int("failed", failed),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d sends failed", failed, len(entries)))
		return nil, &SendError{Err: err}
	}
	return acks, nil
}

// Disconnect flushes and closes the client. It is a no-op unless the
// producer holds a client.
func (p *Producer) Disconnect(ctx context.Context) error {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	p.mu.Lock()
	if p.state != broker.StateInitialized && p.state != broker.StateConnected {
		p.mu.Unlock()
		return nil
	}
	client := p.client
	p.client = nil
	p.state = broker.StateDisconnected
	p.mu.Unlock()

	var err error
	if ferr := client.Flush(ctx); ferr != nil {
		p.log.Warn("Failed to flush producer before close", zap.Error(ferr))
		err = fmt.Errorf("flush: %w", ferr)
	}
	client.Close()
	p.log.Info("Producer disconnected")
	return err
}

func serialize(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}
	return b, nil
}

// sendClock hands out strictly increasing millisecond timestamps.
type sendClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (c *sendClock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	t := now().Truncate(time.Millisecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}
