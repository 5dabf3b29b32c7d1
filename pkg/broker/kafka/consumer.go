package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tnewman/event-gateway/pkg/broker"
	"github.com/tnewman/event-gateway/pkg/events"
)

// Consumer owns one consumer-group connection and the handlers bound to
// its topics.
//
// Records are dispatched one at a time on a single goroutine, so a slow
// handler slows consumption and records of a partition reach their handler
// in log order. Handler failures are logged and never stop the loop.
type Consumer struct {
	log       *zap.Logger
	newClient func(opts ...kgo.Opt) (groupClient, error)
	handlers  *registry

	mu     sync.Mutex
	state  broker.State
	cfg    ConnectionConfig
	client groupClient
	cancel context.CancelFunc
	done   chan struct{}
}

var _ broker.Subscriber = (*Consumer)(nil)

// NewConsumer returns an uninitialized consumer with an empty registry.
func NewConsumer(log *zap.Logger) *Consumer {
	return &Consumer{
		log:       log.Named("kafka.consumer"),
		newClient: newGroupClient,
		handlers:  newRegistry(),
	}
}

// State returns the current lifecycle state.
func (c *Consumer) State() broker.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Topics returns the registered topics in registration order.
func (c *Consumer) Topics() []string {
	return c.handlers.topics()
}

// Initialize builds the group client from cfg. It fails with a
// *ConfigurationError when cfg has no brokers. A call made while another
// Initialize is in progress is a no-op.
func (c *Consumer) Initialize(cfg ConnectionConfig) error {
	c.mu.Lock()
	switch c.state {
	case broker.StateInitializing:
		c.mu.Unlock()
		c.log.Debug("Consumer initialization already in progress")
		return nil
	case broker.StateInitialized, broker.StateConnected, broker.StateRunning:
		c.mu.Unlock()
		c.log.Debug("Consumer already initialized")
		return nil
	}
	if len(cfg.brokers) == 0 {
		c.mu.Unlock()
		c.log.Error("No Kafka brokers configured, consumer cannot start")
		return &ConfigurationError{Component: roleConsumer, Reason: "no brokers configured"}
	}
	prev := c.state
	c.state = broker.StateInitializing
	c.mu.Unlock()

	client, err := c.newClient(c.clientOpts(cfg)...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = prev
		return &ConfigurationError{Component: roleConsumer, Reason: err.Error()}
	}
	c.cfg = cfg
	c.client = client
	c.state = broker.StateInitialized
	c.log.Info("Consumer initialized",
		zap.Strings("brokers", cfg.brokers),
		zap.String("group_id", cfg.groupID),
		zap.Duration("session_timeout", cfg.sessionTimeout),
		zap.Duration("heartbeat_interval", cfg.heartbeatInterval),
	)
	return nil
}

func (c *Consumer) clientOpts(cfg ConnectionConfig) []kgo.Opt {
	return append(cfg.clientOpts(c.log),
		kgo.ConsumerGroup(cfg.groupID),
		kgo.SessionTimeout(cfg.sessionTimeout),
		kgo.HeartbeatInterval(cfg.heartbeatInterval),
		kgo.MaxConcurrentFetches(cfg.maxInFlightRequests),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.AutoCommitMarks(),
		kgo.OnPartitionsLost(c.onPartitionsLost),
	)
}

// Connect verifies broker reachability and authentication. It is a no-op
// once connected or running.
func (c *Consumer) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case broker.StateConnected, broker.StateRunning:
		c.mu.Unlock()
		return nil
	case broker.StateInitialized:
	default:
		state := c.state
		c.mu.Unlock()
		return &ConfigurationError{Component: roleConsumer, Reason: "cannot connect from state " + state.String()}
	}
	client := c.client
	c.mu.Unlock()

	connectAttempts.WithLabelValues(roleConsumer).Inc()
	brokers, err := pingBrokers(ctx, client)
	if err != nil {
		cerr := &ConnectionError{Component: roleConsumer, Cause: classifyConnectError(err), Err: err}
		connectErrors.WithLabelValues(roleConsumer, string(cerr.Cause)).Inc()
		c.log.Error("Failed to connect consumer",
			zap.String("cause", string(cerr.Cause)),
			zap.String("hint", connectHint(cerr.Cause)),
			zap.Error(err),
		)
		return cerr
	}

	c.mu.Lock()
	if c.state == broker.StateInitialized && c.client == client {
		c.state = broker.StateConnected
	}
	c.mu.Unlock()

	c.log.Info("Consumer connected", zap.Int("brokers", brokers))
	return nil
}

// Subscribe binds handler to topic, replacing any earlier handler. While
// running, the topic is also added to the live group subscription.
func (c *Consumer) Subscribe(_ context.Context, topic string, handler broker.Handler) error {
	if topic == "" {
		return &ConfigurationError{Component: roleConsumer, Reason: "topic is required"}
	}
	if handler == nil {
		return &ConfigurationError{Component: roleConsumer, Reason: "handler is required for topic " + topic}
	}

	replaced := c.handlers.set(topic, handler)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == broker.StateRunning {
		if !replaced {
			c.client.AddConsumeTopics(topic)
		}
		c.log.Info("Subscribed to topic on running consumer", zap.String("topic", topic), zap.Bool("replaced", replaced))
		return nil
	}
	c.log.Info("Handler registered, topic queued until start", zap.String("topic", topic), zap.Bool("replaced", replaced))
	return nil
}

// Start subscribes to every registered topic, reading from the earliest
// offset for a new group, and begins dispatching. With no registered topics
// it logs a warning and leaves the consumer idle.
func (c *Consumer) Start(ctx context.Context) error {
	topics := c.handlers.topics()
	if len(topics) == 0 {
		c.log.Warn("No topics registered, consumer will not start")
		return nil
	}

	if c.State() == broker.StateInitialized {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case broker.StateRunning:
		return nil
	case broker.StateConnected:
	default:
		return &ConfigurationError{Component: roleConsumer, Reason: "cannot start from state " + c.state.String()}
	}

	// topics registered since the snapshot above are picked up here too
	topics = c.handlers.topics()
	c.client.AddConsumeTopics(topics...)

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = broker.StateRunning
	go c.run(loopCtx, c.client, c.done)

	c.log.Info("Consumer started", zap.Strings("topics", topics))
	return nil
}

func (c *Consumer) run(ctx context.Context, client groupClient, done chan<- struct{}) {
	defer close(done)

	// in-flight handlers finish even after Disconnect cancels the loop
	handlerCtx := context.WithoutCancel(ctx)

	for {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.log.Error("Fetch error",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err),
			)
		})

		for iter := fetches.RecordIter(); !iter.Done(); {
			if ctx.Err() != nil {
				return
			}
			rec := iter.Next()
			_ = c.dispatch(handlerCtx, rec)
			client.MarkCommitRecords(rec)
		}
	}
}

// dispatch delivers one record to its handler. Records without a handler,
// with an empty value or with an undecodable envelope are logged and
// dropped. The returned *HandlerError has already been logged.
func (c *Consumer) dispatch(ctx context.Context, rec *kgo.Record) error {
	ctx, span := tracer.Start(ctx, "kafka.dispatch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", rec.Topic),
			attribute.Int("messaging.kafka.partition", int(rec.Partition)),
			attribute.Int64("messaging.kafka.offset", rec.Offset),
		),
	)
	defer span.End()

	log := c.log.With(
		zap.String("topic", rec.Topic),
		zap.Int32("partition", rec.Partition),
		zap.Int64("offset", rec.Offset),
	)

	h, ok := c.handlers.get(rec.Topic)
	if !ok {
		log.Warn("No handler registered for topic, discarding record")
		recordsTotal.WithLabelValues(rec.Topic, outcomeNoHandler).Inc()
		return nil
	}
	if len(rec.Value) == 0 {
		log.Warn("Empty record value, discarding record")
		recordsTotal.WithLabelValues(rec.Topic, outcomeEmpty).Inc()
		return nil
	}

	env, err := events.Open(rec.Value)
	if err != nil {
		log.Error("Failed to decode event envelope, discarding record", zap.Error(err))
		recordsTotal.WithLabelValues(rec.Topic, outcomeDecodeError).Inc()
		return nil
	}

	d := broker.Delivery{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       string(rec.Key),
		Timestamp: rec.Timestamp,
		Envelope:  env,
	}
	if err := invoke(ctx, h, d); err != nil {
		log.Error("Handler failed", zap.String("event_id", env.EventID), zap.Error(err))
		recordsTotal.WithLabelValues(rec.Topic, outcomeHandlerError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		return err
	}

	recordsTotal.WithLabelValues(rec.Topic, outcomeHandled).Inc()
	return nil
}

func invoke(ctx context.Context, h broker.Handler, d broker.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{
				Topic:     d.Topic,
				Partition: d.Partition,
				Offset:    d.Offset,
				Panic:     r,
				Err:       fmt.Errorf("panic: %v", r),
			}
		}
	}()

	if herr := h.Handle(ctx, d); herr != nil {
		return &HandlerError{Topic: d.Topic, Partition: d.Partition, Offset: d.Offset, Err: herr}
	}
	return nil
}

// onPartitionsLost fires when the group session expired or the member was
// fenced. The connection is treated as lost: the loop stops and the
// consumer waits in Disconnected for an explicit restart.
func (c *Consumer) onPartitionsLost(_ context.Context, _ *kgo.Client, lost map[string][]int32) {
	c.mu.Lock()
	if c.state != broker.StateRunning {
		c.mu.Unlock()
		return
	}
	client, cancel, done := c.client, c.cancel, c.done
	c.client, c.cancel, c.done = nil, nil, nil
	c.state = broker.StateDisconnected
	c.mu.Unlock()

	c.log.Error("Consumer group session lost, consumer disconnected", zap.Any("partitions", lost))
	cancel()
	// Close must not run inside a group callback.
	go func() {
		<-done
		client.Close()
	}()
}

// Disconnect stops the dispatch loop, waits for the in-flight handler,
// commits marked offsets and closes the client. It is a no-op when there is
// no live client.
func (c *Consumer) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case broker.StateInitialized, broker.StateConnected, broker.StateRunning:
	default:
		c.mu.Unlock()
		return nil
	}
	client, cancel, done := c.client, c.cancel, c.done
	c.client, c.cancel, c.done = nil, nil, nil
	c.state = broker.StateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			c.log.Warn("Timed out waiting for in-flight handler", zap.Error(ctx.Err()))
		}
	}

	var err error
	if done != nil {
		if err = client.CommitMarkedOffsets(ctx); err != nil {
			c.log.Warn("Failed to commit offsets on disconnect", zap.Error(err))
			err = fmt.Errorf("commit offsets: %w", err)
		}
	}
	client.Close()
	c.log.Info("Consumer disconnected")
	return err
}
