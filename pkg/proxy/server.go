package proxy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tnewman/event-gateway/pkg/broker"
	"github.com/tnewman/event-gateway/pkg/broker/kafka"
	"github.com/tnewman/event-gateway/pkg/events"
)

// DefaultMaxPendingPublishes bounds concurrent publishes when no limit is configured.
const DefaultMaxPendingPublishes = 100

// PublishProxyService wraps request payloads in an event envelope and
// publishes them to a known topic.
type PublishProxyService struct {
	publisher broker.Publisher
	logger    *zap.Logger

	// slots is a semaphore over in-flight publishes.
	slots chan struct{}
}

var _ PublishProxyServer = (*PublishProxyService)(nil)

// NewPublishProxyServer creates the PublishProxy service. Requests beyond
// maxPendingPublishes concurrent publishes are rejected with ResourceExhausted.
func NewPublishProxyServer(publisher broker.Publisher, logger *zap.Logger, maxPendingPublishes int) *PublishProxyService {
	if maxPendingPublishes <= 0 {
		maxPendingPublishes = DefaultMaxPendingPublishes
	}
	logger = logger.Named("proxy")
	logger.Info("PublishProxy server initialized", zap.Int("max_pending_publishes", maxPendingPublishes))
	return &PublishProxyService{
		publisher: publisher,
		logger:    logger,
		slots:     make(chan struct{}, maxPendingPublishes),
	}
}

type publishRequest struct {
	topic   string
	key     string
	payload map[string]any
}

func parsePublishRequest(req *structpb.Struct) (publishRequest, error) {
	fields := req.GetFields()

	topic := fields["topic"].GetStringValue()
	if topic == "" {
		return publishRequest{}, errors.New("topic is required")
	}
	if !events.IsKnownTopic(topic) {
		return publishRequest{}, fmt.Errorf("unknown topic %q", topic)
	}

	payload := fields["payload"].GetStructValue()
	if payload == nil {
		return publishRequest{}, errors.New("payload must be an object")
	}

	return publishRequest{
		topic:   topic,
		key:     fields["key"].GetStringValue(),
		payload: payload.AsMap(),
	}, nil
}

// Publish implements PublishProxyServer.
func (s *PublishProxyService) Publish(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pr, err := parsePublishRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	default:
		s.logger.Warn("Rejecting publish, too many pending publishes", zap.String("topic", pr.topic))
		return nil, status.Errorf(codes.ResourceExhausted, "more than %d publishes pending", cap(s.slots))
	}

	env := events.NewEnvelope(pr.payload)
	ack, err := s.publisher.Publish(ctx, pr.topic, env, pr.key)
	if err != nil {
		s.logger.Error("Failed to publish event",
			zap.String("topic", pr.topic),
			zap.String("event_id", env.EventID),
			zap.Error(err),
		)
		var sendErr *kafka.SendError
		if errors.As(err, &sendErr) {
			return nil, status.Errorf(codes.Unavailable, "publish to %s: %v", pr.topic, err)
		}
		return nil, status.Errorf(codes.Internal, "publish to %s: %v", pr.topic, err)
	}

	s.logger.Debug("Event published",
		zap.String("topic", ack.Topic),
		zap.String("event_id", env.EventID),
		zap.Int32("partition", ack.Partition),
		zap.Int64("offset", ack.Offset),
	)
	resp, err := structpb.NewStruct(map[string]any{
		"eventId":   env.EventID,
		"topic":     ack.Topic,
		"partition": ack.Partition,
		"offset":    ack.Offset,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return resp, nil
}
