package users

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tnewman/event-gateway/pkg/broker"
	"github.com/tnewman/event-gateway/pkg/events"
)

// AuthEventHandlers feeds auth events into the user records.
type AuthEventHandlers struct {
	users *Service
	log   *zap.Logger
}

func NewAuthEventHandlers(users *Service, log *zap.Logger) *AuthEventHandlers {
	return &AuthEventHandlers{users: users, log: log.Named("users.auth-events")}
}

// Register subscribes the handlers to auth.attempt, auth.success and auth.failed.
func (h *AuthEventHandlers) Register(ctx context.Context, sub broker.Subscriber) error {
	bindings := []struct {
		topic   string
		handler broker.HandlerFunc
	}{
		{events.TopicAuthAttempt, h.handleAttempt},
		{events.TopicAuthSuccess, h.handleSuccess},
		{events.TopicAuthFailed, h.handleFailed},
	}
	for _, b := range bindings {
		if err := sub.Subscribe(ctx, b.topic, b.handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", b.topic, err)
		}
	}
	return nil
}

func (h *AuthEventHandlers) handleAttempt(ctx context.Context, d broker.Delivery) error {
	env, err := broker.DecodeDelivery[events.AuthAttempt](d)
	if err != nil {
		return err
	}
	h.log.Info("Auth attempt", zap.String("email", env.Payload.Email), zap.String("at", env.Payload.Timestamp))
	return h.users.RecordActivity(ctx, env.Payload.Email)
}

func (h *AuthEventHandlers) handleSuccess(ctx context.Context, d broker.Delivery) error {
	env, err := broker.DecodeDelivery[events.AuthSuccess](d)
	if err != nil {
		return err
	}
	h.log.Info("Auth success", zap.String("user_id", env.Payload.UserID), zap.String("at", env.Payload.Timestamp))
	return h.users.RecordLogin(ctx, env.Payload.UserID)
}

func (h *AuthEventHandlers) handleFailed(ctx context.Context, d broker.Delivery) error {
	env, err := broker.DecodeDelivery[events.AuthFailed](d)
	if err != nil {
		return err
	}
	h.log.Warn("Auth failed",
		zap.String("email", env.Payload.Email),
		zap.String("reason", env.Payload.Reason),
		zap.String("at", env.Payload.Timestamp),
	)
	return h.users.RecordFailedLogin(ctx, env.Payload.Email)
}
