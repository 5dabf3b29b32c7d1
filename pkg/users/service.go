package users

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tnewman/event-gateway/pkg/broker"
	"github.com/tnewman/event-gateway/pkg/events"
)

// Service applies user changes to a Store and publishes the matching user
// events. Publish failures are logged and do not fail the change.
type Service struct {
	store  Store
	events broker.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store Store, pub broker.Publisher, log *zap.Logger) *Service {
	return &Service{
		store:  store,
		events: pub,
		log:    log.Named("users"),
		now:    time.Now,
	}
}

func (s *Service) Create(ctx context.Context, nu NewUser) (*User, error) {
	u, err := s.store.Create(ctx, nu)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TopicUserCreated, u.ID, createdPayload(u))
	return u, nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (*User, error) {
	u, err := s.store.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TopicUserUpdated, u.ID, events.UserUpdated{
		UserCreated: createdPayload(u),
		UpdatedAt:   events.FormatTime(u.UpdatedAt),
	})
	return u, nil
}

// Delete soft-deletes the user and deactivates it.
func (s *Service) Delete(ctx context.Context, id string) error {
	now := s.now().UTC()
	inactive := false
	u, err := s.store.Update(ctx, id, Patch{DeletedAt: &now, IsActive: &inactive})
	if err != nil {
		return err
	}
	s.publish(ctx, events.TopicUserDeleted, u.ID, events.UserDeleted{
		ID:        u.ID,
		DeletedAt: events.FormatTime(now),
	})
	return nil
}

// RecordActivity stamps the last activity time of the user with email.
func (s *Service) RecordActivity(ctx context.Context, email string) error {
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("record activity for %s: %w", email, err)
	}
	now := s.now().UTC()
	if _, err := s.store.Update(ctx, u.ID, Patch{LastActivityAt: &now}); err != nil {
		return fmt.Errorf("record activity for %s: %w", email, err)
	}
	return nil
}

// RecordLogin stamps the last login time of the user with userID.
func (s *Service) RecordLogin(ctx context.Context, userID string) error {
	now := s.now().UTC()
	if _, err := s.store.Update(ctx, userID, Patch{LastLoginAt: &now}); err != nil {
		return fmt.Errorf("record login for %s: %w", userID, err)
	}
	return nil
}

// RecordFailedLogin increments the failed login counter of the user with email.
func (s *Service) RecordFailedLogin(ctx context.Context, email string) error {
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("record failed login for %s: %w", email, err)
	}
	attempts := u.FailedLoginAttempts + 1
	if _, err := s.store.Update(ctx, u.ID, Patch{FailedLoginAttempts: &attempts}); err != nil {
		return fmt.Errorf("record failed login for %s: %w", email, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, topic, key string, payload any) {
	env := events.NewEnvelope(payload)
	if _, err := s.events.Publish(ctx, topic, env, key); err != nil {
		s.log.Error("Failed to publish user event",
			zap.String("topic", topic),
			zap.String("user_id", key),
			zap.String("event_id", env.EventID),
			zap.Error(err),
		)
	}
}

func createdPayload(u *User) events.UserCreated {
	return events.UserCreated{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: events.FormatTime(u.CreatedAt),
	}
}
