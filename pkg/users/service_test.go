package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tnewman/event-gateway/pkg/broker"
	"github.com/tnewman/event-gateway/pkg/events"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, payload any, key ...string) (broker.DeliveryAck, error) {
	args := m.Called(ctx, topic, payload, key)
	return args.Get(0).(broker.DeliveryAck), args.Error(1)
}

func (m *mockPublisher) PublishBatch(ctx context.Context, entries []broker.BatchEntry) ([]broker.DeliveryAck, error) {
	args := m.Called(ctx, entries)
	acks, _ := args.Get(0).([]broker.DeliveryAck)
	return acks, args.Error(1)
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *mockPublisher, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	store := NewMemoryStore()
	pub := &mockPublisher{}
	svc := NewService(store, pub, zap.New(core))
	return svc, store, pub, logs
}

func TestService_CreatePublishesUserCreated(t *testing.T) {
	svc, _, pub, _ := newTestService(t)
	ctx := context.Background()

	pub.On("Publish", ctx, events.TopicUserCreated, mock.MatchedBy(func(env events.Envelope[any]) bool {
		p, ok := env.Payload.(events.UserCreated)
		return ok && p.Email == "a@b.com" && env.Version == events.CurrentVersion
	}), mock.Anything).Return(broker.DeliveryAck{}, nil).Once()

	u, err := svc.Create(ctx, NewUser{Email: "a@b.com", FirstName: "A"})
	require.NoError(t, err)
	pub.AssertExpectations(t)
	pub.AssertCalled(t, "Publish", ctx, events.TopicUserCreated, mock.Anything, []string{u.ID})
}

func TestService_PublishFailureIsAbsorbed(t *testing.T) {
	svc, store, pub, logs := newTestService(t)
	ctx := context.Background()
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(broker.DeliveryAck{}, errors.New("kafka down"))

	u, err := svc.Create(ctx, NewUser{Email: "a@b.com", FirstName: "A"})
	require.NoError(t, err)

	_, err = store.FindByEmail(ctx, "a@b.com")
	assert.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("Failed to publish user event").Len())
	assert.Equal(t, u.ID, logs.FilterMessage("Failed to publish user event").All()[0].ContextMap()["user_id"])
}

func TestService_UpdateAndDelete(t *testing.T) {
	svc, store, pub, _ := newTestService(t)
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(broker.DeliveryAck{}, nil)

	u, err := svc.Create(ctx, NewUser{Email: "a@b.com", FirstName: "A"})
	require.NoError(t, err)

	name := "Alice"
	_, err = svc.Update(ctx, u.ID, Patch{FirstName: &name})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, u.ID))

	_, err = store.FindByEmail(ctx, "a@b.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, u.ID), ErrUserNotFound)

	pub.AssertCalled(t, "Publish", mock.Anything, events.TopicUserUpdated, mock.MatchedBy(func(env events.Envelope[any]) bool {
		p, ok := env.Payload.(events.UserUpdated)
		return ok && p.FirstName == "Alice"
	}), mock.Anything)
	pub.AssertCalled(t, "Publish", mock.Anything, events.TopicUserDeleted, mock.MatchedBy(func(env events.Envelope[any]) bool {
		p, ok := env.Payload.(events.UserDeleted)
		return ok && p.ID == u.ID && p.DeletedAt == "2024-05-01T12:00:00.000Z"
	}), mock.Anything)
	pub.AssertNumberOfCalls(t, "Publish", 3)
}

func TestService_RecordActivityAndLogins(t *testing.T) {
	svc, store, pub, _ := newTestService(t)
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(broker.DeliveryAck{}, nil)

	u, err := svc.Create(ctx, NewUser{Email: "a@b.com", FirstName: "A"})
	require.NoError(t, err)

	require.NoError(t, svc.RecordActivity(ctx, "a@b.com"))
	require.NoError(t, svc.RecordLogin(ctx, u.ID))
	require.NoError(t, svc.RecordFailedLogin(ctx, "a@b.com"))
	require.NoError(t, svc.RecordFailedLogin(ctx, "a@b.com"))

	got, err := store.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, got.LastActivityAt)
	assert.Equal(t, fixed, *got.LastActivityAt)
	require.NotNil(t, got.LastLoginAt)
	assert.Equal(t, fixed, *got.LastLoginAt)
	assert.Equal(t, 2, got.FailedLoginAttempts)

	assert.ErrorIs(t, svc.RecordActivity(ctx, "ghost@b.com"), ErrUserNotFound)
	assert.ErrorIs(t, svc.RecordLogin(ctx, "ghost"), ErrUserNotFound)
	assert.ErrorIs(t, svc.RecordFailedLogin(ctx, "ghost@b.com"), ErrUserNotFound)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}
