package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/license-gatekeeper/internal/models"
)

type StoreMock struct{ mock.Mock }

func (m *StoreMock) OverrideStatus(ctx context.Context, userUID string, productID int64, status string, expiresAt *time.Time) error {
	args := m.Called(ctx, userUID, productID, status, expiresAt)
	return args.Error(0)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(routingKey string, message any) error {
	args := m.Called(routingKey, message)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestOverride_Premium(t *testing.T) {
	store := &StoreMock{}
	events := &PublisherMock{}
	store.On("OverrideStatus", mock.Anything, "u-1", int64(7), models.StatusPremium,
		mock.MatchedBy(func(expiresAt *time.Time) bool {
			if expiresAt == nil {
				return false
			}
			left := time.Until(*expiresAt)
			return left > 29*24*time.Hour && left <= 30*24*time.Hour
		})).Return(nil)
	events.On("Publish", models.RoutingKeySubscriptionChanged, mock.MatchedBy(func(msg any) bool {
		event, ok := msg.(models.SubscriptionEvent)
		return ok && event.Reason == models.ReasonAdminOverride && event.Status == models.StatusPremium
	})).Return(nil)

	svc := NewOverrideService(store, events, newNoopLogger())
	expiresAt, err := svc.Override(context.Background(), models.DummyOverride{
		UserUID:   "u-1",
		ProductID: 7,
		Status:    models.StatusPremium,
		Days:      30,
	})

	require.NoError(t, err)
	require.NotNil(t, expiresAt)
	store.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestOverride_ResetToFree(t *testing.T) {
	store := &StoreMock{}
	store.On("OverrideStatus", mock.Anything, "u-1", int64(7), models.StatusFree,
		(*time.Time)(nil)).Return(nil)

	svc := NewOverrideService(store, nil, newNoopLogger())
	expiresAt, err := svc.Override(context.Background(), models.DummyOverride{
		UserUID:   "u-1",
		ProductID: 7,
		Status:    models.StatusFree,
	})

	require.NoError(t, err)
	assert.Nil(t, expiresAt)
	store.AssertExpectations(t)
}

func TestOverride_PremiumWithoutDays(t *testing.T) {
	store := &StoreMock{}
	svc := NewOverrideService(store, nil, newNoopLogger())

	_, err := svc.Override(context.Background(), models.DummyOverride{
		UserUID:   "u-1",
		ProductID: 7,
		Status:    models.StatusPremium,
	})

	assert.True(t, errors.Is(err, ErrDaysRequired))
	store.AssertNotCalled(t, "OverrideStatus")
}

func TestOverride_StorageError(t *testing.T) {
	store := &StoreMock{}
	store.On("OverrideStatus", mock.Anything, "u-1", int64(7), models.StatusFree,
		(*time.Time)(nil)).Return(errors.New("db error"))

	svc := NewOverrideService(store, nil, newNoopLogger())
	_, err := svc.Override(context.Background(), models.DummyOverride{
		UserUID:   "u-1",
		ProductID: 7,
		Status:    models.StatusFree,
	})

	assert.Error(t, err)
}
