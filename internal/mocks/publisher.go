package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"roomchat/internal/models"
)

// PublisherMock stands in for the broker publisher used by analytics and audit.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// EventPublisherMock stands in for the session hub.
type EventPublisherMock struct {
	mock.Mock
}

func (m *EventPublisherMock) Publish(ctx context.Context, channel string, event models.OutboundEvent) error {
	args := m.Called(ctx, channel, event)
	return args.Error(0)
}
