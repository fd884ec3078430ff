// Package mocks provides testify mocks for the channel interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/paullozen/autofx/pkg/channel"
	"github.com/paullozen/autofx/pkg/events"
)

// MockEventChannel is a mock implementation of channel.EventChannel.
type MockEventChannel struct {
	mock.Mock
}

func (m *MockEventChannel) Send(ctx context.Context, command channel.Event) error {
	args := m.Called(ctx, command)

	return args.Error(0)
}

func (m *MockEventChannel) Handle(eventType events.EventType, handler channel.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventChannel) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventChannel) Connected() bool {
	args := m.Called()

	return args.Bool(0)
}

func (m *MockEventChannel) OnDisconnect(hook func()) {
	m.Called(hook)
}

func (m *MockEventChannel) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventChannel) GenerateID() string {
	args := m.Called()

	return args.String(0)
}
