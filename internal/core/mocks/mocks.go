package mocks

import (
	"context"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockCredentialVerifier is a mock implementation of ports.CredentialVerifier
type MockCredentialVerifier struct {
	mock.Mock
}

func NewMockCredentialVerifier() *MockCredentialVerifier {
	return &MockCredentialVerifier{}
}

func (m *MockCredentialVerifier) Verify(ctx context.Context, credential string) (domain.Identity, error) {
	args := m.Called(ctx, credential)
	return args.Get(0).(domain.Identity), args.Error(1)
}

// MockOwnerResolver is a mock implementation of ports.OwnerResolver
type MockOwnerResolver struct {
	mock.Mock
}

func NewMockOwnerResolver() *MockOwnerResolver {
	return &MockOwnerResolver{}
}

func (m *MockOwnerResolver) ResolveOwner(ctx context.Context, kind domain.ResourceKind, resourceID string) (string, error) {
	args := m.Called(ctx, kind, resourceID)
	return args.String(0), args.Error(1)
}

// MockSink is a mock implementation of ports.Sink
type MockSink struct {
	mock.Mock
}

func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) Deliver(event domain.Event) bool {
	args := m.Called(event)
	return args.Bool(0)
}

func (m *MockSink) Close() {
	m.Called()
}

// MockRelayMetrics is a mock implementation of ports.RelayMetrics
type MockRelayMetrics struct {
	mock.Mock
}

func NewMockRelayMetrics() *MockRelayMetrics {
	return &MockRelayMetrics{}
}

func (m *MockRelayMetrics) ConnectionOpened(d domain.Domain) {
	m.Called(d)
}

func (m *MockRelayMetrics) ConnectionClosed(d domain.Domain, reason string) {
	m.Called(d, reason)
}

func (m *MockRelayMetrics) ConnectionRejected(code string) {
	m.Called(code)
}

func (m *MockRelayMetrics) EventPublished(eventType domain.EventType, deliveries int) {
	m.Called(eventType, deliveries)
}

func (m *MockRelayMetrics) ActionHandled(action domain.ActionType, code string) {
	m.Called(action, code)
}

// MockHealthChecker is a mock implementation of ports.HealthChecker
type MockHealthChecker struct {
	mock.Mock
}

func NewMockHealthChecker() *MockHealthChecker {
	return &MockHealthChecker{}
}

func (m *MockHealthChecker) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var (
	_ ports.CredentialVerifier = (*MockCredentialVerifier)(nil)
	_ ports.OwnerResolver      = (*MockOwnerResolver)(nil)
	_ ports.Sink               = (*MockSink)(nil)
	_ ports.RelayMetrics       = (*MockRelayMetrics)(nil)
	_ ports.HealthChecker      = (*MockHealthChecker)(nil)
)
