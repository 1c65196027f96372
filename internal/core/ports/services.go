package ports

import (
	"context"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
)

// CredentialVerifier turns an opaque bearer credential into a verified identity.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (domain.Identity, error)
}

// OwnerResolver returns the subject id of the customer owning a resource.
// It reports errors.ErrUnknownResource when the resource does not exist.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, kind domain.ResourceKind, resourceID string) (string, error)
}

// Sink is the transport side of one live connection.
type Sink interface {
	// Deliver queues an event without blocking. It returns false when the
	// event could not be queued because the sink is closed or full.
	Deliver(event domain.Event) bool

	// Close releases the transport. It must be safe to call more than once.
	Close()
}

// EventPublisher fans an event out according to its visibility rules.
type EventPublisher interface {
	Publish(event domain.Event, rules ...domain.Visibility) int
}

// HealthChecker is implemented by dependencies consulted by readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RelayMetrics records aggregate connection lifecycle and fanout counts.
type RelayMetrics interface {
	ConnectionOpened(d domain.Domain)
	ConnectionClosed(d domain.Domain, reason string)
	ConnectionRejected(code string)
	EventPublished(eventType domain.EventType, deliveries int)
	ActionHandled(action domain.ActionType, code string)
}
