package services

import (
	"context"
	"log/slog"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
)

// ActionFunc handles one inbound action on behalf of conn. A nil error means
// the action was accepted and the relay acknowledges it.
type ActionFunc func(ctx context.Context, conn *Connection, action domain.Action) error

// Handlers groups the domain event handlers. They are reachable both from
// websocket actions and from the REST fact-reporting endpoints.
type Handlers struct {
	Chat          *ChatHandler
	Orders        *OrderHandler
	Reservations  *ReservationHandler
	Notifications *NotificationHandler
}

// NewHandlers wires every handler to the same publisher and owner resolver.
func NewHandlers(publisher ports.EventPublisher, owners ports.OwnerResolver, logger *slog.Logger) Handlers {
	return Handlers{
		Chat:          NewChatHandler(publisher, owners, logger),
		Orders:        NewOrderHandler(publisher, owners, logger),
		Reservations:  NewReservationHandler(publisher, owners, logger),
		Notifications: NewNotificationHandler(publisher, logger),
	}
}

// Actions merges the action tables of every handler.
func (h Handlers) Actions() map[domain.ActionType]ActionFunc {
	actions := make(map[domain.ActionType]ActionFunc)
	for _, table := range []map[domain.ActionType]ActionFunc{
		h.Chat.Actions(),
		h.Orders.Actions(),
		h.Reservations.Actions(),
		h.Notifications.Actions(),
	} {
		for actionType, fn := range table {
			actions[actionType] = fn
		}
	}
	return actions
}

// decode unmarshals and validates an action payload.
func decode[T interface{ Validate() error }](action domain.Action) (T, error) {
	var req T
	if err := action.DecodePayload(&req); err != nil {
		return req, err
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}
