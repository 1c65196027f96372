package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/restaurant-relay/internal/adapters/primary/http/middleware"
	"github.com/lorrc/restaurant-relay/internal/adapters/primary/validation"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/lorrc/restaurant-relay/internal/core/services"
)

// RelayEventsHandler lets the restaurant's other services report facts over
// REST. Each endpoint runs the same handler as the matching websocket action,
// so permission rules and visibility are identical on both paths. Callers are
// staff only; customers act through their websocket connection.
type RelayEventsHandler struct {
	handlers     services.Handlers
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewRelayEventsHandler creates a new relay events handler
func NewRelayEventsHandler(handlers services.Handlers, errorHandler *ErrorHandler, logger *slog.Logger) *RelayEventsHandler {
	return &RelayEventsHandler{
		handlers:     handlers,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "relay_events"),
	}
}

// RegisterRoutes sets up the routing for all fact-reporting endpoints. The
// routes expect mw.Authenticate and mw.RequireDomain to have run.
func (h *RelayEventsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/messages", h.HandleChatMessage)
	r.Post("/chat/typing", h.HandleChatTyping)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/status", h.HandleOrderStatus)
		r.Post("/items/status", h.HandleOrderItemStatus)
		r.Post("/notes", h.HandleOrderNote)
	})

	r.Route("/reservations", func(r chi.Router) {
		r.Post("/status", h.HandleReservationStatus)
		r.Post("/table", h.HandleReservationTable)
	})

	r.Post("/notifications", h.HandleNotification)
}

// HandleChatMessage relays a chat message.
func (h *RelayEventsHandler) HandleChatMessage(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, func(ctx context.Context, actor domain.Identity, _ domain.Domain, req domain.ChatMessageRequest) (any, error) {
		return h.handlers.Chat.SendMessage(ctx, actor, req)
	})
}

// HandleChatTyping relays a typing indicator. REST callers have no live
// connection to exclude from the staff-side echo.
func (h *RelayEventsHandler) HandleChatTyping(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, func(ctx context.Context, actor domain.Identity, d domain.Domain, req domain.TypingRequest) (any, error) {
		return nil, h.handlers.Chat.Typing(ctx, actor, d, "", req)
	})
}

// HandleOrderStatus relays an order status change.
func (h *RelayEventsHandler) HandleOrderStatus(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, func(ctx context.Context, actor domain.Identity, _ domain.Domain, req domain.OrderStatusRequest) (any, error) {
		return nil, h.handlers.Orders.UpdateStatus(ctx, actor, req)
	})
}

// HandleOrderItemStatus relays an order line status change.
func (h *RelayEventsHandler) HandleOrderItemStatus(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, func(ctx context.Context, actor domain.Identity, _ domain.Domain, req domain.OrderItemStatusRequest) (any, error) {
		return nil, h.handlers.Orders.UpdateItemStatus(ctx, actor, req)
	})
}

// HandleOrderNote relays an order note.
func (h *RelayEventsHandler) HandleOrderNote(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, func(ctx context.Context, actor domain.Identity, _ domain.Domain, req domain.OrderNoteRequest) (any, error) {
		return h.handlers.Orders.AddNote(ctx, actor, req)
	})
}

// HandleReservationStatus relays a reservation status change.
func (h *RelayEventsHandler) HandleReservationStatus(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, func(ctx context.Context, actor domain.Identity, _ domain.Domain, req domain.ReservationStatusRequest) (any, error) {
		return nil, h.handlers.Reservations.UpdateStatus(ctx, actor, req)
	})
}

// HandleReservationTable relays a table assignment.
func (h *RelayEventsHandler) HandleReservationTable(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, func(ctx context.Context, actor domain.Identity, _ domain.Domain, req domain.TableAssignmentRequest) (any, error) {
		return nil, h.handlers.Reservations.AssignTable(ctx, actor, req)
	})
}

// HandleNotification broadcasts a staff notification.
func (h *RelayEventsHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, func(ctx context.Context, actor domain.Identity, _ domain.Domain, req domain.NotificationRequest) (any, error) {
		return h.handlers.Notifications.Broadcast(ctx, actor, req)
	})
}

// serve decodes the body into T, runs fn as the authenticated caller and
// writes 202 with whatever fn returns.
func serve[T validation.Validatable](
	h *RelayEventsHandler,
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, actor domain.Identity, d domain.Domain, req T) (any, error),
) {
	actor, ok := mw.IdentityFromContext(r.Context())
	d, hasDomain := mw.DomainFromContext(r.Context())
	if !ok || !hasDomain {
		h.errorHandler.Handle(w, r, apperrors.ErrUnauthenticated)
		return
	}

	req, err := validation.DecodeAndValidate[T](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	result, err := fn(r.Context(), actor, d, req)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteAccepted(w, result)
}
