package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
)

// OrderHandler publishes order status changes and order notes.
type OrderHandler struct {
	publisher ports.EventPublisher
	owners    ports.OwnerResolver
	logger    *slog.Logger
}

// NewOrderHandler creates an order handler.
func NewOrderHandler(publisher ports.EventPublisher, owners ports.OwnerResolver, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		publisher: publisher,
		owners:    owners,
		logger:    logger.With("component", "order_handler"),
	}
}

// Actions returns the websocket actions served by this handler.
func (h *OrderHandler) Actions() map[domain.ActionType]ActionFunc {
	return map[domain.ActionType]ActionFunc{
		domain.ActionOrderUpdateStatus: func(ctx context.Context, conn *Connection, action domain.Action) error {
			req, err := decode[domain.OrderStatusRequest](action)
			if err != nil {
				return err
			}
			return h.UpdateStatus(ctx, conn.Identity(), req)
		},
		domain.ActionOrderUpdateItemStatus: func(ctx context.Context, conn *Connection, action domain.Action) error {
			req, err := decode[domain.OrderItemStatusRequest](action)
			if err != nil {
				return err
			}
			return h.UpdateItemStatus(ctx, conn.Identity(), req)
		},
		domain.ActionOrderAddNote: func(ctx context.Context, conn *Connection, action domain.Action) error {
			req, err := decode[domain.OrderNoteRequest](action)
			if err != nil {
				return err
			}
			_, err = h.AddNote(ctx, conn.Identity(), req)
			return err
		},
	}
}

// UpdateStatus reports a new order status to staff and the ordering customer.
func (h *OrderHandler) UpdateStatus(ctx context.Context, actor domain.Identity, req domain.OrderStatusRequest) error {
	owner, err := h.staffOwner(ctx, actor, req.OrderID)
	if err != nil {
		return err
	}

	event := domain.NewEvent(domain.EventOrderStatusChanged, domain.OrderStatusChange{
		OrderID:   req.OrderID,
		Status:    req.Status,
		UpdatedBy: domain.NewActor(actor),
	}).WithAuthor(actor)

	h.publisher.Publish(event, staffAndOwner(owner)...)
	h.logger.InfoContext(ctx, "order status changed",
		"order_id", req.OrderID,
		"status", req.Status,
		"subject_id", actor.SubjectID,
	)
	return nil
}

// UpdateItemStatus reports a kitchen state change of one order line.
func (h *OrderHandler) UpdateItemStatus(ctx context.Context, actor domain.Identity, req domain.OrderItemStatusRequest) error {
	owner, err := h.staffOwner(ctx, actor, req.OrderID)
	if err != nil {
		return err
	}

	event := domain.NewEvent(domain.EventOrderItemStatusChanged, domain.OrderItemStatusChange{
		OrderID:   req.OrderID,
		ItemID:    req.ItemID,
		Status:    req.Status,
		UpdatedBy: domain.NewActor(actor),
	}).WithAuthor(actor)

	h.publisher.Publish(event, staffAndOwner(owner)...)
	return nil
}

// AddNote publishes a note on an order. Internal notes are staff-only and
// can only be written by staff; public notes also reach the order owner.
func (h *OrderHandler) AddNote(ctx context.Context, actor domain.Identity, req domain.OrderNoteRequest) (domain.OrderNote, error) {
	if req.Internal {
		if err := requireStaff(actor); err != nil {
			return domain.OrderNote{}, err
		}
	}

	owner, err := requireOwnership(ctx, h.owners, actor, domain.ResourceOrder, req.OrderID)
	if err != nil {
		return domain.OrderNote{}, err
	}

	note := domain.OrderNote{
		NoteID:   uuid.NewString(),
		OrderID:  req.OrderID,
		Body:     req.Body,
		Internal: req.Internal,
		Author:   domain.NewActor(actor),
	}
	event := domain.NewEvent(domain.EventNoteAdded, note).WithAuthor(actor)

	if req.Internal {
		h.publisher.Publish(event.AsStaffOnly(), domain.ToDomain{Domain: domain.DomainAdmin})
		return note, nil
	}

	// For a customer author the owner is the author.
	h.publisher.Publish(event, staffAndOwner(owner)...)
	return note, nil
}

func (h *OrderHandler) staffOwner(ctx context.Context, actor domain.Identity, orderID string) (string, error) {
	if err := requireStaff(actor); err != nil {
		return "", err
	}
	return resolveOwner(ctx, h.owners, domain.ResourceOrder, orderID)
}

// staffAndOwner addresses every staff connection and the owning customer.
func staffAndOwner(owner string) []domain.Visibility {
	return []domain.Visibility{
		domain.ToDomain{Domain: domain.DomainAdmin},
		domain.ToIdentity{Domain: domain.DomainCustomer, SubjectID: owner},
	}
}
