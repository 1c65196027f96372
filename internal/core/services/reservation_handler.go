package services

import (
	"context"
	"log/slog"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
)

// ReservationHandler publishes reservation lifecycle and table changes.
type ReservationHandler struct {
	publisher ports.EventPublisher
	owners    ports.OwnerResolver
	logger    *slog.Logger
}

func NewReservationHandler(publisher ports.EventPublisher, owners ports.OwnerResolver, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{
		publisher: publisher,
		owners:    owners,
		logger:    logger.With("component", "reservation_handler"),
	}
}

func (h *ReservationHandler) Actions() map[domain.ActionType]ActionFunc {
	return map[domain.ActionType]ActionFunc{
		domain.ActionReservationUpdateStatus: func(ctx context.Context, conn *Connection, action domain.Action) error {
			req, err := decode[domain.ReservationStatusRequest](action)
			if err != nil {
				return err
			}
			return h.UpdateStatus(ctx, conn.Identity(), req)
		},
		domain.ActionReservationAssignTable: func(ctx context.Context, conn *Connection, action domain.Action) error {
			req, err := decode[domain.TableAssignmentRequest](action)
			if err != nil {
				return err
			}
			return h.AssignTable(ctx, conn.Identity(), req)
		},
	}
}

// UpdateStatus reports a reservation status change. A cancellation is
// published as its own event type.
func (h *ReservationHandler) UpdateStatus(ctx context.Context, actor domain.Identity, req domain.ReservationStatusRequest) error {
	owner, err := h.staffOwner(ctx, actor, req.ReservationID)
	if err != nil {
		return err
	}

	eventType := domain.EventReservationStatus
	if req.Status == domain.ReservationCancelled {
		eventType = domain.EventReservationCancelled
	}

	event := domain.NewEvent(eventType, domain.ReservationChange{
		ReservationID: req.ReservationID,
		Status:        req.Status,
		UpdatedBy:     domain.NewActor(actor),
	}).WithAuthor(actor)

	h.publisher.Publish(event, staffAndOwner(owner)...)
	h.logger.InfoContext(ctx, "reservation status changed",
		"reservation_id", req.ReservationID,
		"status", req.Status,
		"subject_id", actor.SubjectID,
	)
	return nil
}

// AssignTable reports a table (re)assignment.
func (h *ReservationHandler) AssignTable(ctx context.Context, actor domain.Identity, req domain.TableAssignmentRequest) error {
	owner, err := h.staffOwner(ctx, actor, req.ReservationID)
	if err != nil {
		return err
	}

	event := domain.NewEvent(domain.EventReservationTable, domain.ReservationChange{
		ReservationID: req.ReservationID,
		TableID:       req.TableID,
		TableLabel:    req.TableLabel,
		UpdatedBy:     domain.NewActor(actor),
	}).WithAuthor(actor)

	h.publisher.Publish(event, staffAndOwner(owner)...)
	return nil
}

func (h *ReservationHandler) staffOwner(ctx context.Context, actor domain.Identity, reservationID string) (string, error) {
	if err := requireStaff(actor); err != nil {
		return "", err
	}
	return resolveOwner(ctx, h.owners, domain.ResourceReservation, reservationID)
}
