package domain

import (
	"encoding/json"
	"strings"

	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
)

const (
	MaxChatMessageLength   = 2000
	MaxNoteLength          = 1000
	MaxNotificationTitle   = 200
	MaxNotificationMessage = 2000
	MaxNotificationTargets = 500
	MaxResourceIDLength    = 64

	fieldSessionID     = "sessionId"
	fieldOrderID       = "orderId"
	fieldReservationID = "reservationId"
)

// ActionType tags an inbound client action.
type ActionType string

const (
	ActionPing                    ActionType = "ping"
	ActionRoomJoin                ActionType = "room.join"
	ActionRoomLeave               ActionType = "room.leave"
	ActionChatSend                ActionType = "chat.send"
	ActionChatTyping              ActionType = "chat.typing"
	ActionOrderUpdateStatus       ActionType = "order.update_status"
	ActionOrderUpdateItemStatus   ActionType = "order.update_item_status"
	ActionOrderAddNote            ActionType = "order.add_note"
	ActionReservationUpdateStatus ActionType = "reservation.update_status"
	ActionReservationAssignTable  ActionType = "reservation.assign_table"
	ActionNotificationBroadcast   ActionType = "notification.broadcast"
)

// IsKnown reports whether the relay understands the action type.
func (t ActionType) IsKnown() bool {
	switch t {
	case ActionPing, ActionRoomJoin, ActionRoomLeave,
		ActionChatSend, ActionChatTyping,
		ActionOrderUpdateStatus, ActionOrderUpdateItemStatus, ActionOrderAddNote,
		ActionReservationUpdateStatus, ActionReservationAssignTable,
		ActionNotificationBroadcast:
		return true
	default:
		return false
	}
}

// Action is the envelope of every message sent from a client.
type Action struct {
	Type      ActionType      `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the action payload into dst.
func (a Action) DecodePayload(dst any) error {
	if len(a.Payload) == 0 {
		return apperrors.NewBadRequestError(apperrors.ErrBadRequest, "payload is required")
	}
	if err := json.Unmarshal(a.Payload, dst); err != nil {
		return apperrors.NewBadRequestError(err, "payload is not valid for "+string(a.Type))
	}
	return nil
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderServed    OrderStatus = "served"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

var orderStatuses = []string{
	string(OrderPending), string(OrderConfirmed), string(OrderPreparing),
	string(OrderReady), string(OrderServed), string(OrderCompleted), string(OrderCancelled),
}

// ItemStatus is the kitchen state of one order line.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemPreparing ItemStatus = "preparing"
	ItemReady     ItemStatus = "ready"
	ItemServed    ItemStatus = "served"
	ItemCancelled ItemStatus = "cancelled"
)

var itemStatuses = []string{
	string(ItemPending), string(ItemPreparing), string(ItemReady), string(ItemServed), string(ItemCancelled),
}

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationSeated    ReservationStatus = "seated"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationNoShow    ReservationStatus = "no_show"
)

var reservationStatuses = []string{
	string(ReservationPending), string(ReservationConfirmed), string(ReservationSeated),
	string(ReservationCompleted), string(ReservationCancelled), string(ReservationNoShow),
}

// --- Inbound payloads ---

// RoomRequest is the payload of room.join and room.leave.
type RoomRequest struct {
	Room RoomName `json:"room"`
}

// Validate checks the room is "<kind>:<id>". Resource ids follow the same
// rule as payload ids; unknown kinds are left to the room manager.
func (r RoomRequest) Validate() error {
	errs := apperrors.NewValidationErrors()
	kind, id, ok := strings.Cut(string(r.Room), ":")
	switch {
	case strings.TrimSpace(string(r.Room)) == "":
		errs.Add("room", "This field is required")
	case !ok || kind == "":
		errs.Add("room", "Must be <kind>:<id>")
	case kind == identityKind:
		if id == "" {
			errs.Add("room", "This field is required")
		}
	default:
		requireID(errs, "room", id)
	}
	return errs.OrNil()
}

// ChatMessageRequest is the payload of chat.send.
type ChatMessageRequest struct {
	SessionID string `json:"sessionId"`
	Body      string `json:"body"`
}

func (r ChatMessageRequest) Validate() error {
	errs := apperrors.NewValidationErrors()
	requireID(errs, fieldSessionID, r.SessionID)
	requireText(errs, "body", r.Body, MaxChatMessageLength)
	return errs.OrNil()
}

// TypingRequest is the payload of chat.typing.
type TypingRequest struct {
	SessionID string `json:"sessionId"`
	Typing    bool   `json:"typing"`
}

func (r TypingRequest) Validate() error {
	errs := apperrors.NewValidationErrors()
	requireID(errs, fieldSessionID, r.SessionID)
	return errs.OrNil()
}

// OrderStatusRequest is the payload of order.update_status.
type OrderStatusRequest struct {
	OrderID string      `json:"orderId"`
	Status  OrderStatus `json:"status"`
}

func (r OrderStatusRequest) Validate() error {
	errs := apperrors.NewValidationErrors()
	requireID(errs, fieldOrderID, r.OrderID)
	requireOneOf(errs, "status", string(r.Status), orderStatuses)
	return errs.OrNil()
}

// OrderItemStatusRequest is the payload of order.update_item_status.
type OrderItemStatusRequest struct {
	OrderID string     `json:"orderId"`
	ItemID  string     `json:"itemId"`
	Status  ItemStatus `json:"status"`
}

func (r OrderItemStatusRequest) Validate() error {
	errs := apperrors.NewValidationErrors()
	requireID(errs, fieldOrderID, r.OrderID)
	requireID(errs, "itemId", r.ItemID)
	requireOneOf(errs, "status", string(r.Status), itemStatuses)
	return errs.OrNil()
}

// OrderNoteRequest is the payload of order.add_note.
type OrderNoteRequest struct {
	OrderID  string `json:"orderId"`
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

func (r OrderNoteRequest) Validate() error {
	errs := apperrors.NewValidationErrors()
	requireID(errs, fieldOrderID, r.OrderID)
	requireText(errs, "body", r.Body, MaxNoteLength)
	return errs.OrNil()
}

// ReservationStatusRequest is the payload of reservation.update_status.
type ReservationStatusRequest struct {
	ReservationID string            `json:"reservationId"`
	Status        ReservationStatus `json:"status"`
}

func (r ReservationStatusRequest) Validate() error {
	errs := apperrors.NewValidationErrors()
	requireID(errs, fieldReservationID, r.ReservationID)
	requireOneOf(errs, "status", string(r.Status), reservationStatuses)
	return errs.OrNil()
}

// TableAssignmentRequest is the payload of reservation.assign_table.
type TableAssignmentRequest struct {
	ReservationID string `json:"reservationId"`
	TableID       string `json:"tableId"`
	TableLabel    string `json:"tableLabel,omitempty"`
}

func (r TableAssignmentRequest) Validate() error {
	errs := apperrors.NewValidationErrors()
	requireID(errs, fieldReservationID, r.ReservationID)
	requireID(errs, "tableId", r.TableID)
	return errs.OrNil()
}

// NotificationRequest is the payload of notification.broadcast. An empty
// target list addresses every connected customer.
type NotificationRequest struct {
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Kind    string   `json:"kind,omitempty"`
	Targets []string `json:"targets,omitempty"`
}

func (r NotificationRequest) Validate() error {
	errs := apperrors.NewValidationErrors()
	requireText(errs, "title", r.Title, MaxNotificationTitle)
	requireText(errs, "message", r.Message, MaxNotificationMessage)
	if len(r.Targets) > MaxNotificationTargets {
		errs.Add("targets", "Too many targets")
	}
	for _, target := range r.Targets {
		if strings.TrimSpace(target) == "" {
			errs.Add("targets", "Targets must not be empty")
			break
		}
	}
	return errs.OrNil()
}

func requireID(errs *apperrors.ValidationErrors, field, value string) {
	switch {
	case strings.TrimSpace(value) == "":
		errs.Add(field, "This field is required")
	case len(value) > MaxResourceIDLength:
		errs.Add(field, "Identifier is too long")
	case !ValidResourceID(value):
		errs.Add(field, "Identifier may only contain letters, digits, '-', '_' and '.'")
	}
}

func requireText(errs *apperrors.ValidationErrors, field, value string, max int) {
	switch {
	case strings.TrimSpace(value) == "":
		errs.Add(field, "This field is required")
	case len(value) > max:
		errs.Add(field, "Exceeds maximum length")
	}
}

func requireOneOf(errs *apperrors.ValidationErrors, field, value string, allowed []string) {
	if value == "" {
		errs.Add(field, "This field is required")
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	errs.Add(field, "Must be one of: "+strings.Join(allowed, ", "))
}
