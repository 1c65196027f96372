package domain

import "time"

// EventType defines the type of real-time event.
type EventType string

const (
	EventMessageReceived        EventType = "message-received"
	EventTypingStarted          EventType = "typing-started"
	EventTypingEnded            EventType = "typing-ended"
	EventOrderStatusChanged     EventType = "order-status-changed"
	EventOrderItemStatusChanged EventType = "order-item-status-changed"
	EventNoteAdded              EventType = "note-added"
	EventReservationStatus      EventType = "reservation-status-changed"
	EventReservationCancelled   EventType = "reservation-cancelled"
	EventReservationTable       EventType = "reservation-table-changed"
	EventNotificationNew        EventType = "notification-new"

	// Replies addressed only to the originating connection.
	EventAck        EventType = "ack"
	EventError      EventType = "error"
	EventRoomJoined EventType = "room-joined"
	EventRoomLeft   EventType = "room-left"
	EventPong       EventType = "pong"
	EventConnected  EventType = "connected"
)

// Event is the payload sent over the wire.
type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`

	// Author is the identity that caused the event, nil for system facts.
	Author *Identity `json:"-"`

	// StaffOnly events never reach the customer domain.
	StaffOnly bool `json:"-"`
}

// NewEvent stamps a new event with the current time.
func NewEvent(eventType EventType, payload any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// WithAuthor returns a copy of the event attributed to identity.
func (e Event) WithAuthor(identity Identity) Event {
	e.Author = &identity
	return e
}

// AsStaffOnly returns a copy of the event marked staff-only.
func (e Event) AsStaffOnly() Event {
	e.StaffOnly = true
	return e
}

// Visibility selects which live connections an event reaches. The set of
// implementations is closed.
type Visibility interface {
	visibility()
}

// ToDomain reaches every live connection of a domain.
type ToDomain struct {
	Domain Domain
}

// ToRoom reaches every member of a domain-qualified room.
type ToRoom struct {
	Domain Domain
	Room   RoomName
}

// ToIdentity reaches every connection of one subject, through its identity
// room in the given domain.
type ToIdentity struct {
	Domain    Domain
	SubjectID string
}

// ToRoomExcept is ToRoom without the originating connection.
type ToRoomExcept struct {
	Domain       Domain
	Room         RoomName
	ConnectionID string
}

func (ToDomain) visibility()     {}
func (ToRoom) visibility()       {}
func (ToIdentity) visibility()   {}
func (ToRoomExcept) visibility() {}

// ErrorPayload is the body of an error reply.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RoomPayload is the body of room-joined and room-left replies.
type RoomPayload struct {
	Room RoomName `json:"room"`
}

// ConnectedPayload is sent once after admission.
type ConnectedPayload struct {
	ConnectionID string   `json:"connectionId"`
	Domain       Domain   `json:"domain"`
	Identity     Identity `json:"identity"`
	Room         RoomName `json:"room"`
}
