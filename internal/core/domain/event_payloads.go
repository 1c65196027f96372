package domain

// Actor is the public view of the identity that caused an event.
type Actor struct {
	SubjectID   string `json:"subjectId"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName,omitempty"`
}

// NewActor builds the public view of an identity.
func NewActor(identity Identity) Actor {
	return Actor{
		SubjectID:   identity.SubjectID,
		Role:        identity.Role,
		DisplayName: identity.DisplayName,
	}
}

// ChatMessage is the body of message-received.
type ChatMessage struct {
	MessageID string `json:"messageId"`
	SessionID string `json:"sessionId"`
	Body      string `json:"body"`
	Sender    Actor  `json:"sender"`
}

// TypingIndicator is the body of typing-started and typing-ended.
type TypingIndicator struct {
	SessionID string `json:"sessionId"`
	Sender    Actor  `json:"sender"`
}

// OrderStatusChange is the body of order-status-changed.
type OrderStatusChange struct {
	OrderID   string      `json:"orderId"`
	Status    OrderStatus `json:"status"`
	UpdatedBy Actor       `json:"updatedBy"`
}

// OrderItemStatusChange is the body of order-item-status-changed.
type OrderItemStatusChange struct {
	OrderID   string     `json:"orderId"`
	ItemID    string     `json:"itemId"`
	Status    ItemStatus `json:"status"`
	UpdatedBy Actor      `json:"updatedBy"`
}

// OrderNote is the body of note-added.
type OrderNote struct {
	NoteID   string `json:"noteId"`
	OrderID  string `json:"orderId"`
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
	Author   Actor  `json:"author"`
}

// ReservationChange is the body of the reservation events.
type ReservationChange struct {
	ReservationID string            `json:"reservationId"`
	Status        ReservationStatus `json:"status,omitempty"`
	TableID       string            `json:"tableId,omitempty"`
	TableLabel    string            `json:"tableLabel,omitempty"`
	UpdatedBy     Actor             `json:"updatedBy"`
}

// Notification is the body of notification-new.
type Notification struct {
	NotificationID string `json:"notificationId"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	Kind           string `json:"kind,omitempty"`
	Targeted       bool   `json:"targeted"`
	SentBy         Actor  `json:"sentBy"`
}
