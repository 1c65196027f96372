package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
)

// ChatHandler relays chat messages and typing indicators between a customer
// and the staff serving the chat session.
type ChatHandler struct {
	publisher ports.EventPublisher
	owners    ports.OwnerResolver
	logger    *slog.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(publisher ports.EventPublisher, owners ports.OwnerResolver, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		publisher: publisher,
		owners:    owners,
		logger:    logger.With("component", "chat_handler"),
	}
}

// Actions returns the websocket actions served by this handler.
func (h *ChatHandler) Actions() map[domain.ActionType]ActionFunc {
	return map[domain.ActionType]ActionFunc{
		domain.ActionChatSend: func(ctx context.Context, conn *Connection, action domain.Action) error {
			req, err := decode[domain.ChatMessageRequest](action)
			if err != nil {
				return err
			}
			_, err = h.SendMessage(ctx, conn.Identity(), req)
			return err
		},
		domain.ActionChatTyping: func(ctx context.Context, conn *Connection, action domain.Action) error {
			req, err := decode[domain.TypingRequest](action)
			if err != nil {
				return err
			}
			return h.Typing(ctx, conn.Identity(), conn.Domain(), conn.ID(), req)
		},
	}
}

// SendMessage publishes a chat message. Staff messages reach the customer side
// of the session room; customer messages reach staff and the customer's own
// other connections.
func (h *ChatHandler) SendMessage(ctx context.Context, actor domain.Identity, req domain.ChatMessageRequest) (domain.ChatMessage, error) {
	if _, err := requireOwnership(ctx, h.owners, actor, domain.ResourceChatSession, req.SessionID); err != nil {
		return domain.ChatMessage{}, err
	}

	msg := domain.ChatMessage{
		MessageID: uuid.NewString(),
		SessionID: req.SessionID,
		Body:      req.Body,
		Sender:    domain.NewActor(actor),
	}
	event := domain.NewEvent(domain.EventMessageReceived, msg).WithAuthor(actor)

	var rules []domain.Visibility
	if actor.IsStaff() {
		rules = []domain.Visibility{
			domain.ToRoom{Domain: domain.DomainCustomer, Room: domain.ResourceRoom(domain.ResourceChatSession, req.SessionID)},
			domain.ToDomain{Domain: domain.DomainAdmin},
		}
	} else {
		rules = []domain.Visibility{
			domain.ToDomain{Domain: domain.DomainAdmin},
			domain.ToIdentity{Domain: domain.DomainCustomer, SubjectID: actor.SubjectID},
		}
	}

	delivered := h.publisher.Publish(event, rules...)
	h.logger.DebugContext(ctx, "chat message relayed",
		"session_id", req.SessionID,
		"subject_id", actor.SubjectID,
		"deliveries", delivered,
	)
	return msg, nil
}

// Typing publishes a typing indicator to the session room of both domains,
// skipping the connection that is typing. connID may be empty.
func (h *ChatHandler) Typing(ctx context.Context, actor domain.Identity, from domain.Domain, connID string, req domain.TypingRequest) error {
	if _, err := requireOwnership(ctx, h.owners, actor, domain.ResourceChatSession, req.SessionID); err != nil {
		return err
	}

	eventType := domain.EventTypingEnded
	if req.Typing {
		eventType = domain.EventTypingStarted
	}

	room := domain.ResourceRoom(domain.ResourceChatSession, req.SessionID)
	event := domain.NewEvent(eventType, domain.TypingIndicator{
		SessionID: req.SessionID,
		Sender:    domain.NewActor(actor),
	}).WithAuthor(actor)

	h.publisher.Publish(event,
		domain.ToRoomExcept{Domain: from, Room: room, ConnectionID: connID},
		domain.ToRoom{Domain: from.Opposite(), Room: room},
	)
	return nil
}
