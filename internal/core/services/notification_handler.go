package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
)

// NotificationHandler pushes staff-issued notifications to customers.
type NotificationHandler struct {
	publisher ports.EventPublisher
	logger    *slog.Logger
}

func NewNotificationHandler(publisher ports.EventPublisher, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		publisher: publisher,
		logger:    logger.With("component", "notification_handler"),
	}
}

func (h *NotificationHandler) Actions() map[domain.ActionType]ActionFunc {
	return map[domain.ActionType]ActionFunc{
		domain.ActionNotificationBroadcast: func(ctx context.Context, conn *Connection, action domain.Action) error {
			req, err := decode[domain.NotificationRequest](action)
			if err != nil {
				return err
			}
			_, err = h.Broadcast(ctx, conn.Identity(), req)
			return err
		},
	}
}

// Broadcast sends a notification to the listed customers, or to every
// connected customer when no target is given. Staff always see it.
func (h *NotificationHandler) Broadcast(ctx context.Context, actor domain.Identity, req domain.NotificationRequest) (domain.Notification, error) {
	if err := requireStaff(actor); err != nil {
		return domain.Notification{}, err
	}

	targets := uniqueTargets(req.Targets)
	notification := domain.Notification{
		NotificationID: uuid.NewString(),
		Title:          req.Title,
		Message:        req.Message,
		Kind:           req.Kind,
		Targeted:       len(targets) > 0,
		SentBy:         domain.NewActor(actor),
	}

	rules := make([]domain.Visibility, 0, len(targets)+1)
	if len(targets) == 0 {
		rules = append(rules, domain.ToDomain{Domain: domain.DomainCustomer})
	}
	for _, target := range targets {
		rules = append(rules, domain.ToIdentity{Domain: domain.DomainCustomer, SubjectID: target})
	}
	rules = append(rules, domain.ToDomain{Domain: domain.DomainAdmin})

	event := domain.NewEvent(domain.EventNotificationNew, notification).WithAuthor(actor)
	delivered := h.publisher.Publish(event, rules...)

	h.logger.InfoContext(ctx, "notification broadcast",
		"notification_id", notification.NotificationID,
		"targets", len(targets),
		"deliveries", delivered,
	)
	return notification, nil
}

func uniqueTargets(targets []string) []string {
	seen := make(map[string]struct{}, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
