package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
)

// resolveOwner looks up the owning customer of a resource. A missing
// resource or an empty owner is reported as ErrUnknownResource; any other
// failure is wrapped as internal.
func resolveOwner(ctx context.Context, owners ports.OwnerResolver, kind domain.ResourceKind, id string) (string, error) {
	owner, err := owners.ResolveOwner(ctx, kind, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnknownResource) {
			return "", apperrors.ErrUnknownResource
		}
		return "", fmt.Errorf("%w: resolve %s %s: %w", apperrors.ErrInternal, kind, id, err)
	}
	if owner == "" {
		return "", apperrors.ErrUnknownResource
	}
	return owner, nil
}

// requireOwnership resolves the owner and rejects customers that do not own
// the resource. Staff pass as long as the resource exists.
func requireOwnership(ctx context.Context, owners ports.OwnerResolver, actor domain.Identity, kind domain.ResourceKind, id string) (string, error) {
	owner, err := resolveOwner(ctx, owners, kind, id)
	if err != nil {
		return "", err
	}
	if actor.IsCustomer() && owner != actor.SubjectID {
		return "", apperrors.ErrForbidden
	}
	return owner, nil
}

func requireStaff(actor domain.Identity) error {
	if !actor.IsStaff() {
		return apperrors.ErrForbidden
	}
	return nil
}
