package services

import (
	"fmt"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
)

// DomainRouter assigns verified identities to a trust domain. It is the one
// place where roles map onto domains.
type DomainRouter struct{}

// NewDomainRouter creates a router.
func NewDomainRouter() *DomainRouter {
	return &DomainRouter{}
}

// Route returns the domain for identity, or ErrDomainMismatch.
func (r *DomainRouter) Route(identity domain.Identity) (domain.Domain, error) {
	switch identity.Role {
	case domain.RoleAdmin, domain.RoleStaff:
		return domain.DomainAdmin, nil
	case domain.RoleCustomer:
		return domain.DomainCustomer, nil
	default:
		return "", fmt.Errorf("%w: role %q", apperrors.ErrDomainMismatch, identity.Role)
	}
}
