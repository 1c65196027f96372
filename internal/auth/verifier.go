package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
)

// Verifier turns bearer tokens into identities.
type Verifier struct {
	tm *TokenManager
}

var _ ports.CredentialVerifier = (*Verifier)(nil)

func NewVerifier(tm *TokenManager) *Verifier {
	return &Verifier{tm: tm}
}

// Verify validates credential and projects its claims onto an Identity. A
// role outside the known set is refused with ErrDomainMismatch.
func (v *Verifier) Verify(_ context.Context, credential string) (domain.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return domain.Identity{}, apperrors.ErrUnauthenticated
	}

	claims, err := v.tm.ValidateToken(credential)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidCredential, err)
	}

	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing subject", apperrors.ErrInvalidCredential)
	}
	if claims.Role == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing role", apperrors.ErrInvalidCredential)
	}
	if role := domain.Role(claims.Role); !role.IsValid() {
		return domain.Identity{}, fmt.Errorf("%w: role %q", apperrors.ErrDomainMismatch, role)
	}

	return domain.Identity{
		SubjectID:   claims.Subject,
		Role:        domain.Role(claims.Role),
		DisplayName: claims.Name,
	}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer ..." value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
