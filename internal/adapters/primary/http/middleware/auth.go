package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lorrc/restaurant-relay/internal/auth"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
	"github.com/lorrc/restaurant-relay/internal/core/services"
	"github.com/lorrc/restaurant-relay/internal/infrastructure/logging"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// IdentityKey is the key used to store the verified identity in the request context.
	IdentityKey contextKey = "identity"
	// DomainKey is the key used to store the caller's trust domain.
	DomainKey contextKey = "domain"
)

// Authenticate verifies the bearer token of every request and rejects callers
// whose role does not map to a trust domain.
func Authenticate(verifier ports.CredentialVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	router := services.NewDomainRouter()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteAuthError(w, apperrors.ErrUnauthenticated)
				return
			}

			var d domain.Domain
			identity, err := verifier.Verify(r.Context(), token)
			if err == nil {
				d, err = router.Route(identity)
			}
			if err != nil {
				logger.WarnContext(r.Context(), "request rejected",
					"path", r.URL.Path,
					"code", apperrors.Code(err),
				)
				WriteAuthError(w, err)
				return
			}

			if rw, ok := w.(*responseWriter); ok {
				rw.subjectID = identity.SubjectID
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			ctx = context.WithValue(ctx, DomainKey, d)
			ctx = logging.WithSubjectID(ctx, identity.SubjectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireDomain lets through only callers that Authenticate placed in d.
func RequireDomain(d domain.Domain, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got, ok := DomainFromContext(r.Context()); !ok || got != d {
				logger.WarnContext(r.Context(), "request rejected",
					"path", r.URL.Path,
					"domain", got,
					"code", apperrors.CodeForbidden,
				)
				WriteAuthError(w, apperrors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext returns the identity stored by Authenticate.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(domain.Identity)
	return identity, ok
}

// DomainFromContext returns the trust domain stored by Authenticate.
func DomainFromContext(ctx context.Context) (domain.Domain, bool) {
	d, ok := ctx.Value(DomainKey).(domain.Domain)
	return d, ok
}

// AuthStatus maps a handshake error onto its HTTP status.
func AuthStatus(err error) int {
	code := apperrors.Code(err)
	switch code {
	case apperrors.CodeUnauthenticated, apperrors.CodeInvalidCredential:
		return http.StatusUnauthorized
	case apperrors.CodeDomainMismatch, apperrors.CodeForbidden:
		return http.StatusForbidden
	case apperrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteAuthError writes the JSON rejection used for failed handshakes.
func WriteAuthError(w http.ResponseWriter, err error) {
	status := AuthStatus(err)
	message := "Authentication required"
	switch status {
	case http.StatusForbidden:
		message = "Role is not allowed to use the relay"
		if apperrors.Code(err) == apperrors.CodeForbidden {
			message = "Only staff may report relay events"
		}
	case http.StatusServiceUnavailable:
		message = "Relay is shutting down"
	case http.StatusInternalServerError:
		message = "An unexpected error occurred"
	default:
		if apperrors.Code(err) == apperrors.CodeInvalidCredential {
			message = "Invalid or expired token"
		}
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  apperrors.Code(err),
	})
}
