package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifier_Verify(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	verifier := NewVerifier(tm)
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	staffToken, err := tm.GenerateToken(domain.Identity{SubjectID: "staff-1", Role: domain.RoleStaff, DisplayName: "Sam"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		credential string
		want       domain.Identity
		wantErr    error
	}{
		{
			name:       "valid staff token",
			credential: staffToken,
			want:       domain.Identity{SubjectID: "staff-1", Role: domain.RoleStaff, DisplayName: "Sam"},
		},
		{
			name:       "empty",
			credential: "  ",
			wantErr:    apperrors.ErrUnauthenticated,
		},
		{
			name:       "garbage",
			credential: "not-a-jwt",
			wantErr:    apperrors.ErrInvalidCredential,
		},
		{
			name:       "wrong secret",
			credential: signed(t, "other", &Claims{Role: "staff", RegisteredClaims: jwt.RegisteredClaims{Subject: "s", ExpiresAt: future}}),
			wantErr:    apperrors.ErrInvalidCredential,
		},
		{
			name:       "missing subject",
			credential: signed(t, "secret", &Claims{Role: "customer", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}),
			wantErr:    apperrors.ErrInvalidCredential,
		},
		{
			name:       "missing role",
			credential: signed(t, "secret", &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "c1", ExpiresAt: future}}),
			wantErr:    apperrors.ErrInvalidCredential,
		},
		{
			name:       "missing expiry",
			credential: signed(t, "secret", &Claims{Role: "customer", RegisteredClaims: jwt.RegisteredClaims{Subject: "c1"}}),
			wantErr:    apperrors.ErrInvalidCredential,
		},
		{
			name:       "unknown role",
			credential: signed(t, "secret", &Claims{Role: "supplier", RegisteredClaims: jwt.RegisteredClaims{Subject: "x1", ExpiresAt: future}}),
			wantErr:    apperrors.ErrDomainMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := verifier.Verify(context.Background(), tt.credential)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, identity.SubjectID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, identity)
		})
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", token)

	token, ok = BearerToken("bearer xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	for _, header := range []string{"", "Bearer", "Bearer  ", "Basic abc", "abc"} {
		_, ok := BearerToken(header)
		assert.False(t, ok, header)
	}
}
