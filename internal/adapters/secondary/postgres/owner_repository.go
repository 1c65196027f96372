package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
)

// ownerQueries holds one lookup per resource kind. Table names cannot be
// bound as parameters, so they are fixed here.
var ownerQueries = map[domain.ResourceKind]string{
	domain.ResourceOrder:       `SELECT customer_id FROM orders WHERE id = $1`,
	domain.ResourceReservation: `SELECT customer_id FROM reservations WHERE id = $1`,
	domain.ResourceChatSession: `SELECT customer_id FROM chat_sessions WHERE id = $1`,
}

// OwnerRepository resolves resource owners from the restaurant database.
type OwnerRepository struct {
	pool *pgxpool.Pool
}

var _ ports.OwnerResolver = (*OwnerRepository)(nil)

// NewOwnerRepository creates a new owner repository.
func NewOwnerRepository(pool *pgxpool.Pool) *OwnerRepository {
	return &OwnerRepository{pool: pool}
}

// ResolveOwner returns the customer subject id owning the resource.
func (r *OwnerRepository) ResolveOwner(ctx context.Context, kind domain.ResourceKind, resourceID string) (string, error) {
	query, ok := ownerQueries[kind]
	if !ok {
		return "", fmt.Errorf("%w: kind %q", apperrors.ErrUnknownResource, kind)
	}

	var owner string
	if err := r.pool.QueryRow(ctx, query, resourceID).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrUnknownResource
		}
		return "", fmt.Errorf("lookup %s %s: %w", kind, resourceID, err)
	}

	return owner, nil
}

// Ping checks database connectivity.
func (r *OwnerRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
