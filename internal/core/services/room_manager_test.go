package services

import (
	"context"
	"errors"
	"testing"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomManager_RegisterJoinsIdentityRoom(t *testing.T) {
	h := newHarness()
	conn, _ := h.connect(t, customer1)

	assert.Equal(t, []domain.RoomName{domain.IdentityRoom("cust-1")}, h.rooms.Rooms(conn))
	assert.Len(t, h.rooms.MembersOf(domain.DomainCustomer, domain.IdentityRoom("cust-1")), 1)
	assert.Empty(t, h.rooms.MembersOf(domain.DomainAdmin, domain.IdentityRoom("cust-1")))

	err := h.rooms.Register(conn)
	assert.Error(t, err)
}

func TestRoomManager_Join(t *testing.T) {
	tests := []struct {
		name     string
		identity domain.Identity
		room     domain.RoomName
		wantErr  error
	}{
		{"customer joins own order", customer1, "order:42", nil},
		{"customer joins own chat session", customer1, "chat-session:s1", nil},
		{"customer joins foreign order", customer1, "order:43", apperrors.ErrForbidden},
		{"customer joins missing order", customer1, "order:999", apperrors.ErrUnknownResource},
		{"staff joins any order", staff, "order:43", nil},
		{"admin joins any reservation", admin, "reservation:r1", nil},
		{"staff joins missing order", staff, "order:999", apperrors.ErrUnknownResource},
		{"unknown kind", staff, "voucher:1", apperrors.ErrUnknownResource},
		{"malformed", customer1, "order", apperrors.ErrUnknownResource},
		{"own identity room is a no-op", customer1, domain.IdentityRoom("cust-1"), nil},
		{"foreign identity room", customer1, domain.IdentityRoom("cust-2"), apperrors.ErrForbidden},
		{"staff cannot join customer identity room", staff, domain.IdentityRoom("cust-1"), apperrors.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			conn, _ := h.connect(t, tt.identity)

			err := h.rooms.Join(context.Background(), conn, tt.room)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Len(t, h.rooms.Rooms(conn), 1, "a rejected join must not add membership")
				return
			}
			require.NoError(t, err)
			assert.Contains(t, h.rooms.Rooms(conn), tt.room)
		})
	}
}

func TestRoomManager_JoinLeaveAreIdempotent(t *testing.T) {
	h := newHarness()
	conn, _ := h.connect(t, staff)

	h.join(t, conn, "order:42")
	h.join(t, conn, "order:42")
	assert.Len(t, h.rooms.MembersOf(domain.DomainAdmin, "order:42"), 1)
	assert.Len(t, h.rooms.Rooms(conn), 2)

	require.NoError(t, h.rooms.Leave(conn, "order:42"))
	require.NoError(t, h.rooms.Leave(conn, "order:42"))
	assert.Empty(t, h.rooms.MembersOf(domain.DomainAdmin, "order:42"))
	assert.Equal(t, 1, h.rooms.Stats().Rooms, "only the identity room remains")

	require.NoError(t, h.rooms.Leave(conn, "reservation:never-joined"))
}

func TestRoomManager_IdentityRoomCannotBeLeft(t *testing.T) {
	h := newHarness()
	conn, _ := h.connect(t, customer1)

	err := h.rooms.Leave(conn, domain.IdentityRoom("cust-1"))
	require.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Contains(t, h.rooms.Rooms(conn), domain.IdentityRoom("cust-1"))
}

func TestRoomManager_SameRoomNameIsolatedAcrossDomains(t *testing.T) {
	h := newHarness()
	staffConn, _ := h.connect(t, staff)
	custConn, _ := h.connect(t, customer1)

	h.join(t, staffConn, "order:42")
	h.join(t, custConn, "order:42")

	staffMembers := h.rooms.MembersOf(domain.DomainAdmin, "order:42")
	custMembers := h.rooms.MembersOf(domain.DomainCustomer, "order:42")
	require.Len(t, staffMembers, 1)
	require.Len(t, custMembers, 1)
	assert.Equal(t, staffConn.ID(), staffMembers[0].ID())
	assert.Equal(t, custConn.ID(), custMembers[0].ID())
}

func TestRoomManager_DomainNeverChanges(t *testing.T) {
	h := newHarness()
	conn, _ := h.connect(t, customer1)

	h.join(t, conn, "order:42")
	_ = h.rooms.Join(context.Background(), conn, "order:43")
	_ = h.rooms.Leave(conn, "order:42")
	h.join(t, conn, "reservation:r1")

	assert.Equal(t, domain.DomainCustomer, conn.Domain())
	for _, c := range h.rooms.Resolve(domain.ToDomain{Domain: domain.DomainAdmin}) {
		assert.NotEqual(t, conn.ID(), c.ID())
	}
}

func TestRoomManager_OnDisconnect(t *testing.T) {
	h := newHarness()
	conn, _ := h.connect(t, staff)
	other, _ := h.connect(t, admin)

	h.join(t, conn, "order:42")
	h.join(t, conn, "reservation:r1")
	h.join(t, other, "order:42")

	assert.True(t, h.rooms.OnDisconnect(conn))
	assert.False(t, h.rooms.OnDisconnect(conn), "second disconnect is a no-op")

	for _, room := range []domain.RoomName{"order:42", "reservation:r1", domain.IdentityRoom("staff-1")} {
		for _, member := range h.rooms.MembersOf(domain.DomainAdmin, room) {
			assert.NotEqual(t, conn.ID(), member.ID(), "stale membership in %s", room)
		}
	}
	assert.Nil(t, h.rooms.Rooms(conn))
	assert.Len(t, h.rooms.MembersOf(domain.DomainAdmin, "order:42"), 1)

	err := h.rooms.Join(context.Background(), conn, "order:42")
	assert.ErrorIs(t, err, apperrors.ErrConnectionClosed)
}

func TestRoomManager_ResolverFailureIsInternal(t *testing.T) {
	h := newHarness()
	h.owners.err = errors.New("connection refused")
	conn, _ := h.connect(t, staff)

	err := h.rooms.Join(context.Background(), conn, "order:42")
	require.ErrorIs(t, err, apperrors.ErrInternal)
	assert.Equal(t, apperrors.CodeInternal, apperrors.Code(err))
}

func TestRoomManager_ResolveDeduplicates(t *testing.T) {
	h := newHarness()
	s1, _ := h.connect(t, staff)
	s2, _ := h.connect(t, admin)
	h.join(t, s1, "order:42")

	targets := h.rooms.Resolve(
		domain.ToDomain{Domain: domain.DomainAdmin},
		domain.ToRoom{Domain: domain.DomainAdmin, Room: "order:42"},
		domain.ToIdentity{Domain: domain.DomainAdmin, SubjectID: "staff-1"},
	)
	ids := make([]string, 0, len(targets))
	for _, c := range targets {
		ids = append(ids, c.ID())
	}
	assert.ElementsMatch(t, []string{s1.ID(), s2.ID()}, ids)
}

func TestRoomManager_ResetAndStats(t *testing.T) {
	h := newHarness()
	c1, _ := h.connect(t, staff)
	h.connect(t, customer1)
	h.join(t, c1, "order:42")

	stats := h.rooms.Stats()
	assert.Equal(t, 1, stats.Connections[domain.DomainAdmin])
	assert.Equal(t, 1, stats.Connections[domain.DomainCustomer])
	assert.Equal(t, 3, stats.Rooms)

	conns := h.rooms.Reset()
	assert.Len(t, conns, 2)
	assert.Empty(t, h.rooms.Connections())
	assert.Equal(t, 0, h.rooms.Stats().Rooms)
}

func TestRoomManager_RegisterAfterResetIsRefused(t *testing.T) {
	h := newHarness()
	h.rooms.Reset()

	late := NewConnection("late", customer1, domain.DomainCustomer, &fakeSink{})
	err := h.rooms.Register(late)
	require.ErrorIs(t, err, apperrors.ErrRelayStopped)
	assert.Empty(t, h.rooms.Connections())
	assert.Equal(t, 0, h.rooms.Stats().Connections[domain.DomainCustomer])
}
