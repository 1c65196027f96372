package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
)

// RoomManager tracks which live connections belong to which domain-qualified
// rooms. It is the only holder of membership state and the single place that
// decides whether a connection may join a room.
type RoomManager struct {
	owners ports.OwnerResolver

	// mu protects every map below
	mu sync.RWMutex

	// members maps connection ids to their state
	members map[string]*membership

	// rooms maps qualified rooms to their members
	rooms map[domain.QualifiedRoom]map[string]*Connection

	// domains maps each trust domain to its live connections
	domains map[domain.Domain]map[string]*Connection

	// closed is set by Reset; no connection is admitted afterwards
	closed bool

	logger *slog.Logger
}

type membership struct {
	conn  *Connection
	rooms map[domain.RoomName]struct{}
}

// Stats is a point-in-time view of membership state.
type Stats struct {
	Connections map[domain.Domain]int `json:"connections"`
	Rooms       int                   `json:"rooms"`
}

// NewRoomManager creates an empty manager.
func NewRoomManager(owners ports.OwnerResolver, logger *slog.Logger) *RoomManager {
	return &RoomManager{
		owners:  owners,
		members: make(map[string]*membership),
		rooms:   make(map[domain.QualifiedRoom]map[string]*Connection),
		domains: map[domain.Domain]map[string]*Connection{
			domain.DomainAdmin:    {},
			domain.DomainCustomer: {},
		},
		logger: logger.With("component", "room_manager"),
	}
}

// Register admits a connection to its domain and its identity room.
func (m *RoomManager) Register(conn *Connection) error {
	if !conn.Domain().IsValid() {
		return apperrors.ErrDomainMismatch
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return apperrors.ErrRelayStopped
	}
	if _, exists := m.members[conn.ID()]; exists {
		return fmt.Errorf("connection %s is already registered", conn.ID())
	}

	identityRoom := conn.IdentityRoom()
	m.members[conn.ID()] = &membership{
		conn:  conn,
		rooms: map[domain.RoomName]struct{}{identityRoom.Name: {}},
	}
	m.domains[conn.Domain()][conn.ID()] = conn
	m.addLocked(identityRoom, conn)

	return nil
}

// Join adds conn to a resource room of its own domain. Joining twice is a no-op.
func (m *RoomManager) Join(ctx context.Context, conn *Connection, name domain.RoomName) error {
	ref, err := domain.ParseRoom(name)
	if err != nil {
		return err
	}

	if ref.IsIdentity {
		if ref.ResourceID == conn.Identity().SubjectID {
			return nil
		}
		return apperrors.ErrForbidden
	}

	// The owner lookup runs outside the lock.
	if err := m.authorize(ctx, conn, ref); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.members[conn.ID()]
	if !ok {
		return apperrors.ErrConnectionClosed
	}
	if _, joined := state.rooms[name]; joined {
		return nil
	}

	state.rooms[name] = struct{}{}
	m.addLocked(domain.QualifiedRoom{Domain: conn.Domain(), Name: name}, conn)

	m.logger.Debug("connection joined room",
		"connection_id", conn.ID(),
		"domain", conn.Domain(),
		"room", name,
	)
	return nil
}

// Leave removes conn from a resource room. Leaving a room that was never
// joined is a no-op; the identity room cannot be left.
func (m *RoomManager) Leave(conn *Connection, name domain.RoomName) error {
	ref, err := domain.ParseRoom(name)
	if err != nil {
		return err
	}
	if ref.IsIdentity {
		return apperrors.ErrForbidden
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.members[conn.ID()]
	if !ok {
		return nil
	}
	if _, joined := state.rooms[name]; !joined {
		return nil
	}

	delete(state.rooms, name)
	m.removeLocked(domain.QualifiedRoom{Domain: conn.Domain(), Name: name}, conn.ID())

	m.logger.Debug("connection left room",
		"connection_id", conn.ID(),
		"domain", conn.Domain(),
		"room", name,
	)
	return nil
}

// OnDisconnect drops every membership of conn in one step. It returns false
// when the connection was already gone.
func (m *RoomManager) OnDisconnect(conn *Connection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.members[conn.ID()]
	if !ok {
		return false
	}

	for name := range state.rooms {
		m.removeLocked(domain.QualifiedRoom{Domain: conn.Domain(), Name: name}, conn.ID())
	}
	delete(m.domains[conn.Domain()], conn.ID())
	delete(m.members, conn.ID())

	return true
}

// Reset removes all state, refuses later registrations and returns the
// connections that were live.
func (m *RoomManager) Reset() []*Connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	conns := make([]*Connection, 0, len(m.members))
	for _, state := range m.members {
		conns = append(conns, state.conn)
	}

	m.members = make(map[string]*membership)
	m.rooms = make(map[domain.QualifiedRoom]map[string]*Connection)
	m.domains = map[domain.Domain]map[string]*Connection{
		domain.DomainAdmin:    {},
		domain.DomainCustomer: {},
	}

	return conns
}

// MembersOf returns the live members of a room in domain d.
func (m *RoomManager) MembersOf(d domain.Domain, name domain.RoomName) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room := m.rooms[domain.QualifiedRoom{Domain: d, Name: name}]
	conns := make([]*Connection, 0, len(room))
	for _, conn := range room {
		conns = append(conns, conn)
	}
	return conns
}

// Rooms returns the rooms conn currently belongs to, sorted.
func (m *RoomManager) Rooms(conn *Connection) []domain.RoomName {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.members[conn.ID()]
	if !ok {
		return nil
	}

	names := make([]domain.RoomName, 0, len(state.rooms))
	for name := range state.rooms {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Connections returns every live connection.
func (m *RoomManager) Connections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*Connection, 0, len(m.members))
	for _, state := range m.members {
		conns = append(conns, state.conn)
	}
	return conns
}

// Stats returns connection counts per domain and the number of live rooms.
func (m *RoomManager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		Connections: map[domain.Domain]int{
			domain.DomainAdmin:    len(m.domains[domain.DomainAdmin]),
			domain.DomainCustomer: len(m.domains[domain.DomainCustomer]),
		},
		Rooms: len(m.rooms),
	}
}

// Resolve turns visibility rules into one de-duplicated snapshot of live
// connections, taken under a single read lock.
func (m *RoomManager) Resolve(rules ...domain.Visibility) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var targets []*Connection

	collect := func(members map[string]*Connection, exceptID string) {
		for id, conn := range members {
			if id == exceptID {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			targets = append(targets, conn)
		}
	}

	for _, rule := range rules {
		switch r := rule.(type) {
		case domain.ToDomain:
			collect(m.domains[r.Domain], "")
		case domain.ToRoom:
			collect(m.rooms[domain.QualifiedRoom{Domain: r.Domain, Name: r.Room}], "")
		case domain.ToIdentity:
			collect(m.rooms[domain.QualifiedRoom{Domain: r.Domain, Name: domain.IdentityRoom(r.SubjectID)}], "")
		case domain.ToRoomExcept:
			collect(m.rooms[domain.QualifiedRoom{Domain: r.Domain, Name: r.Room}], r.ConnectionID)
		}
	}

	return targets
}

// authorize applies per-room domain scoping: the resource must exist, and a
// customer may only observe resources it owns.
func (m *RoomManager) authorize(ctx context.Context, conn *Connection, ref domain.RoomRef) error {
	owner, err := resolveOwner(ctx, m.owners, ref.Kind, ref.ResourceID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrUnknownResource) {
			m.logger.Error("owner lookup failed",
				"connection_id", conn.ID(),
				"room", ref.Name,
				"error", err,
			)
		}
		return err
	}

	if conn.Domain() == domain.DomainCustomer && owner != conn.Identity().SubjectID {
		return apperrors.ErrForbidden
	}
	return nil
}

func (m *RoomManager) addLocked(room domain.QualifiedRoom, conn *Connection) {
	if m.rooms[room] == nil {
		m.rooms[room] = make(map[string]*Connection)
	}
	m.rooms[room][conn.ID()] = conn
}

func (m *RoomManager) removeLocked(room domain.QualifiedRoom, connID string) {
	if members, ok := m.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
}
