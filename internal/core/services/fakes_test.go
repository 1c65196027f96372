package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSink records delivered events in order.
type fakeSink struct {
	mu     sync.Mutex
	events []domain.Event
	closed bool
	full   bool
}

func (s *fakeSink) Deliver(event domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.full {
		return false
	}
	s.events = append(s.events, event)
	return true
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

func (s *fakeSink) Types() []domain.EventType {
	var types []domain.EventType
	for _, e := range s.Events() {
		types = append(types, e.Type)
	}
	return types
}

// Last returns the most recent event, failing the test if there is none.
func (s *fakeSink) Last(t *testing.T) domain.Event {
	t.Helper()
	events := s.Events()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

func (s *fakeSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *fakeSink) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// countOf returns how many events of type et the sink received.
func (s *fakeSink) countOf(et domain.EventType) int {
	n := 0
	for _, e := range s.Events() {
		if e.Type == et {
			n++
		}
	}
	return n
}

// fakeOwners resolves owners from a fixed table keyed by room name.
type fakeOwners struct {
	owners map[domain.RoomName]string
	err    error
	calls  int
	mu     sync.Mutex
}

func newFakeOwners() *fakeOwners {
	return &fakeOwners{owners: map[domain.RoomName]string{
		"order:42":        "cust-1",
		"order:43":        "cust-2",
		"reservation:r1":  "cust-1",
		"chat-session:s1": "cust-1",
		"chat-session:s2": "cust-2",
	}}
}

func (f *fakeOwners) ResolveOwner(_ context.Context, kind domain.ResourceKind, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	owner, ok := f.owners[domain.ResourceRoom(kind, id)]
	if !ok {
		return "", apperrors.ErrUnknownResource
	}
	return owner, nil
}

var (
	staff     = domain.Identity{SubjectID: "staff-1", Role: domain.RoleStaff, DisplayName: "Sam"}
	admin     = domain.Identity{SubjectID: "admin-1", Role: domain.RoleAdmin}
	customer1 = domain.Identity{SubjectID: "cust-1", Role: domain.RoleCustomer, DisplayName: "Ana"}
	customer2 = domain.Identity{SubjectID: "cust-2", Role: domain.RoleCustomer}
)

// harness is a relay-less setup of the room manager and fanout.
type harness struct {
	owners *fakeOwners
	rooms  *RoomManager
	fanout *Fanout
	nextID int
}

func newHarness() *harness {
	owners := newFakeOwners()
	rooms := NewRoomManager(owners, testLogger())
	return &harness{
		owners: owners,
		rooms:  rooms,
		fanout: NewFanout(rooms, nil, testLogger()),
	}
}

// connect registers a new connection for identity and returns its sink.
func (h *harness) connect(t *testing.T, identity domain.Identity) (*Connection, *fakeSink) {
	t.Helper()
	d, err := NewDomainRouter().Route(identity)
	require.NoError(t, err)

	h.nextID++
	sink := &fakeSink{}
	conn := NewConnection(fmt.Sprintf("%s-conn-%d", identity.SubjectID, h.nextID), identity, d, sink)
	require.NoError(t, h.rooms.Register(conn))
	return conn, sink
}

func (h *harness) join(t *testing.T, conn *Connection, room domain.RoomName) {
	t.Helper()
	require.NoError(t, h.rooms.Join(context.Background(), conn, room))
}
