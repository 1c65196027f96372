package services

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
	"golang.org/x/time/rate"
)

// Connection is one live, authenticated duplex channel to an actor. Its
// identity and domain are fixed at admission; room memberships are owned by
// the RoomManager.
type Connection struct {
	id       string
	identity domain.Identity
	domain   domain.Domain
	sink     ports.Sink

	// limiter throttles inbound actions; nil means unlimited.
	limiter *rate.Limiter

	lastSeen  atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewConnection creates a connection. Callers outside this package only need
// it for tests; the Relay creates connections on admission.
func NewConnection(id string, identity domain.Identity, d domain.Domain, sink ports.Sink) *Connection {
	c := &Connection{
		id:       id,
		identity: identity,
		domain:   d,
		sink:     sink,
	}
	c.touch(time.Now())
	return c
}

// ID returns the transport-independent connection id.
func (c *Connection) ID() string {
	return c.id
}

// Identity returns the verified identity of the connection.
func (c *Connection) Identity() domain.Identity {
	return c.identity
}

// Domain returns the trust domain of the connection.
func (c *Connection) Domain() domain.Domain {
	return c.domain
}

// IdentityRoom returns the identity room the connection always belongs to.
func (c *Connection) IdentityRoom() domain.QualifiedRoom {
	return domain.QualifiedRoom{Domain: c.domain, Name: domain.IdentityRoom(c.identity.SubjectID)}
}

// LastSeen returns the time of the last inbound activity.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// IsClosed reports whether the connection has been torn down.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// Send queues an event on the transport. A closed connection silently drops it.
func (c *Connection) Send(event domain.Event) bool {
	if c.closed.Load() {
		return false
	}
	return c.sink.Deliver(event)
}

func (c *Connection) touch(t time.Time) {
	c.lastSeen.Store(t.UnixNano())
}

func (c *Connection) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.sink.Close()
	})
}
