package services

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
	"golang.org/x/time/rate"
)

// Disconnect reasons reported to metrics.
const (
	ReasonClosed   = "closed"
	ReasonIdle     = "idle"
	ReasonShutdown = "shutdown"
)

// RelayConfig holds relay tuning knobs.
type RelayConfig struct {
	// IdleTimeout disconnects connections without inbound activity; zero disables it.
	IdleTimeout  time.Duration
	ReapInterval time.Duration

	// ActionRate is the sustained number of inbound actions per second a
	// connection may send; zero disables the limit.
	ActionRate  float64
	ActionBurst int
}

// Admission is the outcome of a successful handshake check.
type Admission struct {
	Identity domain.Identity
	Domain   domain.Domain
}

// Relay is the process-wide event relay. It admits connections, dispatches
// their actions and tears them down exactly once.
type Relay struct {
	verifier ports.CredentialVerifier
	router   *DomainRouter
	rooms    *RoomManager
	fanout   *Fanout
	handlers Handlers
	actions  map[domain.ActionType]ActionFunc
	metrics  ports.RelayMetrics
	clock    clock.Clock
	cfg      RelayConfig
	stopped  atomic.Bool
	logger   *slog.Logger
}

// Option customizes a Relay.
type Option func(*Relay)

// WithClock replaces the wall clock used for idle tracking.
func WithClock(c clock.Clock) Option {
	return func(r *Relay) {
		r.clock = c
	}
}

// WithMetrics records relay activity on m.
func WithMetrics(m ports.RelayMetrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// NewRelay wires the relay core around its two collaborators.
func NewRelay(
	verifier ports.CredentialVerifier,
	owners ports.OwnerResolver,
	cfg RelayConfig,
	logger *slog.Logger,
	opts ...Option,
) *Relay {
	r := &Relay{
		verifier: verifier,
		router:   NewDomainRouter(),
		metrics:  noopMetrics{},
		clock:    clock.New(),
		cfg:      cfg,
		logger:   logger.With("component", "relay"),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.rooms = NewRoomManager(owners, logger)
	r.fanout = NewFanout(r.rooms, r.metrics, logger)
	r.handlers = NewHandlers(r.fanout, owners, logger)
	r.actions = r.handlers.Actions()

	return r
}

// Rooms exposes the membership manager.
func (r *Relay) Rooms() *RoomManager {
	return r.rooms
}

// Publisher exposes the fanout engine.
func (r *Relay) Publisher() ports.EventPublisher {
	return r.fanout
}

// Handlers exposes the domain handlers for REST fact reporting.
func (r *Relay) Handlers() Handlers {
	return r.handlers
}

// Stats reports live connection and room counts.
func (r *Relay) Stats() Stats {
	return r.rooms.Stats()
}

// Authenticate verifies a credential and routes it to a trust domain. It is
// called before the transport is upgraded so failures can be rejected
// without creating any state.
func (r *Relay) Authenticate(ctx context.Context, credential string) (Admission, error) {
	if r.stopped.Load() {
		return Admission{}, apperrors.ErrRelayStopped
	}

	identity, err := r.verifier.Verify(ctx, credential)
	if err != nil {
		r.metrics.ConnectionRejected(apperrors.Code(err))
		return Admission{}, err
	}

	d, err := r.router.Route(identity)
	if err != nil {
		r.metrics.ConnectionRejected(apperrors.Code(err))
		return Admission{}, err
	}

	return Admission{Identity: identity, Domain: d}, nil
}

// Connect registers an admitted connection, joins it to its identity room
// and greets it with a connected event.
func (r *Relay) Connect(ctx context.Context, admission Admission, sink ports.Sink) (*Connection, error) {
	if r.stopped.Load() {
		return nil, apperrors.ErrRelayStopped
	}

	conn := NewConnection(uuid.NewString(), admission.Identity, admission.Domain, sink)
	conn.touch(r.clock.Now())
	if r.cfg.ActionRate > 0 {
		burst := r.cfg.ActionBurst
		if burst < 1 {
			burst = 1
		}
		conn.limiter = rate.NewLimiter(rate.Limit(r.cfg.ActionRate), burst)
	}

	if err := r.rooms.Register(conn); err != nil {
		return nil, err
	}
	r.metrics.ConnectionOpened(conn.Domain())

	r.logger.InfoContext(ctx, "connection opened",
		"connection_id", conn.ID(),
		"subject_id", conn.Identity().SubjectID,
		"domain", conn.Domain(),
	)

	conn.Send(domain.NewEvent(domain.EventConnected, domain.ConnectedPayload{
		ConnectionID: conn.ID(),
		Domain:       conn.Domain(),
		Identity:     conn.Identity(),
		Room:         domain.IdentityRoom(conn.Identity().SubjectID),
	}))

	return conn, nil
}

// Handle processes one inbound action. Every outcome is reported to the
// originating connection only; the returned error is for logging.
func (r *Relay) Handle(ctx context.Context, conn *Connection, action domain.Action) error {
	if conn.IsClosed() {
		return apperrors.ErrConnectionClosed
	}
	conn.touch(r.clock.Now())

	var (
		reply domain.Event
		err   error
	)
	if !conn.allow() {
		err = apperrors.NewRateLimitError()
	} else {
		reply, err = r.dispatch(ctx, conn, action)
	}

	if err != nil {
		r.metrics.ActionHandled(action.Type, apperrors.Code(err))
		reply = errorEvent(err)
	} else {
		r.metrics.ActionHandled(action.Type, "OK")
	}

	reply.RequestID = action.RequestID
	conn.Send(reply)
	return err
}

func (r *Relay) dispatch(ctx context.Context, conn *Connection, action domain.Action) (domain.Event, error) {
	switch action.Type {
	case domain.ActionPing:
		return domain.NewEvent(domain.EventPong, nil), nil

	case domain.ActionRoomJoin:
		req, err := decode[domain.RoomRequest](action)
		if err != nil {
			return domain.Event{}, err
		}
		if err := r.rooms.Join(ctx, conn, req.Room); err != nil {
			return domain.Event{}, err
		}
		return domain.NewEvent(domain.EventRoomJoined, domain.RoomPayload{Room: req.Room}), nil

	case domain.ActionRoomLeave:
		req, err := decode[domain.RoomRequest](action)
		if err != nil {
			return domain.Event{}, err
		}
		if err := r.rooms.Leave(conn, req.Room); err != nil {
			return domain.Event{}, err
		}
		return domain.NewEvent(domain.EventRoomLeft, domain.RoomPayload{Room: req.Room}), nil
	}

	fn, ok := r.actions[action.Type]
	if !ok {
		return domain.Event{}, apperrors.ErrUnknownAction
	}
	if err := fn(ctx, conn, action); err != nil {
		return domain.Event{}, err
	}
	return domain.NewEvent(domain.EventAck, nil), nil
}

// Disconnect tears conn down. Memberships are removed before the transport is
// closed; repeated calls are no-ops.
func (r *Relay) Disconnect(conn *Connection, reason string) {
	if !r.rooms.OnDisconnect(conn) {
		conn.close()
		return
	}
	conn.close()
	r.metrics.ConnectionClosed(conn.Domain(), reason)

	r.logger.Info("connection closed",
		"connection_id", conn.ID(),
		"subject_id", conn.Identity().SubjectID,
		"reason", reason,
	)
}

// Run reaps idle connections until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	if r.cfg.IdleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}

	interval := r.cfg.ReapInterval
	if interval <= 0 {
		interval = r.cfg.IdleTimeout / 2
	}

	ticker := r.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.reapIdle()
		}
	}
}

// reapIdle disconnects every connection idle for longer than the timeout and
// returns how many were removed.
func (r *Relay) reapIdle() int {
	now := r.clock.Now()
	reaped := 0
	for _, conn := range r.rooms.Connections() {
		if now.Sub(conn.LastSeen()) > r.cfg.IdleTimeout {
			r.Disconnect(conn, ReasonIdle)
			reaped++
		}
	}
	if reaped > 0 {
		r.logger.Info("idle connections reaped", "count", reaped)
	}
	return reaped
}

// Shutdown stops admitting connections, closes every live one and clears
// all room state.
func (r *Relay) Shutdown(ctx context.Context) error {
	if r.stopped.Swap(true) {
		return nil
	}

	conns := r.rooms.Reset()
	for _, conn := range conns {
		conn.close()
		r.metrics.ConnectionClosed(conn.Domain(), ReasonShutdown)
	}

	r.logger.InfoContext(ctx, "relay stopped", "closed_connections", len(conns))
	return nil
}

// errorEvent renders err as an error frame. Internal failures never leak
// their cause.
func errorEvent(err error) domain.Event {
	code := apperrors.Code(err)

	message := err.Error()
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr) && appErr.Message != "":
		message = appErr.Message
	case code == apperrors.CodeInternal:
		message = "An unexpected error occurred"
	}

	var payload any = domain.ErrorPayload{Code: code, Message: message}
	var validationErrs *apperrors.ValidationErrors
	if errors.As(err, &validationErrs) {
		payload = validationErrorPayload{
			ErrorPayload: domain.ErrorPayload{Code: code, Message: message},
			Fields:       validationErrs.Errors,
		}
	}

	return domain.NewEvent(domain.EventError, payload)
}

type validationErrorPayload struct {
	domain.ErrorPayload
	Fields map[string][]string `json:"fields"`
}

type noopMetrics struct{}

func (noopMetrics) ConnectionOpened(domain.Domain) {}
func (noopMetrics) ConnectionClosed(domain.Domain, string) {}
func (noopMetrics) ConnectionRejected(string) {}
func (noopMetrics) EventPublished(domain.EventType, int) {}
func (noopMetrics) ActionHandled(domain.ActionType, string) {}
