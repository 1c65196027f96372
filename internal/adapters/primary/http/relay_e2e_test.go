package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/restaurant-relay/internal/auth"
	"github.com/lorrc/restaurant-relay/internal/config"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/lorrc/restaurant-relay/internal/core/mocks"
	"github.com/lorrc/restaurant-relay/internal/core/services"
)

const testSecret = "test-secret-with-at-least-32-characters"

var (
	staffIdentity     = domain.Identity{SubjectID: "staff-1", Role: domain.RoleStaff, DisplayName: "Sam"}
	customerIdentity  = domain.Identity{SubjectID: "cust-1", Role: domain.RoleCustomer}
	otherCustomer     = domain.Identity{SubjectID: "cust-2", Role: domain.RoleCustomer}
	supplierIdentity  = domain.Identity{SubjectID: "sup-1", Role: "supplier"}
	errNoMoreMessages = errors.New("no message before deadline")
)

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	relay  *services.Relay
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	owners := mocks.NewMockOwnerResolver()
	owners.On("ResolveOwner", mock.Anything, domain.ResourceOrder, "42").Return("cust-1", nil).Maybe()
	owners.On("ResolveOwner", mock.Anything, domain.ResourceOrder, "43").Return("cust-2", nil).Maybe()
	owners.On("ResolveOwner", mock.Anything, mock.Anything, mock.Anything).Return("", apperrors.ErrUnknownResource).Maybe()

	tokens := auth.NewTokenManager(testSecret, time.Hour)
	verifier := auth.NewVerifier(tokens)
	relay := services.NewRelay(verifier, owners, services.RelayConfig{}, logger)

	cfg := &config.Config{
		App: config.AppConfig{Environment: "development"},
		WebSocket: config.WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    time.Second,
			PongWait:        2 * time.Second,
			WriteWait:       time.Second,
			MaxMessageSize:  8192,
			SendBuffer:      32,
		},
	}

	errorHandler := NewErrorHandler(logger)
	router := NewRouter(RouterConfig{
		WebSocket: NewWebSocketHandler(relay, cfg, logger),
		Events:    NewRelayEventsHandler(relay.Handlers(), errorHandler, logger),
		Health:    NewHealthHandler(relay, "test"),
		Verifier:  verifier,
		Logger:    logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		_ = relay.Shutdown(context.Background())
		srv.Close()
	})

	return &testServer{t: t, srv: srv, relay: relay, tokens: tokens}
}

func (s *testServer) token(identity domain.Identity) string {
	s.t.Helper()
	token, err := s.tokens.GenerateToken(identity)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) wsURL(token string) string {
	u := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/v1/ws"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

// dial connects identity and consumes the connected greeting.
func (s *testServer) dial(identity domain.Identity) *websocket.Conn {
	s.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(s.token(identity)), nil)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = conn.Close() })

	greeting := mustRead(s.t, conn)
	require.Equal(s.t, domain.EventConnected, greeting.Type)
	return conn
}

func (s *testServer) post(identity domain.Identity, path string, body any) *stdhttp.Response {
	s.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(s.t, err)

	req, err := stdhttp.NewRequest(stdhttp.MethodPost, s.srv.URL+"/api/v1/relay/events"+path, bytes.NewReader(raw))
	require.NoError(s.t, err)
	req.Header.Set("Authorization", "Bearer "+s.token(identity))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

type wireEvent struct {
	Type      domain.EventType `json:"type"`
	RequestID string           `json:"requestId"`
	Payload   json.RawMessage  `json:"payload"`
}

func readWithin(conn *websocket.Conn, d time.Duration) (wireEvent, error) {
	var event wireEvent
	if err := conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return event, err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return event, errNoMoreMessages
		}
		return event, err
	}
	return event, json.Unmarshal(raw, &event)
}

func mustRead(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	event, err := readWithin(conn, 2*time.Second)
	require.NoError(t, err)
	return event
}

// send writes an action and returns the reply addressed to it.
func send(t *testing.T, conn *websocket.Conn, actionType domain.ActionType, requestID string, payload any) wireEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(domain.Action{Type: actionType, RequestID: requestID, Payload: raw}))

	for {
		event := mustRead(t, conn)
		if event.RequestID == requestID {
			return event
		}
	}
}

func TestWebSocket_HandshakeRejections(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantCode   string
	}{
		{"missing token", s.wsURL(""), stdhttp.StatusUnauthorized, apperrors.CodeUnauthenticated},
		{"forged token", s.wsURL("not-a-token"), stdhttp.StatusUnauthorized, apperrors.CodeInvalidCredential},
		{"role without a domain", s.wsURL(s.token(supplierIdentity)), stdhttp.StatusForbidden, apperrors.CodeDomainMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tt.url, nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}

	stats := s.relay.Stats()
	for d, n := range stats.Connections {
		assert.Zero(t, n, "rejected handshakes leave no %s connections", d)
	}
	assert.Zero(t, stats.Rooms, "rejected handshakes leave no rooms")
	assert.Empty(t, s.relay.Rooms().Connections())
}

func TestWebSocket_BearerHeaderIsAccepted(t *testing.T) {
	s := newTestServer(t)

	header := stdhttp.Header{}
	header.Set("Authorization", "Bearer "+s.token(staffIdentity))
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(""), header)
	require.NoError(t, err)
	defer conn.Close()

	greeting := mustRead(t, conn)
	assert.Equal(t, domain.EventConnected, greeting.Type)
	assert.Contains(t, string(greeting.Payload), `"domain":"admin"`)
}

func TestRelay_OrderStatusReachesStaffAndOwnerOnly(t *testing.T) {
	s := newTestServer(t)

	staffConn := s.dial(staffIdentity)
	owner := s.dial(customerIdentity)
	stranger := s.dial(otherCustomer)

	reply := send(t, owner, domain.ActionRoomJoin, "join-1", domain.RoomRequest{Room: "order:42"})
	require.Equal(t, domain.EventRoomJoined, reply.Type)

	reply = send(t, stranger, domain.ActionRoomJoin, "join-2", domain.RoomRequest{Room: "order:42"})
	require.Equal(t, domain.EventError, reply.Type)
	assert.Contains(t, string(reply.Payload), apperrors.CodeForbidden)

	resp := s.post(staffIdentity, "/orders/status", domain.OrderStatusRequest{OrderID: "42", Status: domain.OrderReady})
	require.Equal(t, stdhttp.StatusAccepted, resp.StatusCode)

	assert.Equal(t, domain.EventOrderStatusChanged, mustRead(t, staffConn).Type)
	assert.Equal(t, domain.EventOrderStatusChanged, mustRead(t, owner).Type)

	_, err := readWithin(stranger, 200*time.Millisecond)
	assert.ErrorIs(t, err, errNoMoreMessages)
}

func TestRelay_InternalNotesStayWithStaff(t *testing.T) {
	s := newTestServer(t)

	staffConn := s.dial(staffIdentity)
	owner := s.dial(customerIdentity)

	resp := s.post(staffIdentity, "/orders/notes", domain.OrderNoteRequest{OrderID: "42", Body: "allergy: nuts", Internal: true})
	require.Equal(t, stdhttp.StatusAccepted, resp.StatusCode)

	event := mustRead(t, staffConn)
	assert.Equal(t, domain.EventNoteAdded, event.Type)

	_, err := readWithin(owner, 200*time.Millisecond)
	assert.ErrorIs(t, err, errNoMoreMessages)

	resp = s.post(customerIdentity, "/orders/notes", domain.OrderNoteRequest{OrderID: "42", Body: "x", Internal: true})
	assert.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)
}

func TestRelayEvents_CustomersAreRefused(t *testing.T) {
	s := newTestServer(t)

	first := s.dial(customerIdentity)
	second := s.dial(customerIdentity)

	resp := s.post(customerIdentity, "/chat/typing", domain.TypingRequest{SessionID: "s1", Typing: true})
	assert.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, apperrors.CodeForbidden, body["code"])

	for _, conn := range []*websocket.Conn{first, second} {
		_, err := readWithin(conn, 200*time.Millisecond)
		assert.ErrorIs(t, err, errNoMoreMessages, "no typing echo reaches the caller's sockets")
	}
}

func TestRelayEvents_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		identity   domain.Identity
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "customer cannot change order status",
			identity:   customerIdentity,
			path:       "/orders/status",
			body:       domain.OrderStatusRequest{OrderID: "42", Status: domain.OrderReady},
			wantStatus: stdhttp.StatusForbidden,
			wantCode:   apperrors.CodeForbidden,
		},
		{
			name:       "unknown order",
			identity:   staffIdentity,
			path:       "/orders/status",
			body:       domain.OrderStatusRequest{OrderID: "999", Status: domain.OrderReady},
			wantStatus: stdhttp.StatusNotFound,
			wantCode:   apperrors.CodeUnknownResource,
		},
		{
			name:       "invalid status",
			identity:   staffIdentity,
			path:       "/orders/status",
			body:       map[string]string{"orderId": "42", "status": "teleported"},
			wantStatus: stdhttp.StatusUnprocessableEntity,
			wantCode:   apperrors.CodeValidation,
		},
		{
			name:       "customer cannot broadcast",
			identity:   customerIdentity,
			path:       "/notifications",
			body:       domain.NotificationRequest{Title: "t", Message: "m"},
			wantStatus: stdhttp.StatusForbidden,
			wantCode:   apperrors.CodeForbidden,
		},
		{
			name:       "role without a domain",
			identity:   supplierIdentity,
			path:       "/notifications",
			body:       domain.NotificationRequest{Title: "t", Message: "m"},
			wantStatus: stdhttp.StatusForbidden,
			wantCode:   apperrors.CodeDomainMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.post(tt.identity, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

func TestHealth_ReportsRelayStats(t *testing.T) {
	s := newTestServer(t)
	s.dial(staffIdentity)
	s.dial(customerIdentity)

	resp, err := s.srv.Client().Get(s.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var body struct {
		Status string     `json:"status"`
		Relay  RelayStats `json:"relay"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 1, body.Relay.Connections[domain.DomainAdmin])
	assert.Equal(t, 1, body.Relay.Connections[domain.DomainCustomer])
}

func TestShutdown_ClosesSocketsAndRefusesNewOnes(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(customerIdentity)

	require.NoError(t, s.relay.Shutdown(context.Background()))

	_, err := readWithin(conn, 2*time.Second)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())

	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL(s.token(staffIdentity)), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusServiceUnavailable, resp.StatusCode)
}
