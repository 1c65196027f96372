package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingRelay echoes every action back as an ack and counts disconnects.
type recordingRelay struct {
	mu          sync.Mutex
	actions     []domain.Action
	disconnects int
	client      *Client
	gone        chan struct{}
}

func (r *recordingRelay) Handle(_ context.Context, conn *services.Connection, action domain.Action) error {
	r.mu.Lock()
	r.actions = append(r.actions, action)
	r.mu.Unlock()

	ack := domain.NewEvent(domain.EventAck, nil)
	ack.RequestID = action.RequestID
	conn.Send(ack)
	return nil
}

func (r *recordingRelay) Disconnect(_ *services.Connection, _ string) {
	r.mu.Lock()
	r.disconnects++
	client := r.client
	r.mu.Unlock()
	client.Close()
	close(r.gone)
}

func (r *recordingRelay) setClient(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.client = c
}

func (r *recordingRelay) Client() *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client
}

func (r *recordingRelay) Actions() []domain.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Action(nil), r.actions...)
}

// serve starts a server that runs both pumps for every upgraded socket.
func serve(t *testing.T, relay *recordingRelay) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(ws, DefaultOptions(), testLogger())
		relay.setClient(client)
		rc := services.NewConnection("c-1", domain.Identity{SubjectID: "s-1", Role: domain.RoleStaff}, domain.DomainAdmin, client)

		go client.WritePump()
		go client.ReadPump(context.Background(), relay, rc)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestClient_ForwardsActions(t *testing.T) {
	relay := &recordingRelay{gone: make(chan struct{})}
	conn := serve(t, relay)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"room.join","requestId":"r-1","payload":{"room":"order:42"}}`)))

	event := readEvent(t, conn)
	assert.Equal(t, "ack", event["type"])
	assert.Equal(t, "r-1", event["requestId"])

	actions := relay.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionRoomJoin, actions[0].Type)
	assert.JSONEq(t, `{"room":"order:42"}`, string(actions[0].Payload))
}

func TestClient_RejectsMalformedFrames(t *testing.T) {
	relay := &recordingRelay{gone: make(chan struct{})}
	conn := serve(t, relay)

	for _, frame := range []string{`not json`, `{"payload":{}}`} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

		event := readEvent(t, conn)
		assert.Equal(t, "error", event["type"])
		payload, ok := event["payload"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "BAD_REQUEST", payload["code"])
	}

	assert.Empty(t, relay.Actions())
}

func TestClient_PeerCloseDisconnectsOnce(t *testing.T) {
	relay := &recordingRelay{gone: make(chan struct{})}
	conn := serve(t, relay)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	select {
	case <-relay.gone:
	case <-time.After(2 * time.Second):
		t.Fatal("relay was not told about the disconnect")
	}

	relay.mu.Lock()
	defer relay.mu.Unlock()
	assert.Equal(t, 1, relay.disconnects)
}

func TestClient_CloseSendsCloseFrame(t *testing.T) {
	relay := &recordingRelay{gone: make(chan struct{})}
	conn := serve(t, relay)

	// A round trip guarantees the server side has been set up.
	require.NoError(t, conn.WriteJSON(domain.Action{Type: domain.ActionPing}))
	readEvent(t, conn)

	relay.Client().Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
}

func TestClient_DeliverNeverBlocks(t *testing.T) {
	client := NewClient(nil, Options{SendBuffer: 2}, testLogger())

	assert.True(t, client.Deliver(domain.NewEvent(domain.EventPong, nil)))
	assert.True(t, client.Deliver(domain.NewEvent(domain.EventPong, nil)))
	assert.False(t, client.Deliver(domain.NewEvent(domain.EventPong, nil)), "full buffer drops")

	client.Close()
	client.Close()
	assert.False(t, client.Deliver(domain.NewEvent(domain.EventPong, nil)), "closed client drops")
}

func TestClient_EventsAreJSONEncoded(t *testing.T) {
	relay := &recordingRelay{gone: make(chan struct{})}
	conn := serve(t, relay)

	require.NoError(t, conn.WriteJSON(domain.Action{Type: domain.ActionPing, RequestID: "p"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event domain.Event
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, domain.EventAck, event.Type)
	assert.False(t, event.Timestamp.IsZero())
}
