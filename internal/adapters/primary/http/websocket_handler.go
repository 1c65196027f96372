package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	mw "github.com/lorrc/restaurant-relay/internal/adapters/primary/http/middleware"
	wsAdapter "github.com/lorrc/restaurant-relay/internal/adapters/primary/websocket"
	"github.com/lorrc/restaurant-relay/internal/auth"
	"github.com/lorrc/restaurant-relay/internal/config"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
	"github.com/lorrc/restaurant-relay/internal/core/services"
	"github.com/lorrc/restaurant-relay/internal/infrastructure/logging"
)

// Relay is the relay core as seen by the websocket upgrade handler.
type Relay interface {
	wsAdapter.Relay
	Authenticate(ctx context.Context, credential string) (services.Admission, error)
	Connect(ctx context.Context, admission services.Admission, sink ports.Sink) (*services.Connection, error)
}

// WebSocketHandler handles WebSocket connection upgrades
type WebSocketHandler struct {
	relay    Relay
	upgrader websocket.Upgrader
	opts     wsAdapter.Options
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(relay Relay, cfg *config.Config, logger *slog.Logger) *WebSocketHandler {
	handler := &WebSocketHandler{
		relay: relay,
		opts: wsAdapter.Options{
			WriteWait:      cfg.WebSocket.WriteWait,
			PongWait:       cfg.WebSocket.PongWait,
			PingPeriod:     cfg.WebSocket.PingInterval,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
			SendBuffer:     cfg.WebSocket.SendBuffer,
		},
		logger: logger.With("component", "websocket_handler"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg *config.Config) func(r *http.Request) bool {
	allowedOrigins := cfg.WebSocket.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment() {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		// Check against allowed origins
		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		originHost := parsedOrigin.Host

		for _, allowed := range allowedOrigins {
			// Support wildcard subdomains like "*.example.com"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:] // Remove the "*", keep ".example.com"
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// ServeHTTP authenticates the caller, then upgrades and hands the socket to
// the relay. Rejected handshakes never reach the upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	admission, err := h.relay.Authenticate(ctx, credentialFrom(r))
	if err != nil {
		h.logger.WarnContext(ctx, "websocket connection rejected",
			"remote_addr", r.RemoteAddr,
			"code", apperrors.Code(err),
			"error", err,
		)
		mw.WriteAuthError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to upgrade websocket connection",
			"subject_id", admission.Identity.SubjectID,
			"error", err,
		)
		return
	}

	client := wsAdapter.NewClient(conn, h.opts, h.logger)
	rc, err := h.relay.Connect(ctx, admission, client)
	if err != nil {
		h.logger.WarnContext(ctx, "relay refused connection", "error", err)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "relay unavailable")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		_ = conn.Close()
		return
	}

	// The socket outlives the upgrade request.
	connCtx := logging.WithConnection(context.WithoutCancel(ctx), rc.ID(),
		admission.Identity.SubjectID, string(admission.Domain))

	go client.WritePump()
	go client.ReadPump(connCtx, h.relay, rc)
}

// credentialFrom reads the bearer credential from the token query parameter
// (browsers cannot set headers on websocket requests) or the Authorization
// header.
func credentialFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	token, _ := auth.BearerToken(r.Header.Get("Authorization"))
	return token
}
