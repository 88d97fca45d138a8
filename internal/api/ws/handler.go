package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quietwire/quietwire/internal/api/auth"
	"github.com/quietwire/quietwire/internal/logger"
	"github.com/quietwire/quietwire/pkg/metrics"
	"github.com/quietwire/quietwire/pkg/relay/registry"
	"github.com/quietwire/quietwire/pkg/relay/store"
)

const (
	// handshakeWait is how long a freshly upgraded socket has to present
	// its token before being dropped.
	handshakeWait = 10 * time.Second

	// maxHandshakeBytes bounds inbound frames. Clients only ever send the
	// auth frame, so this stays small.
	maxHandshakeBytes = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Tokens, not origins, gate the socket. Native apps send no Origin
	// header at all.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// authFrame is the first and only client-to-server message.
type authFrame struct {
	Auth struct {
		Token string `json:"token"`
	} `json:"auth"`
}

// Handler upgrades HTTP requests to authenticated relay sockets.
type Handler struct {
	tokens   *auth.TokenService
	devices  store.DeviceStore
	registry *registry.Registry
}

// NewHandler returns a WebSocket handler backed by the given token
// service, device store, and session registry.
func NewHandler(tokens *auth.TokenService, devices store.DeviceStore, reg *registry.Registry) *Handler {
	return &Handler{
		tokens:   tokens,
		devices:  devices,
		registry: reg,
	}
}

// ServeHTTP upgrades the connection, waits for the auth frame, and on
// success registers the socket as the user's live session. A newer socket
// for the same user displaces any older one.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket upgrade rejected", "error", err, "remote", r.RemoteAddr)
		return
	}

	client := newClient(conn)

	claims, ok := h.authenticate(r, conn)
	if !ok {
		_ = client.Close()
		return
	}

	if replaced := h.registry.Register(claims.UserID, claims.DeviceID, client); replaced != nil {
		logger.Info("websocket session displaced",
			"user_id", claims.UserID,
			"old_socket", replaced.ID(),
			"new_socket", client.ID())
	}

	metrics.WSConnected()
	logger.Info("websocket connected",
		"user_id", claims.UserID,
		"device_id", claims.DeviceID,
		"socket_id", client.ID())

	_ = client.Send("connected", map[string]string{"session_id": client.ID()})

	go client.writePump()
	client.readPump(func() {
		h.registry.Unregister(claims.UserID, claims.DeviceID, client.ID())
		metrics.WSDisconnected()
		logger.Info("websocket disconnected",
			"user_id", claims.UserID,
			"socket_id", client.ID())
	})
}

// authenticate reads the auth frame, validates the token, and confirms the
// device row still exists. A logged-out device holds a syntactically valid
// token but may not attach.
func (h *Handler) authenticate(r *http.Request, conn *websocket.Conn) (*auth.Claims, bool) {
	conn.SetReadLimit(maxHandshakeBytes)
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))

	_, payload, err := conn.ReadMessage()
	if err != nil {
		logger.Debug("websocket handshake read failed", "error", err, "remote", r.RemoteAddr)
		return nil, false
	}

	var frame authFrame
	if err := json.Unmarshal(payload, &frame); err != nil || frame.Auth.Token == "" {
		h.rejectHandshake(conn, "authentication required")
		return nil, false
	}

	claims, err := h.tokens.ValidateToken(frame.Auth.Token)
	if err != nil {
		h.rejectHandshake(conn, "authentication failed")
		return nil, false
	}

	if _, err := h.devices.GetDevice(r.Context(), claims.UserID, claims.DeviceID); err != nil {
		h.rejectHandshake(conn, "authentication failed")
		return nil, false
	}

	return claims, true
}

func (h *Handler) rejectHandshake(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}
