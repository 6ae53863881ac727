// Package ws is the live-connection transport: one websocket per session,
// inbound frames converging on the same send pipeline as the HTTP API,
// outbound pushes carrying one full persisted message per frame.
package ws

import (
	"bandmate/auth"
	"bandmate/contract"
	"bandmate/services"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Handler struct {
	log        *slog.Logger
	registry   contract.IRegistry
	messaging  services.IMessagingService
	upgrader   websocket.Upgrader
	bufferSize int
}

func NewHandler(log *slog.Logger, registry contract.IRegistry,
	messaging services.IMessagingService, bufferSize int) *Handler {
	return &Handler{
		log:       log,
		registry:  registry,
		messaging: messaging,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO(origin checks): tighten once the frontend origin is fixed.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bufferSize: bufferSize,
	}
}

// ServeWS upgrades an authenticated request, registers the session, and
// starts its pumps. The handler returns immediately; the pumps own the
// connection from here.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := auth.CurrentUserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:        uuid.NewString(),
		userID:    userID,
		log:       h.log,
		conn:      conn,
		registry:  h.registry,
		messaging: h.messaging,
		send:      make(chan []byte, h.bufferSize),
		done:      make(chan struct{}),
	}
	c.state.Store(stateConnecting)

	h.registry.Register(userID, c.id, c)
	c.state.Store(stateOpen)
	h.log.Info("Session opened", "session", c.id, "user", userID)

	go c.writePump()
	go c.readPump()
}
