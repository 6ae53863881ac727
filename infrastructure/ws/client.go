package ws

import (
	"bandmate/contract"
	"bandmate/domain"
	"bandmate/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxMessageSize = 8192
)

// Connection lifecycle. Open is the only state that accepts deliveries;
// reaching Closed unregisters the session.
const (
	stateConnecting int32 = iota
	stateOpen
	stateClosing
	stateClosed
)

// client is one live connection, tied to one authenticated user for its
// lifetime. It is the registry's MessageSink: the dispatcher hands it
// persisted messages, the write pump ships them out.
type client struct {
	id        string
	userID    string
	log       *slog.Logger
	conn      *websocket.Conn
	registry  contract.IRegistry
	messaging services.IMessagingService

	send     chan []byte
	done     chan struct{}
	state    atomic.Int32
	shutOnce sync.Once
}

// inboundFrame is what the peer sends: one message per frame.
type inboundFrame struct {
	ConversationID string  `json:"conversation_id"`
	ReceiverID     string  `json:"receiver_id,omitempty"`
	Content        string  `json:"content"`
	ParentID       *uint64 `json:"parent_message_id,omitempty"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// Deliver queues one persisted message for this session. It fails fast when
// the session is not open or its buffer stays full past the caller's
// deadline; the dispatcher logs and moves on.
func (c *client) Deliver(ctx context.Context, msg domain.Message) error {
	if c.state.Load() != stateOpen {
		return fmt.Errorf("session %s is not open", c.id)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return fmt.Errorf("session %s closed", c.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump pumps inbound frames into the send pipeline. One goroutine per
// connection; exit tears the session down.
func (c *client) readPump() {
	defer c.shutdown()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("Unexpected close", "session", c.id, "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.reject("malformed frame")
			continue
		}

		// A disconnect cancels this session's pending pushes, never an
		// in-flight append, so the send runs on a fresh context.
		_, err = c.messaging.Send(context.Background(), domain.SendMessageCommand{
			ConversationID: frame.ConversationID,
			SenderID:       c.userID,
			ReceiverID:     frame.ReceiverID,
			Content:        frame.Content,
			ParentID:       frame.ParentID,
		})
		if err != nil {
			c.reject(err.Error())
		}
	}
}

// writePump ships queued payloads to the peer and keeps the connection
// alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// reject reports a failed inbound send back to the peer, best-effort.
func (c *client) reject(reason string) {
	payload, err := json.Marshal(errorFrame{Error: reason})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *client) shutdown() {
	c.shutOnce.Do(func() {
		c.state.Store(stateClosing)
		c.registry.Unregister(c.id)
		c.state.Store(stateClosed)
		close(c.done)
		_ = c.conn.Close()
		c.log.Info("Session closed", "session", c.id, "user", c.userID)
	})
}
