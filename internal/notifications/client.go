package notifications

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/francozeta/musicbox/internal/middleware"
	"github.com/francozeta/musicbox/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10

	// Clients never send data frames, only pongs and close.
	maxInboundBytes = 1024
	sendBuffer      = 64
)

// resyncNotice replaces events lost to a full buffer: the client should
// refetch whatever it is showing.
var resyncNotice, _ = json.Marshal(Event{Type: "resync", Payload: map[string]string{"reason": "buffer_full"}})

// Client is one websocket connection subscribed to a user's events.
type Client struct {
	UserID string
	// Send carries encoded events; the hub closes it on unregister.
	Send chan []byte

	hub  *Hub
	conn *websocket.Conn
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		UserID: userID,
		Send:   make(chan []byte, sendBuffer),
		hub:    hub,
		conn:   conn,
	}
}

// Run serves the connection until the peer leaves or the hub drops the
// client, then unregisters it.
func (c *Client) Run() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop()
	}()
	c.readLoop()
	c.hub.UnregisterClient(c)
	<-done
}

// readLoop only exists to process control frames and notice disconnects.
func (c *Client) readLoop() {
	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				middleware.Logger.Debug("websocket closed unexpectedly",
					slog.String("user_id", c.UserID), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case msg, ok := <-c.Send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			kind, data = websocket.TextMessage, msg
		case <-ping.C:
			kind = websocket.PingMessage
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
		if kind == websocket.TextMessage {
			observability.RecordWebSocketEvent("sent")
		}
	}
}

// TrySend queues msg without blocking. When the buffer is full the event is
// dropped and a resync notice is queued if there is room for it.
func (c *Client) TrySend(msg []byte) {
	defer func() {
		// Send was closed by an unregister that raced the caller.
		if recover() != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "closed").Inc()
		}
	}()

	select {
	case c.Send <- msg:
		return
	default:
	}

	observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "full").Inc()
	middleware.Logger.Warn("websocket buffer full, dropping event", slog.String("user_id", c.UserID))
	select {
	case c.Send <- resyncNotice:
	default:
	}
}
