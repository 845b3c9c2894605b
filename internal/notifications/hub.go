package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/francozeta/musicbox/internal/middleware"
	"github.com/francozeta/musicbox/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 12
	maxTotalConns   = 10000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

type clientSet map[*Client]struct{}

// Hub tracks the live websocket clients of each user, keyed by external id.
type Hub struct {
	mu     sync.RWMutex
	byUser map[string]clientSet
	total  int
	closed bool
}

func NewHub() *Hub {
	return &Hub{byUser: make(map[string]clientSet)}
}

// Name labels this hub in metrics and logs.
func (h *Hub) Name() string { return "stale-path hub" }

// Register attaches conn to userID. It fails once the hub is shut down or a
// connection limit is reached.
func (h *Hub) Register(userID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.total >= maxTotalConns {
		return nil, ErrServerFull
	}
	set := h.byUser[userID]
	if len(set) >= maxConnsPerUser {
		return nil, ErrUserFull
	}
	if set == nil {
		set = make(clientSet)
		h.byUser[userID] = set
	}

	c := newClient(h, conn, userID)
	set[c] = struct{}{}
	h.total++
	observability.WebSocketConnectionsTotal.Inc()
	observability.RecordWebSocketEvent("connect")
	return c, nil
}

// detachLocked closes c's send channel and forgets it. h.mu must be held.
func (h *Hub) detachLocked(c *Client) {
	close(c.Send)
	h.total--
	observability.WebSocketConnectionsTotal.Dec()
}

// UnregisterClient removes c. Clients already removed, by an earlier call or
// by Shutdown, are ignored.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.byUser[c.UserID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.byUser, c.UserID)
	}
	h.detachLocked(c)
	observability.RecordWebSocketEvent("disconnect")
}

func (h *Hub) fanOut(sets []clientSet, message string) {
	data := []byte(message)
	for _, set := range sets {
		for c := range set {
			c.TrySend(data)
		}
	}
}

// Broadcast queues message on every connection of userID.
func (h *Hub) Broadcast(userID, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.fanOut([]clientSet{h.byUser[userID]}, message)
}

// BroadcastAll queues message on every connection.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sets := make([]clientSet, 0, len(h.byUser))
	for _, set := range h.byUser {
		sets = append(sets, set)
	}
	h.fanOut(sets, message)
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// StartWiring subscribes the hub to the Notifier's channels. Without Redis the
// notifier delivers to the hub directly.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	n.SetLocal(h)
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if channel == broadcastChannel {
			h.BroadcastAll(payload)
			return
		}
		if userID, ok := userFromChannel(channel); ok {
			h.Broadcast(userID, payload)
			return
		}
		middleware.Logger.Warn("invalid notification channel", slog.String("channel", channel))
	})
}

// Shutdown detaches every client and refuses new ones. Each write loop then
// sends a close frame and drops its connection.
func (h *Hub) Shutdown(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, set := range h.byUser {
		for c := range set {
			h.detachLocked(c)
		}
	}
	h.byUser = make(map[string]clientSet)
	return nil
}
