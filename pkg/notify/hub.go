package notify

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/pwviptbl/CallCenter/internal/telemetry"
	"github.com/pwviptbl/CallCenter/pkg/tenant"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// PatternSubscriber opens pattern subscriptions. *redis.Client implements it.
type PatternSubscriber interface {
	PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub
}

type client struct {
	tenantID uuid.UUID
	conn     *websocket.Conn
	send     chan []byte
}

// Hub relays tenant topics from Redis to that tenant's websocket clients.
// Every API process runs its own Hub, so clients see events regardless of
// which process produced them.
type Hub struct {
	sub      PatternSubscriber
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}
}

// NewHub creates a Hub.
func NewHub(sub PatternSubscriber, logger *slog.Logger) *Hub {
	return &Hub{
		sub: sub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The route sits behind API key auth.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[uuid.UUID]map[*client]struct{}),
	}
}

// Run relays published events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	pubsub := h.sub.PSubscribe(ctx, "company.*")
	defer pubsub.Close()

	h.logger.Info("notification hub started")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("notification hub stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			tenantID, err := tenantFromTopic(msg.Channel)
			if err != nil {
				h.logger.Warn("ignoring message on unexpected topic", "topic", msg.Channel)
				continue
			}
			h.Broadcast(tenantID, []byte(msg.Payload))
		}
	}
}

func tenantFromTopic(topic string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimPrefix(topic, "company."))
}

// Broadcast queues payload for every client of the tenant. Clients whose
// buffer is full miss the message.
func (h *Hub) Broadcast(tenantID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[tenantID] {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("websocket client too slow, dropping event", "tenant_id", tenantID)
		}
	}
}

// ServeHTTP upgrades the request and streams the caller's tenant events.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	info := tenant.FromContext(r.Context())
	if info == nil {
		http.Error(w, "tenant context missing", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrading websocket", "error", err)
		return
	}

	c := &client{tenantID: info.ID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.tenantID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.tenantID] = set
	}
	set[c] = struct{}{}
	telemetry.WebsocketClients.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.tenantID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.tenantID)
	}
	close(c.send)
	telemetry.WebsocketClients.Dec()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tenantID, set := range h.clients {
		for c := range set {
			close(c.send)
			telemetry.WebsocketClients.Dec()
		}
		delete(h.clients, tenantID)
	}
}

// ClientCount returns the number of connected clients for a tenant.
func (h *Hub) ClientCount(tenantID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tenantID])
}

// readPump discards client frames and unregisters on disconnect.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
