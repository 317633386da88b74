package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
	"github.com/couchcryptid/storm-escape-service/internal/observability"
	"github.com/couchcryptid/storm-escape-service/internal/watch"
)

// Message types sent to map clients.
const (
	TypeDrawRoute     = "draw_route"
	TypeRemoveRoute   = "remove_route"
	TypeDrawMarker    = "draw_marker"
	TypeRemoveMarker  = "remove_marker"
	TypeDangerEpisode = "danger_episode"
)

// Message is one command or event pushed to map clients.
type Message struct {
	Type     string                     `json:"type"`
	Route    *domain.RouteCandidate     `json:"route,omitempty"`
	Profile  domain.Profile             `json:"profile,omitempty"`
	Degraded bool                       `json:"degraded,omitempty"`
	Marker   *domain.Marker             `json:"marker,omitempty"`
	MarkerID string                     `json:"marker_id,omitempty"`
	Event    *domain.DangerEpisodeEvent `json:"event,omitempty"`
}

type client struct {
	send chan []byte
}

// Hub implements domain.Renderer by broadcasting render commands to connected
// map clients. It also remembers what is currently drawn so late joiners get
// the same picture.
type Hub struct {
	logger   *slog.Logger
	metrics  *observability.Metrics
	upgrader *websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	route   *Message
	markers map[string]domain.Marker
	order   []string // marker IDs in draw order
}

func NewHub(logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Hub {
	return &Hub{
		logger:   logger,
		metrics:  metrics,
		upgrader: newUpgrader(opts),
		clients:  make(map[*client]struct{}),
		markers:  make(map[string]domain.Marker),
	}
}

func (h *Hub) DrawRoute(route domain.RouteCandidate, profile domain.Profile, degraded bool) {
	msg := Message{Type: TypeDrawRoute, Route: &route, Profile: profile, Degraded: degraded}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.route = &msg
	h.broadcast(msg)
}

func (h *Hub) RemoveRoute() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.route = nil
	h.broadcast(Message{Type: TypeRemoveRoute})
}

func (h *Hub) DrawMarker(m domain.Marker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.markers[m.ID]; !ok {
		h.order = append(h.order, m.ID)
	}
	h.markers[m.ID] = m
	h.broadcast(Message{Type: TypeDrawMarker, Marker: &m})
}

func (h *Hub) RemoveMarker(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.markers[id]; !ok {
		return
	}
	delete(h.markers, id)
	for i, mid := range h.order {
		if mid == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.broadcast(Message{Type: TypeRemoveMarker, MarkerID: id})
}

// PublishEpisode pushes a danger episode to every client.
func (h *Hub) PublishEpisode(evt domain.DangerEpisodeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcast(Message{Type: TypeDangerEpisode, Event: &evt})
}

// RelayEpisodes forwards events from broker to clients until ctx ends.
func (h *Hub) RelayEpisodes(ctx context.Context, broker watch.EventBroker) {
	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			h.PublishEpisode(evt)
		}
	}
}

// broadcast must be called with h.mu held. Clients whose buffer is full miss
// the message.
func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode hub message", "type", msg.Type, "error", err)
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("map client too slow, dropping message", "type", msg.Type)
		}
	}
}

// register adds a client and queues the current map state for it.
func (h *Hub) register() *client {
	c := &client{send: make(chan []byte, 32)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.metrics.EventClients.Set(float64(len(h.clients)))

	replay := make([]Message, 0, len(h.order)+1)
	for _, id := range h.order {
		m := h.markers[id]
		replay = append(replay, Message{Type: TypeDrawMarker, Marker: &m})
	}
	if h.route != nil {
		replay = append(replay, *h.route)
	}
	for _, msg := range replay {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	h.metrics.EventClients.Set(float64(len(h.clients)))
}

// ServeHTTP upgrades a map client and streams messages until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("map client websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = wsConn.Close() }()

	c := h.register()
	defer h.unregister(c)

	// Reader only tracks liveness; clients do not send commands.
	done := make(chan struct{})
	go func() {
		defer close(done)
		wsConn.SetReadLimit(readLimit)
		_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))
		wsConn.SetPongHandler(func(string) error { return wsConn.SetReadDeadline(time.Now().Add(pongWait)) })
		for {
			if _, _, err := wsConn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case data := <-c.send:
			_ = wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
