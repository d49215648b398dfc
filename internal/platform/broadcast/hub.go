// Package broadcast pushes entity change notifications to WebSocket clients.
// Every mutation emitted by the domain services is fanned out to the global
// "updates" room and to a per-entity "updates_<model>" room, so dashboards can
// subscribe as narrowly or as broadly as they need.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RoomAll is the catch-all room that receives every event.
const RoomAll = "updates"

// RoomFor returns the per-entity room name for a model, e.g. "updates_session".
func RoomFor(model string) string {
	return RoomAll + "_" + model
}

// Actions carried by events.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Event is the frame delivered to subscribed clients.
type Event struct {
	Model     string          `json:"model"`
	Action    string          `json:"action"`
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an event for a model mutation. A nil payload omits the data
// field, which is what delete notifications use.
func NewEvent(model, action, id string, payload any) Event {
	ev := Event{
		Model:     model,
		Action:    action,
		ID:        id,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// Publisher is what domain services depend on to emit change notifications.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards every event. Used in tests and for the sweep command,
// which runs without a WebSocket server.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// clientFrame is an inbound control message from a WebSocket client.
type clientFrame struct {
	Type   string   `json:"type"`
	Groups []string `json:"groups"`
}

// Client represents a single WebSocket connection. Clients start with no room
// subscriptions and join rooms via subscribe frames.
type Client struct {
	ID    string
	Rooms []string
	Send  chan []byte
}

// Hub tracks connected clients and their room subscriptions. All operations
// are safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	all    map[*Client]struct{}
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
		logger: logger.With().Str("component", "broadcast").Logger(),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, room := range client.Rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*Client]struct{})
		}
		h.rooms[room][client] = struct{}{}
	}
}

// Unregister removes a client from every room and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, room := range client.Rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}

	delete(h.all, client)
	close(client.Send)
}

// Join subscribes an already-registered client to additional rooms.
func (h *Hub) Join(client *Client, rooms []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined := make(map[string]struct{}, len(client.Rooms))
	for _, r := range client.Rooms {
		joined[r] = struct{}{}
	}

	for _, room := range rooms {
		if _, ok := joined[room]; ok {
			continue
		}
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*Client]struct{})
		}
		h.rooms[room][client] = struct{}{}
		client.Rooms = append(client.Rooms, room)
		joined[room] = struct{}{}
	}
}

// Leave removes a client from rooms it no longer wants.
func (h *Hub) Leave(client *Client, rooms []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(rooms))
	for _, r := range rooms {
		removeSet[r] = struct{}{}
	}

	for _, room := range rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}

	remaining := make([]string, 0, len(client.Rooms))
	for _, r := range client.Rooms {
		if _, rm := removeSet[r]; !rm {
			remaining = append(remaining, r)
		}
	}
	client.Rooms = remaining
}

// Broadcast delivers raw bytes to every member of a room. Clients with a full
// send buffer are skipped so one slow consumer cannot stall the rest.
func (h *Hub) broadcast(room string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	for client := range members {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// Publish implements Publisher. The event goes to the global room and to the
// per-entity room in one marshal.
func (h *Hub) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("model", event.Model).Msg("marshal broadcast event")
		return err
	}

	h.broadcast(RoomAll, data)
	h.broadcast(RoomFor(event.Model), data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// RoomCount returns the number of clients subscribed to a room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
