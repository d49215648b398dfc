package broadcast

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin checks belong to the reverse proxy in front.
	},
}

var pongFrame = []byte(`{"type":"pong"}`)

// Handler upgrades HTTP connections and routes client control frames.
type Handler struct {
	hub *Hub
}

// NewHandler creates a handler bound to the given hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes registers the WebSocket endpoint on the provided group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws/updates/", h.HandleConnect)
}

// HandleConnect upgrades the connection, registers the client and starts the
// read and write pumps. The client joins rooms via subscribe frames.
func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:   uuid.New().String(),
		Send: make(chan []byte, 256),
	}
	h.hub.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)

	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			continue // Ignore malformed frames.
		}
		h.handleFrame(client, frame)
	}
}

func (h *Handler) handleFrame(client *Client, frame clientFrame) {
	switch frame.Type {
	case "subscribe":
		h.hub.Join(client, frame.Groups)
	case "unsubscribe":
		h.hub.Leave(client, frame.Groups)
	case "ping":
		select {
		case client.Send <- pongFrame:
		default:
		}
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}
