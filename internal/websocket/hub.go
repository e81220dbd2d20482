package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/smukkama/pipeline-monitor/internal/model"
)

const broadcastBuffer = 256

// Message is the envelope pushed to dashboard clients
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotFunc returns the current snapshot, sent to each client on connect
type SnapshotFunc func() *model.Snapshot

// Hub maintains the set of active clients and broadcasts engine changes.
// OnSnapshot and OnAlert never block; when the broadcast queue is full the
// message is dropped.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	current    SnapshotFunc
	upgrader   websocket.Upgrader
	logger     logrus.FieldLogger
	mu         sync.RWMutex
}

func NewHub(current SnapshotFunc, logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		current:    current,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.WithField("component", "ws-hub"),
	}
}

// Run services registrations and broadcasts until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.WithField("remote", client.conn.RemoteAddr().String()).Info("Client registered")
			h.sendInitial(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.WithField("remote", client.conn.RemoteAddr().String()).Info("Client unregistered")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client is blocked or gone
					h.logger.WithField("remote", client.conn.RemoteAddr().String()).Warn("Send buffer full, dropping client")
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) sendInitial(client *Client) {
	if h.current == nil {
		return
	}
	snap := h.current()
	if snap == nil {
		return
	}
	data, err := encode("snapshot", snap)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode initial snapshot")
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// ServeWS upgrades the request and starts the client pumps
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	client := newClient(h, conn)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) OnSnapshot(snap *model.Snapshot) {
	h.publish("snapshot", snap)
}

func (h *Hub) OnAlert(alert model.Alert) {
	h.publish("alert", alert)
}

func (h *Hub) publish(kind string, payload interface{}) {
	data, err := encode(kind, payload)
	if err != nil {
		h.logger.WithError(err).Errorf("Failed to encode %s for broadcast", kind)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.WithField("type", kind).Warn("Broadcast queue full, dropping message")
	}
}

func encode(kind string, payload interface{}) ([]byte, error) {
	return json.Marshal(Message{Type: kind, Payload: payload})
}
