package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"mine-monitor/internal/models"
)

const (
	hubBroadcastBuffer = 256
	clientSendBuffer   = 64
)

// ErrHubBusy is returned when the broadcast queue is full
var ErrHubBusy = errors.New("websocket hub broadcast queue full")

// Message is the envelope sent to every WebSocket client
type Message struct {
	Type    string      `json:"type"` // reading, alarm or analysis
	Payload interface{} `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages. All
// Broadcast calls are safe from any goroutine and never block.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	dropped atomic.Uint64
}

// NewHub creates a hub; Run must be started before clients connect
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, hubBroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx ends
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()

			log.Printf("Hub: client registered: %s", client.remoteAddr())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("Hub: client unregistered: %s", client.remoteAddr())
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					log.Printf("Hub: client %s send buffer full, removing", client.remoteAddr())
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Dropped counts messages lost to a full broadcast queue
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) send(kind string, payload interface{}) error {
	messageBytes, err := json.Marshal(Message{Type: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	select {
	case h.broadcast <- messageBytes:
		return nil
	default:
		h.dropped.Add(1)
		return ErrHubBusy
	}
}

// BroadcastReading sends a live reading to all clients
func (h *Hub) BroadcastReading(r models.Reading) {
	_ = h.send("reading", r)
}

// Name identifies the hub as a notifier
func (h *Hub) Name() string {
	return "websocket"
}

// NotifyAlarm broadcasts an alarm
func (h *Hub) NotifyAlarm(_ context.Context, ev models.AlarmEvent) error {
	return h.send("alarm", ev)
}

// NotifyAnalysis broadcasts an analysis result
func (h *Hub) NotifyAnalysis(_ context.Context, res models.AnalysisResult) error {
	return h.send("analysis", res)
}
