package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/OpenShmInspector/internal/auth"
	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"go.uber.org/zap"
)

// StatusProvider reports the current system status sent to new clients.
type StatusProvider interface {
	GetStatus() any
}

// Hub maintains authenticated WebSocket clients and broadcasts inspector
// updates to them. It implements inspector.Listener.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	logger         *zap.Logger
	authService    *auth.AuthService
	statusProvider StatusProvider
}

func NewHub(logger *zap.Logger, authService *auth.AuthService) *Hub {
	return &Hub{
		broadcast:   make(chan Message, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		clients:     make(map[*Client]bool),
		logger:      logger.With(zap.String("component", "websocket")),
		authService: authService,
	}
}

func (h *Hub) SetStatusProvider(provider StatusProvider) {
	h.statusProvider = provider
}

// Run starts the hub's event loop. It returns when ctx is cancelled and
// closes every client connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")
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
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.remoteAddr()),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.remoteAddr()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.dispatch(message)
		}
	}
}

func (h *Hub) dispatch(message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	infos, _ := message.Data.([]registry.Info)

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		payload := data
		if message.Type == MessageTypeEntriesUpdated {
			filtered, all := client.filter(infos)
			if len(filtered) == 0 {
				continue
			}
			if !all {
				msg := message
				msg.Data = filtered
				if payload, err = json.Marshal(msg); err != nil {
					continue
				}
			}
		}

		select {
		case client.send <- payload:
		default:
			// slow client
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn("Client send buffer full, unregistering",
				zap.String("remote_addr", client.remoteAddr()))
		}
	}
}

// Broadcast queues a message for all connected clients.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

func (h *Hub) EntriesUpdated(infos []registry.Info) {
	if len(infos) == 0 {
		return
	}
	h.Broadcast(NewEntriesMessage(infos))
}

func (h *Hub) RefreshFailed(bank shm.Bank, err error) {
	h.Broadcast(NewRefreshFailedMessage(bank.String(), err))
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
