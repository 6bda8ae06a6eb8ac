package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the first (auth) message
	authWait = 10 * time.Second

	maxMessageSize = 8192
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket connection. It joins the hub only after the first
// message authenticated it.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	authenticated bool
	username      string

	mu         sync.Mutex
	subscribed map[string]bool
}

func (c *Client) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// filter returns the infos this client subscribed to. all is true when the
// client has no subscription and receives everything.
func (c *Client) filter(infos []registry.Info) (filtered []registry.Info, all bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscribed == nil {
		return infos, true
	}
	for _, info := range infos {
		if c.subscribed[info.ID] {
			filtered = append(filtered, info)
		}
	}
	return filtered, false
}

func (c *Client) readPump() {
	defer func() {
		if c.authenticated {
			select {
			case c.hub.unregister <- c:
			case <-c.hub.done:
			}
		} else {
			close(c.send)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(authWait))
	c.conn.SetPongHandler(func(string) error {
		if c.authenticated {
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
		return nil
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr()))
			}
			return
		}

		if !c.authenticated {
			if !c.authenticate(msg) {
				return
			}
			continue
		}

		c.handleMessage(msg)
	}
}

// authenticate handles the mandatory first message.
func (c *Client) authenticate(msg clientMessage) bool {
	if msg.Type != "auth" {
		c.sendAuthFailed("First message must be authentication")
		return false
	}
	if msg.Token == "" {
		c.sendAuthFailed("Missing token in auth message")
		return false
	}

	claims, permissions, err := c.hub.authService.ValidateToken(msg.Token)
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr()))
		c.sendAuthFailed("Invalid or expired token")
		return false
	}

	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		return false
	}

	c.authenticated = true
	c.username = claims.Username
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	c.sendJSON(NewMessage(MessageTypeAuthSuccess, map[string]any{
		"username":    claims.Username,
		"permissions": permissions,
	}))
	if c.hub.statusProvider != nil {
		c.sendJSON(NewMessage(MessageTypeSystemStatus, c.hub.statusProvider.GetStatus()))
	}

	c.logger.Info("WebSocket client authenticated",
		zap.String("remote_addr", c.remoteAddr()),
		zap.String("username", claims.Username))
	return true
}

func (c *Client) handleMessage(msg clientMessage) {
	switch msg.Type {
	case "subscribe":
		c.mu.Lock()
		c.subscribed = make(map[string]bool, len(msg.Entries))
		for _, id := range msg.Entries {
			c.subscribed[id] = true
		}
		c.mu.Unlock()
		c.sendJSON(NewMessage(MessageTypeSubscribed, SubscribedData{Entries: msg.Entries}))

	case "unsubscribe":
		c.mu.Lock()
		c.subscribed = nil
		c.mu.Unlock()
		c.sendJSON(NewMessage(MessageTypeSubscribed, SubscribedData{Entries: []string{}}))

	default:
		c.logger.Debug("Unknown client message",
			zap.String("remote_addr", c.remoteAddr()),
			zap.String("type", msg.Type))
		c.sendJSON(NewMessage(MessageTypeError, map[string]string{"error": "unknown message type " + msg.Type}))
	}
}

func (c *Client) sendAuthFailed(reason string) {
	c.sendJSON(NewMessage(MessageTypeAuthFailed, map[string]string{"reason": reason}))
}

// sendJSON queues a direct reply. Replies to an unregistered client go
// through the same channel, so writePump delivers them before closing.
func (c *Client) sendJSON(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	if c.authenticated && !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request. The connection must authenticate with
// {"type":"auth","token":"..."} before it receives broadcasts.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}

	go client.writePump()
	go client.readPump()
}
