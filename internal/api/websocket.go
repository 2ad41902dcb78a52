package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chartpilot/internal/events"
	"chartpilot/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second

	// maxWSConnsPerUser bounds open sockets per account so one browser
	// cannot exhaust the hub.
	maxWSConnsPerUser = 5
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient represents one websocket connection owned by a user
type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *UserHub
	userID    string
	closeChan chan struct{}
}

// UserHub fans bus events out to websocket connections. Events carrying
// a UserID go only to that user's connections; events without one go to
// everyone.
type UserHub struct {
	clients     map[*wsClient]bool
	userClients map[string]map[*wsClient]bool
	broadcast   chan []byte
	userCast    chan userMessage
	register    chan *wsClient
	unregister  chan *wsClient
	mu          sync.RWMutex
	logger      *logging.Logger
}

type userMessage struct {
	userID string
	data   []byte
}

// NewUserHub creates a hub subscribed to every event on the bus
func NewUserHub(bus *events.EventBus) *UserHub {
	h := &UserHub{
		clients:     make(map[*wsClient]bool),
		userClients: make(map[string]map[*wsClient]bool),
		broadcast:   make(chan []byte, 256),
		userCast:    make(chan userMessage, 256),
		register:    make(chan *wsClient),
		unregister:  make(chan *wsClient),
		logger:      logging.WithComponent("websocket"),
	}
	if bus != nil {
		bus.SubscribeAll(h.Dispatch)
	}
	return h
}

// Dispatch routes one bus event to the right connections
func (h *UserHub) Dispatch(event events.Event) {
	if event.Type == events.EventUserLogout {
		h.disconnectUser(event.UserID)
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to marshal event for websocket delivery")
		return
	}

	if event.UserID == "" {
		select {
		case h.broadcast <- data:
		default:
			h.logger.Warn("Broadcast channel full, dropping event")
		}
		return
	}

	select {
	case h.userCast <- userMessage{userID: event.UserID, data: data}:
	default:
		h.logger.WithField("user_id", event.UserID).Warn("User channel full, dropping event")
	}
}

// Run processes hub channel traffic until the process exits
func (h *UserHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.userClients[client.userID] == nil {
				h.userClients[client.userID] = make(map[*wsClient]bool)
			}
			h.userClients[client.userID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if userClients, ok := h.userClients[client.userID]; ok {
					delete(userClients, client)
					if len(userClients) == 0 {
						delete(h.userClients, client.userID)
					}
				}
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
				}
			}
			h.mu.RUnlock()

		case msg := <-h.userCast:
			h.mu.RLock()
			if userClients, ok := h.userClients[msg.userID]; ok {
				for client := range userClients {
					select {
					case client.send <- msg.data:
					default:
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// disconnectUser drops every connection a user has open. Used when the
// user revokes all sessions; the live feed should not outlast them.
func (h *UserHub) disconnectUser(userID string) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.userClients[userID]))
	for client := range h.userClients[userID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.conn != nil {
			// The read pump unregisters the client when the socket dies.
			client.conn.Close()
			continue
		}
		h.unregister <- client
	}
}

// UserConnectionCount returns the number of open connections for a user
func (h *UserHub) UserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID])
}

// ConnectionCount returns the total number of open connections
func (h *UserHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the connection after validating the access token.
// The token arrives as a query parameter because browsers cannot set an
// Authorization header on a websocket upgrade request.
func (s *Server) handleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED", "message": "token query parameter required"})
		return
	}

	claims, err := s.authService.GetJWTManager().ValidateAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED", "message": "invalid or expired token"})
		return
	}

	if s.hub.UserConnectionCount(claims.UserID) >= maxWSConnsPerUser {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "TOO_MANY_CONNECTIONS", "message": "websocket connection limit reached"})
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn:      conn,
		send:      make(chan []byte, 64),
		hub:       s.hub,
		userID:    claims.UserID,
		closeChan: make(chan struct{}),
	}

	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		close(c.closeChan)
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	// Clients do not send application messages; the read loop only
	// services control frames and detects the close.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
