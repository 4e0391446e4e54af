package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"authcore/internal/metrics"
	"authcore/internal/middleware"
	"authcore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the bearer token, not by the browser.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is pushed to a client right before its connection is closed.
type Event struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Client is one connected session.
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID uuid.UUID
	Token  string
}

type revocation struct {
	userID uuid.UUID
	except string
	reason string
}

// Hub tracks open sockets per user and closes them when the user's
// sessions are revoked. It implements service.SessionNotifier.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	revoke     chan revocation
	done       chan struct{}
	metrics    *metrics.Metrics
	log        *logrus.Logger
}

var _ service.SessionNotifier = (*Hub)(nil)

// NewHub initializes a new WS Hub instance
func NewHub(m *metrics.Metrics, log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		revoke:     make(chan revocation, 64),
		done:       make(chan struct{}),
		metrics:    m,
		log:        log,
	}
}

// SessionsRevoked queues a revocation without blocking the caller. When the
// queue is full the event is dropped; the token is already dead in the
// store, so the socket fails on its next guarded call anyway.
func (h *Hub) SessionsRevoked(userID uuid.UUID, except, reason string) {
	select {
	case h.revoke <- revocation{userID: userID, except: except, reason: reason}:
	default:
		h.log.WithFields(logrus.Fields{"user_id": userID, "reason": reason}).Warn("websocket revoke queue full, event dropped")
	}
}

// Run dispatches hub events until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for client := range set {
					h.drop(client)
				}
			}
			return
		case client := <-h.register:
			set, ok := h.clients[client.UserID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.UserID] = set
			}
			set[client] = struct{}{}
			h.metrics.SocketOpened()
			h.log.WithField("user_id", client.UserID).Debug("websocket client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client.UserID][client]; ok {
				h.drop(client)
				h.log.WithField("user_id", client.UserID).Debug("websocket client disconnected")
			}
		case r := <-h.revoke:
			msg, _ := json.Marshal(Event{Type: "session_revoked", Reason: r.reason})
			for client := range h.clients[r.userID] {
				if r.except != "" && client.Token == r.except {
					continue
				}
				select {
				case client.Send <- msg:
				default:
				}
				h.drop(client)
			}
		}
	}
}

// drop forgets client and closes its Send channel, which makes writePump
// flush what is queued and send a close frame.
func (h *Hub) drop(client *Client) {
	set := h.clients[client.UserID]
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.UserID)
	}
	close(client.Send)
	h.metrics.SocketClosed()
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session ended"))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only exists to notice the peer going away and answer pongs.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.WithError(err).Warn("websocket read failed")
			}
			return
		}
	}
}

// ServeWs authenticates the ?token= query parameter and upgrades the
// connection. Authentication failures go through the usual error adapter.
func ServeWs(hub *Hub, c *gin.Context, guard middleware.Guarder) {
	token := c.Query("token")
	if token == "" {
		if bearer, ok := middleware.BearerToken(c.GetHeader("Authorization")); ok {
			token = bearer
		}
	}
	if token == "" {
		_ = c.Error(service.ErrTokenMalformed)
		c.Abort()
		return
	}

	principal, err := guard.Check(c.Request.Context(), token, "")
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	client := &Client{
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, 16),
		UserID: principal.User.ID,
		Token:  token,
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
