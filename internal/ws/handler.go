package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/liliang-cn/chatgalaxy/internal/config"
	"github.com/liliang-cn/chatgalaxy/internal/domain"
)

// Close codes sent before dropping a socket during connect.
const (
	CloseConnectFailed   = 4001
	CloseAuthFailed      = 4003
	CloseSessionNotFound = 4004
)

// AuthCollaborator verifies bearer tokens during connect.
type AuthCollaborator interface {
	VerifyAccessToken(ctx context.Context, token string) (*domain.User, error)
}

// Handler upgrades HTTP requests to websockets and runs the per-connection
// read loop.
type Handler struct {
	cfg      *config.Config
	registry *Registry
	router   *Router
	auth     AuthCollaborator
	chat     ChatCollaborator
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the websocket endpoint handler
func NewHandler(
	cfg *config.Config,
	registry *Registry,
	router *Router,
	auth AuthCollaborator,
	chat ChatCollaborator,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		cfg:      cfg,
		registry: registry,
		router:   router,
		auth:     auth,
		chat:     chat,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     originChecker(cfg.WebSocket.AllowedOrigins),
	}
	return h
}

// originChecker allows every origin when the list is empty or contains "*".
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	all := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			all = true
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if all {
			return true
		}
		_, ok := allowed[r.Header.Get("Origin")]
		return ok
	}
}

// RegisterRoutes registers the websocket endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/chat", h.Connect)
	r.GET("/chat/:session_id", h.ConnectSession)
}

// Connect serves a sessionless websocket. The client picks sessions later
// via subscribe frames or by carrying session ids in chat messages.
func (h *Handler) Connect(c *gin.Context) {
	h.serve(c, "")
}

// ConnectSession serves a websocket bound to one session from the start.
func (h *Handler) ConnectSession(c *gin.Context) {
	h.serve(c, c.Param("session_id"))
}

func (h *Handler) serve(c *gin.Context, sessionID string) {
	if h.registry.Count() >= h.cfg.WebSocket.MaxConnections {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "connection limit reached"})
		return
	}

	token := c.Query("token")
	guestToken := c.Query("guest_token")

	sock, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	userID := ""
	if token != "" {
		user, err := h.auth.VerifyAccessToken(c.Request.Context(), token)
		if err != nil {
			h.refuse(sock, CloseAuthFailed, "authentication failed")
			return
		}
		userID = user.ID
	}

	if sessionID != "" {
		if _, err := h.chat.GetSession(c.Request.Context(), sessionID, userID, guestToken); err != nil {
			h.refuse(sock, CloseSessionNotFound, "session not found")
			return
		}
	}

	conn, err := h.registry.Register(sock, userID, sessionID, guestToken)
	if err != nil {
		h.refuse(sock, CloseConnectFailed, "connection failed")
		return
	}

	h.readLoop(conn, sock)
}

// refuse closes a socket that never made it into the registry.
func (h *Handler) refuse(sock *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.cfg.WebSocket.WriteDeadline())
	_ = sock.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = sock.Close()
}

// readLoop feeds inbound frames to the router until the peer goes away.
// Liveness is the monitor's job: there is no read deadline, and an evicted
// connection unblocks the loop when the registry closes its socket.
func (h *Handler) readLoop(conn *Connection, sock *websocket.Conn) {
	defer h.registry.Unregister(conn.ID)

	sock.SetReadLimit(h.cfg.WebSocket.MaxMessageBytes)
	for {
		messageType, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read ended",
					zap.String("connection_id", conn.ID),
					zap.Error(err),
				)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.router.HandleInbound(conn, data)
	}
}

// BroadcastRequest is the admin request to push a system message.
type BroadcastRequest struct {
	Target       string `json:"target" binding:"required,oneof=all user session connection"`
	UserID       string `json:"user_id"`
	SessionID    string `json:"session_id"`
	ConnectionID string `json:"connection_id"`
	Message      string `json:"message" binding:"required"`
}

// Stats returns the live connection census
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Stats())
}

// ConnectionInfo returns a snapshot of one connection
func (h *Handler) ConnectionInfo(c *gin.Context) {
	info, ok := h.registry.Info(c.Param("connection_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// Disconnect force-closes one connection
func (h *Handler) Disconnect(c *gin.Context) {
	connID := c.Param("connection_id")

	info, ok := h.registry.Info(connID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}

	h.registry.Unregister(connID)
	c.JSON(http.StatusOK, gin.H{"message": "connection closed", "connection": info})
}

// Broadcast pushes a system message to the requested target
func (h *Handler) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event := SystemMessage{Type: KindSystemMessage, Message: req.Message, Timestamp: time.Now()}

	delivered := 0
	switch req.Target {
	case "all":
		delivered = h.registry.BroadcastAll(event, "")
	case "user":
		if req.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}
		delivered = h.registry.BroadcastToUser(req.UserID, event)
	case "session":
		if req.SessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
			return
		}
		delivered = h.registry.BroadcastToSession(req.SessionID, event, "")
	case "connection":
		if req.ConnectionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "connection_id is required"})
			return
		}
		if h.registry.Send(req.ConnectionID, event) {
			delivered = 1
		}
	}

	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}
