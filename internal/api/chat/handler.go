package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/chatgalaxy/internal/api/middleware"
	"github.com/liliang-cn/chatgalaxy/internal/domain"
	"github.com/liliang-cn/chatgalaxy/internal/service"
)

// Handler handles chat API requests
type Handler struct {
	chatService *service.ChatService
}

// NewHandler creates a new chat handler
func NewHandler(chatService *service.ChatService) *Handler {
	return &Handler{chatService: chatService}
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:session_id", h.GetSession)
	r.PUT("/sessions/:session_id", h.UpdateSession)
	r.DELETE("/sessions/:session_id", h.DeleteSession)
	r.GET("/sessions/:session_id/messages", h.History)

	r.POST("/message", h.Send)
	r.POST("/stream", h.Stream)
}

// CreateSession creates a chat session
func (h *Handler) CreateSession(c *gin.Context) {
	var req domain.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.chatService.CreateSession(c.Request.Context(), &req, middleware.UserID(c))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"session": session}
	if session.GuestToken != "" {
		resp["session_token"] = session.GuestToken
	}
	c.JSON(http.StatusCreated, resp)
}

// ListSessions returns the caller's sessions
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.chatService.ListSessions(c.Request.Context(), middleware.UserID(c), c.Query("guest_token"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "total": len(sessions)})
}

// GetSession returns one session
func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.chatService.GetSession(c.Request.Context(),
		c.Param("session_id"), middleware.UserID(c), c.Query("guest_token"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session)
}

// UpdateSession applies a partial session update
func (h *Handler) UpdateSession(c *gin.Context) {
	var req domain.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.chatService.UpdateSession(c.Request.Context(),
		c.Param("session_id"), &req, middleware.UserID(c), c.Query("guest_token"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session)
}

// DeleteSession soft-deletes a session
func (h *Handler) DeleteSession(c *gin.Context) {
	err := h.chatService.DeleteSession(c.Request.Context(),
		c.Param("session_id"), middleware.UserID(c), c.Query("guest_token"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}

// History returns a session's message log
func (h *Handler) History(c *gin.Context) {
	history, err := h.chatService.GetHistory(c.Request.Context(),
		c.Param("session_id"), middleware.UserID(c), c.Query("guest_token"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, history)
}

// Send runs one chat turn and returns the full reply
func (h *Handler) Send(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.GuestToken == "" {
		req.GuestToken = c.Query("guest_token")
	}

	resp, err := h.chatService.SendMessage(c.Request.Context(), &req, middleware.UserID(c))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Stream runs one chat turn delivered as server-sent events
func (h *Handler) Stream(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.GuestToken == "" {
		req.GuestToken = c.Query("guest_token")
	}
	req.Mode = domain.ModeStream

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	stream, err := h.chatService.StreamMessage(c.Request.Context(), &req, middleware.UserID(c))
	if err != nil {
		writeSSE(c.Writer, "error", err.Error())
		return
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-stream:
			if !ok {
				return false
			}
			if chunk.Err != nil {
				writeSSE(w, "error", chunk.Err.Error())
				return false
			}
			data, _ := json.Marshal(chunk)
			if chunk.IsComplete {
				fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
				return false
			}
			fmt.Fprintf(w, "event: chunk\ndata: %s\n\n", data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func writeSSE(w io.Writer, eventType, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrRoleNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAIUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
