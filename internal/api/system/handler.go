package system

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/chatgalaxy/internal/service"
	"github.com/liliang-cn/chatgalaxy/internal/ws"
)

// Handler handles system API requests
type Handler struct {
	systemService *service.SystemService
	registry      *ws.Registry
}

// NewHandler creates a new system handler
func NewHandler(systemService *service.SystemService, registry *ws.Registry) *Handler {
	return &Handler{systemService: systemService, registry: registry}
}

// RegisterRoutes registers system routes behind the admin middleware
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/stats", h.Stats)
	r.POST("/cleanup", h.Cleanup)
}

// Health reports service liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.systemService.Health(c.Request.Context()))
}

// Stats returns usage counters joined with the live connection census
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.systemService.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"usage":     stats,
		"websocket": h.registry.Stats(),
	})
}

// Cleanup purges expired refresh tokens
func (h *Handler) Cleanup(c *gin.Context) {
	if err := h.systemService.CleanupExpiredTokens(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "cleanup complete"})
}
