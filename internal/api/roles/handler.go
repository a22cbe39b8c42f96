package roles

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/chatgalaxy/internal/domain"
	"github.com/liliang-cn/chatgalaxy/internal/service"
)

// Handler handles AI role API requests
type Handler struct {
	roleService *service.RoleService
}

// NewHandler creates a new role handler
func NewHandler(roleService *service.RoleService) *Handler {
	return &Handler{roleService: roleService}
}

// RegisterRoutes registers role routes. Reads are public; writes sit behind
// the admin middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, adminAuth gin.HandlerFunc) {
	r.GET("", h.List)
	r.GET("/defaults", h.ListDefaults)
	r.GET("/:role_id", h.Get)

	r.POST("", adminAuth, h.Create)
	r.PUT("/:role_id", adminAuth, h.Update)
	r.DELETE("/:role_id", adminAuth, h.Delete)
}

// List returns the available AI roles
func (h *Handler) List(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"

	roles, err := h.roleService.ListRoles(c.Request.Context(), includeInactive)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"roles": roles, "total": len(roles)})
}

// ListDefaults returns the built-in AI roles
func (h *Handler) ListDefaults(c *gin.Context) {
	roles, err := h.roleService.ListDefaultRoles(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"roles": roles, "total": len(roles)})
}

// Get returns one AI role
func (h *Handler) Get(c *gin.Context) {
	role, err := h.roleService.GetRole(c.Request.Context(), c.Param("role_id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, role)
}

// Create adds a new AI role
func (h *Handler) Create(c *gin.Context) {
	var req domain.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := h.roleService.CreateRole(c.Request.Context(), &req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, role)
}

// Update modifies an AI role
func (h *Handler) Update(c *gin.Context) {
	var req domain.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := h.roleService.UpdateRole(c.Request.Context(), c.Param("role_id"), &req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, role)
}

// Delete removes an AI role. Roles referenced by sessions are refused.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.roleService.DeleteRole(c.Request.Context(), c.Param("role_id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "role deleted"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoleNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
