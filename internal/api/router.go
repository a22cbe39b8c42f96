package api

import (
	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/chatgalaxy/internal/api/auth"
	"github.com/liliang-cn/chatgalaxy/internal/api/chat"
	"github.com/liliang-cn/chatgalaxy/internal/api/middleware"
	"github.com/liliang-cn/chatgalaxy/internal/api/roles"
	"github.com/liliang-cn/chatgalaxy/internal/api/system"
	"github.com/liliang-cn/chatgalaxy/internal/config"
	"github.com/liliang-cn/chatgalaxy/internal/service"
	"github.com/liliang-cn/chatgalaxy/internal/ws"
)

// SetupRouter sets up the Gin router
func SetupRouter(
	cfg *config.Config,
	authService *service.AuthService,
	chatService *service.ChatService,
	roleService *service.RoleService,
	systemService *service.SystemService,
	registry *ws.Registry,
	wsHandler *ws.Handler,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	systemHandler := system.NewHandler(systemService, registry)

	// Health check
	r.GET("/health", systemHandler.Health)

	// Static assets (role avatars)
	SetupStaticRoutes(r, cfg.Server.StaticDir)

	adminAuth := middleware.AdminAuth(cfg.Admin.APIKey)
	v1 := r.Group("/api/v1")

	// Auth API (public)
	authHandler := auth.NewHandler(authService)
	authHandler.RegisterRoutes(v1.Group("/auth"))

	// Role API (public reads, admin writes)
	roleHandler := roles.NewHandler(roleService)
	roleHandler.RegisterRoutes(v1.Group("/roles"), adminAuth)

	// Chat API (works for users and guests)
	chatHandler := chat.NewHandler(chatService)
	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.OptionalAuth(authService))
	chatHandler.RegisterRoutes(chatGroup)

	// System API (requires API key)
	systemGroup := v1.Group("/system")
	systemGroup.Use(adminAuth)
	systemHandler.RegisterRoutes(systemGroup)
	systemGroup.GET("/ws/stats", wsHandler.Stats)
	systemGroup.GET("/ws/connections/:connection_id", wsHandler.ConnectionInfo)
	systemGroup.DELETE("/ws/connections/:connection_id", wsHandler.Disconnect)
	systemGroup.POST("/ws/broadcast", wsHandler.Broadcast)

	// WebSocket endpoints
	wsHandler.RegisterRoutes(r.Group("/ws"))

	return r
}
