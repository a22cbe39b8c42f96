package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/chatgalaxy/internal/ai"
	"github.com/liliang-cn/chatgalaxy/internal/api"
	"github.com/liliang-cn/chatgalaxy/internal/config"
	"github.com/liliang-cn/chatgalaxy/internal/repository"
	"github.com/liliang-cn/chatgalaxy/internal/service"
	"github.com/liliang-cn/chatgalaxy/internal/ws"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := buildLogger(cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	gin.SetMode(cfg.Server.Mode)

	// The signal context is the lifetime of every background worker,
	// including chat turns started over websockets.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	// Initialize the model provider client
	aiClient := ai.NewClient(cfg.AI, logger)

	// Initialize services
	authService := service.NewAuthService(cfg.Auth, userRepo)
	roleService := service.NewRoleService(roleRepo, sessionRepo)
	chatService := service.NewChatService(cfg, sessionRepo, roleRepo, aiClient)
	systemService := service.NewSystemService(userRepo, roleRepo, sessionRepo)

	// Seed the built-in AI roles
	if err := roleService.EnsureDefaults(ctx); err != nil {
		logger.Fatal("Failed to seed default roles", zap.Error(err))
	}

	// Realtime transport
	registry := ws.NewRegistry(cfg.WebSocket, logger)
	monitor := ws.NewMonitor(registry, cfg.WebSocket, logger)
	wsRouter := ws.NewRouter(ctx, registry, chatService, roleService, logger)
	wsHandler := ws.NewHandler(cfg, registry, wsRouter, authService, chatService, logger)

	// Setup router
	engine := api.SetupRouter(cfg, authService, chatService, roleService, systemService, registry, wsHandler)

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting ChatGalaxy server", zap.String("address", cfg.Address()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return monitor.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		registry.CloseAll(websocket.CloseGoingAway, "Service shutdown")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func buildLogger(mode string) (*zap.Logger, error) {
	if mode == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
