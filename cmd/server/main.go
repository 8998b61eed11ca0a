package main

import (
	"log"

	"go-direct-chat/internal/api"
	"go-direct-chat/internal/middleware"
	"go-direct-chat/internal/repository"
	"go-direct-chat/internal/service"
	"go-direct-chat/internal/websocket"
	"go-direct-chat/pkg/config"
	"go-direct-chat/pkg/db"
	"go-direct-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := config.Init(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	serverConfig := config.GlobalConfig.Server
	if err := logger.InitLogger(serverConfig.LogLevel, serverConfig.Production); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := db.InitDB(); err != nil {
		logger.L.Fatal("Failed to initialize database", zap.Error(err))
	}

	hub, err := websocket.CreateHub()
	if err != nil {
		logger.L.Fatal("Failed to create hub", zap.Error(err))
	}
	if err := websocket.StartHub(hub); err != nil {
		logger.L.Fatal("Failed to start hub", zap.Error(err))
	}

	userRepo := repository.NewUserRepository()
	messageRepo := repository.NewMessageRepository()

	fileService := service.NewFileService()
	authService := service.NewAuthService(userRepo)
	chatService := service.NewChatService(hub, messageRepo, userRepo, fileService)
	hub.SetEventHandler(chatService)

	authHandler := api.NewAuthHandler(authService)
	wsHandler := api.NewWSHandler(hub, chatService)
	messageHandler := api.NewMessageHandler(chatService, fileService)

	if serverConfig.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.GinZapLogger(), gin.Recovery())

	// Public routes
	r.POST("/api/auth/register", authHandler.Register)
	r.POST("/api/auth/login", authHandler.Login)

	// Protected routes
	protected := r.Group("/")
	protected.Use(middleware.AuthMiddleware())
	{
		protected.GET("/ws", wsHandler.HandleConnection)

		messages := protected.Group("/api/messages")
		{
			messages.GET("/history/:peer_id", messageHandler.GetChatHistory)
			messages.GET("/:message_id", messageHandler.GetMessage)
			messages.PUT("/:message_id", messageHandler.EditMessage)
			messages.DELETE("/:message_id", messageHandler.DeleteMessage)
			messages.POST("/mark-read", messageHandler.MarkRead)
		}

		protected.POST("/api/upload", messageHandler.UploadFile)
	}

	// Stored attachments are served directly.
	r.Static("/uploads", fileService.BasePath())

	addr := serverConfig.Addr
	if addr == "" {
		addr = ":8080"
	}
	logger.L.Info("Starting server", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		logger.L.Fatal("Failed to start server", zap.Error(err))
	}
}
