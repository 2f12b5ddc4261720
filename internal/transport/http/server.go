package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"geminichat/internal/ai"
	appsvc "geminichat/internal/app"
	"geminichat/internal/bootstrap"
	"geminichat/internal/cache"
	rabbitmqClient "geminichat/internal/platform/rabbitmq"
	"geminichat/internal/repository"
	"geminichat/internal/transport/http/handler"
	"geminichat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	renamePublisher := rabbitmqClient.NewRenamePublisher(app.MQConn, app.Config.RabbitMQ.RenameQueue)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	chatService := appsvc.NewChatService(
		sessionRepo,
		messageRepo,
		renamePublisher,
		historyCache,
		app.Gemini,
		ai.GenerateConfig{
			BaseURL:     app.Config.Gemini.BaseURL,
			APIKey:      app.Config.Gemini.APIKey,
			Model:       app.Config.Gemini.Model,
			Temperature: app.Config.Gemini.Temperature,
		},
	)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService, app.TitleService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	chatGroup.POST("/sessions", chatHandler.CreateSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.GET("/sessions/:id/messages", chatHandler.GetSessionMessages)
	chatGroup.POST("/sessions/:id/rename", chatHandler.RenameSession)
	chatGroup.POST("/messages", chatHandler.SubmitTurn)

	return router
}
