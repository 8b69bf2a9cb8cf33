package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dahdouh-ai/internal/bootstrap"
	"dahdouh-ai/internal/logger"
	"dahdouh-ai/internal/platform/database"
	"dahdouh-ai/internal/transport/http/handler"
	"dahdouh-ai/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(logger.GinMiddleware(app.Log), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, healthChecks(app))
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	maxUpload := app.Config.MaxUploadBytes()
	authHandler := handler.NewAuthHandler(app.AuthService)
	chatHandler := handler.NewChatHandler(app.ChatService)
	turnHandler := handler.NewTurnHandler(app.TurnService, maxUpload)

	uploadHandler := handler.NewUploadHandler(app.Uploader, app.LocalUploader, app.LocalFiles, maxUpload)

	auth := middleware.AuthJWT(app.Config.Auth.JWTSecret)
	api := router.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", auth, authHandler.Me)

	chatGroup := api.Group("/chat", auth)
	chatGroup.POST("/ai", turnHandler.Submit)
	chatGroup.POST("/create", chatHandler.Create)
	chatGroup.GET("/get", chatHandler.List)
	chatGroup.GET("/messages", chatHandler.Messages)
	chatGroup.POST("/rename", chatHandler.Rename)
	chatGroup.POST("/delete", chatHandler.Delete)

	api.POST("/upload", auth, uploadHandler.Upload)
	api.POST("/upload-image", auth, uploadHandler.UploadImage)
	api.GET("/tmp", uploadHandler.Tmp)

	return router
}

func healthChecks(app *bootstrap.App) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return database.Ping(ctx, app.DB) },
		"redis":    func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() },
	}
	if app.Config.RabbitMQ.Enabled {
		checks["rabbitmq"] = func(context.Context) error {
			if app.MQConn == nil || app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	if app.StorageHealth != nil {
		checks["storage"] = app.StorageHealth
	}
	return checks
}
