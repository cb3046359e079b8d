package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docqa/internal/bootstrap"
	"docqa/internal/transport/http/handler"
	"docqa/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = 8 << 20

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handler.NewAuthHandler(app.Auth)
	documentHandler := handler.NewDocumentHandler(app.Documents)
	chatHandler := handler.NewChatHandler(app.Chats)
	askHandler := handler.NewAskHandler(app.Chats)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	secured := v1.Group("")
	secured.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))

	uploadLimit := middleware.RateLimit(middleware.NewUserRateLimiter(app.Config.Limits.UploadPerMinute, app.Config.Limits.UploadBurst))
	askLimit := middleware.RateLimit(middleware.NewUserRateLimiter(app.Config.Limits.AskPerMinute, app.Config.Limits.AskBurst))

	secured.GET("/auth/me", authHandler.Me)

	secured.POST("/documents", uploadLimit, documentHandler.Upload)
	secured.GET("/documents", documentHandler.List)
	secured.GET("/documents/:id", documentHandler.Get)
	secured.DELETE("/documents/:id", documentHandler.Delete)
	secured.POST("/documents/:id/reingest", uploadLimit, documentHandler.Reingest)

	secured.POST("/chats", chatHandler.CreateChat)
	secured.GET("/chats", chatHandler.ListChats)
	secured.DELETE("/chats/:id", chatHandler.DeleteChat)
	secured.GET("/chats/:id/messages", chatHandler.ListMessages)

	secured.POST("/ask", askLimit, askHandler.Ask)

	return router
}
