package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suPer8Hu/gadgetchat/internal/chat"
	"github.com/suPer8Hu/gadgetchat/internal/common"
	"github.com/suPer8Hu/gadgetchat/internal/config"
	"github.com/suPer8Hu/gadgetchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/gadgetchat/internal/httpapi/middleware"
)

func NewRouter(cfg config.Config, svc *chat.Service) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())

	h := handlers.NewHandler(cfg, svc)

	r.GET("/ping", h.Ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// JWT required
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.POST("/requests", h.CreateRequest)
	authGroup.GET("/requests/:id", h.GetRequest)
	authGroup.GET("/requests/:id/chat/messages", h.ListChatMessages)
	authGroup.POST("/requests/:id/chat/messages", h.SendChatMessage)
	authGroup.GET("/requests/:id/chat/stream", h.StreamChat)

	admin := authGroup.Group("/admin")
	admin.Use(middleware.AdminRequired())
	admin.PATCH("/requests/:id/chat", h.SetChatEnabled)
	return r
}
