package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gadgetchat/internal/chat"
	"github.com/suPer8Hu/gadgetchat/internal/config"
)

type Handler struct {
	Cfg     config.Config
	ChatSvc *chat.Service
}

func NewHandler(cfg config.Config, svc *chat.Service) *Handler {
	return &Handler{Cfg: cfg, ChatSvc: svc}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
