package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/gadgetchat/internal/chat"
	"github.com/suPer8Hu/gadgetchat/internal/common"
	"github.com/suPer8Hu/gadgetchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/gadgetchat/internal/metrics"
)

func callerFromContext(c *gin.Context) (chat.Caller, bool) {
	uid := c.GetString(middleware.UserIDKey)
	if uid == "" {
		return chat.Caller{}, false
	}
	return chat.Caller{UserID: uid, Role: chat.Role(c.GetString(middleware.RoleKey))}, true
}

// failChat maps chat domain errors onto the response envelope.
func failChat(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "request not found")
	case errors.Is(err, chat.ErrChatDisabled):
		common.Fail(c, http.StatusForbidden, 40301, "chat is disabled for this request")
	case errors.Is(err, chat.ErrForbidden):
		common.Fail(c, http.StatusForbidden, 40300, "admin role required")
	case errors.Is(err, chat.ErrEmptyMessage):
		common.Fail(c, http.StatusBadRequest, 10002, "text required")
	case errors.Is(err, chat.ErrTooLong):
		common.Fail(c, http.StatusBadRequest, 10003, "text too long")
	case errors.Is(err, chat.ErrEmptyTitle):
		common.Fail(c, http.StatusBadRequest, 10004, "title required")
	default:
		log.Error().Err(err).
			Str("op", op).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("user_id", c.GetString(middleware.UserIDKey)).
			Msg("chat handler failed")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

type createRequestReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) CreateRequest(c *gin.Context) {
	caller, okk := callerFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req createRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	r, err := h.ChatSvc.CreateRequest(c.Request.Context(), caller, req.Title)
	if err != nil {
		failChat(c, "create_request", err)
		return
	}
	common.OK(c, gin.H{"request": r})
}

func (h *Handler) GetRequest(c *gin.Context) {
	caller, okk := callerFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	r, err := h.ChatSvc.GetRequest(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		failChat(c, "get_request", err)
		return
	}
	common.OK(c, gin.H{"request": r})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	caller, okk := callerFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		failChat(c, "list_messages", err)
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

type sendMessageReq struct {
	Text string `json:"text"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	caller, okk := callerFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	msg, err := h.ChatSvc.SendMessage(c.Request.Context(), caller, c.Param("id"), req.Text)
	if err != nil {
		failChat(c, "send_message", err)
		return
	}
	metrics.MessagesSent.WithLabelValues(string(caller.Role)).Inc()
	common.OK(c, gin.H{"message": msg})
}

type setChatReq struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) SetChatEnabled(c *gin.Context) {
	caller, okk := callerFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req setChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "enabled required")
		return
	}
	r, err := h.ChatSvc.SetChatEnabled(c.Request.Context(), caller, c.Param("id"), *req.Enabled)
	if err != nil {
		failChat(c, "set_chat_enabled", err)
		return
	}
	metrics.ChatToggles.WithLabelValues(strconv.FormatBool(*req.Enabled)).Inc()
	common.OK(c, gin.H{"request": r})
}

// StreamChat serves the live chat of a request as SSE: one history event, then a
// message event per new message and periodic pings. The stream ends when chat is
// disabled or the subscription is dropped.
func (h *Handler) StreamChat(c *gin.Context) {
	caller, okk := callerFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	ctx := c.Request.Context()
	requestID := c.Param("id")
	sub, history, err := h.ChatSvc.Subscribe(ctx, caller, requestID)
	if err != nil {
		failChat(c, "stream", err)
		return
	}
	defer sub.Close()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		common.Fail(c, http.StatusInternalServerError, 50003, "streaming unsupported")
		return
	}

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	// avoid gin writing a JSON response later
	c.Status(http.StatusOK)

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			// last-resort: send a simple error that won't break SSE framing
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
		metrics.StreamEvents.WithLabelValues(event).Inc()
	}

	if history == nil {
		history = []chat.Message{}
	}
	writeJSON("history", gin.H{
		"event":    "history",
		"messages": history,
	})

	heartbeat := h.Cfg.StreamHeartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	l := log.With().Str("request_id", requestID).Str("user_id", caller.UserID).Logger()
	l.Debug().Int("history", len(history)).Msg("stream opened")

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				l.Debug().Msg("stream closed by server")
				return
			}
			if ev.Type != chat.EventMessage || ev.Message == nil {
				continue
			}
			writeJSON("message", gin.H{
				"event":   "message",
				"message": ev.Message,
			})

		case <-ticker.C:
			writeJSON("ping", gin.H{
				"event": "ping",
				"ts":    time.Now().Unix(),
			})

		case <-ctx.Done():
			return
		}
	}
}
