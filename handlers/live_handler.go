package handlers

import (
	"electrafusion-backend/live"
	"electrafusion-backend/models"
	"electrafusion-backend/registry"

	"github.com/gin-gonic/gin"
)

// LiveHandler 实时结果推送(WebSocket和SSE)
type LiveHandler struct {
	polls registry.Registry
	hub   *live.Hub
}

func NewLiveHandler(polls registry.Registry, hub *live.Hub) *LiveHandler {
	return &LiveHandler{polls: polls, hub: hub}
}

// initial 查找投票并编码当前结果
func (h *LiveHandler) initial(c *gin.Context) ([]byte, bool) {
	poll, err := h.polls.Find(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	if poll == nil {
		abortWithError(c, models.ErrPollNotFound)
		return nil, false
	}

	payload, err := h.hub.Encode(poll)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return payload, true
}

// WebSocket handles GET /api/polls/:id/ws
func (h *LiveHandler) WebSocket(c *gin.Context) {
	payload, ok := h.initial(c)
	if !ok {
		return
	}
	h.hub.ServeWebSocket(c.Writer, c.Request, c.Param("id"), payload)
}

// SSE handles GET /api/polls/:id/live
func (h *LiveHandler) SSE(c *gin.Context) {
	payload, ok := h.initial(c)
	if !ok {
		return
	}
	h.hub.StreamSSE(c, c.Param("id"), payload)
}
