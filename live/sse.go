package live

import (
	"io"
	"time"

	"electrafusion-backend/logging"

	"github.com/gin-gonic/gin"
)

var heartbeatInterval = 15 * time.Second

// StreamSSE 以Server-Sent Events推送该投票的结果，直到客户端断开
func (h *Hub) StreamSSE(c *gin.Context, pollID string, initial []byte) {
	log := logging.For("live", "StreamSSE").WithField("poll_id", pollID)

	sub := h.Subscribe(pollID)
	defer h.Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // 禁用Nginx缓冲

	if initial != nil {
		c.SSEvent("results", string(initial))
		c.Writer.Flush()
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	log.WithField("client_ip", c.ClientIP()).Info("SSE客户端已连接")
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-sub.send:
			if !ok {
				return false
			}
			c.SSEvent("results", string(msg))
			return true
		case t := <-heartbeat.C:
			c.SSEvent("heartbeat", t.Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
	log.Info("SSE客户端已断开")
}
