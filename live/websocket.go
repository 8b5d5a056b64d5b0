package live

import (
	"net/http"
	"time"

	"electrafusion-backend/logging"

	"github.com/gorilla/websocket"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时
	pongWait = 60 * time.Second

	// 发送ping间隔时间，必须小于pongWait
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 来源由CORS中间件控制
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWebSocket 升级连接并推送该投票的结果，initial在订阅后立即发送
func (h *Hub) ServeWebSocket(w http.ResponseWriter, r *http.Request, pollID string, initial []byte) {
	log := logging.For("live", "ServeWebSocket").WithField("poll_id", pollID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket升级失败")
		return
	}

	sub := h.Subscribe(pollID)
	go h.writePump(conn, sub, initial)
	go h.readPump(conn, sub)

	log.Info("WebSocket连接已建立")
}

// readPump 只处理控制帧，客户端消息被忽略
func (h *Hub) readPump(conn *websocket.Conn, sub *Subscriber) {
	defer func() {
		h.Unsubscribe(sub)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.For("live", "readPump").WithError(err).Debug("WebSocket读取错误")
			}
			return
		}
	}
}

// writePump 向WebSocket连接发送消息和心跳
func (h *Hub) writePump(conn *websocket.Conn, sub *Subscriber, initial []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	if initial != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, initial); err != nil {
			return
		}
	}

	for {
		select {
		case message, ok := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
