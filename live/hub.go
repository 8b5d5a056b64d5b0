package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"electrafusion-backend/logging"
	"electrafusion-backend/models"
	"electrafusion-backend/tally"

	"github.com/sirupsen/logrus"
)

// Message 推送给订阅者的消息
type Message struct {
	Type   string         `json:"type"`
	PollID string         `json:"poll_id"`
	Data   *tally.Results `json:"data"`
}

// Relay 将本地更新转发给其他实例
type Relay interface {
	Publish(ctx context.Context, pollID string, payload []byte) error
}

// Subscriber 一个实时连接(WebSocket或SSE)
type Subscriber struct {
	PollID string
	send   chan []byte
}

// Messages 返回消息通道，订阅被注销后关闭
func (s *Subscriber) Messages() <-chan []byte {
	return s.send
}

// Hub 维护按投票分组的订阅者并广播结果
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Subscriber]struct{}
	// latest 每个投票已推送快照的总票数，总票数只增不减
	latest map[string]int64
	relay  Relay
	now    func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Subscriber]struct{}),
		latest:  make(map[string]int64),
		now:     time.Now,
	}
}

// SetRelay 设置跨实例转发
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay = r
}

// Subscribe 注册订阅者
func (h *Hub) Subscribe(pollID string) *Subscriber {
	s := &Subscriber{PollID: pollID, send: make(chan []byte, 16)}

	h.mu.Lock()
	if _, ok := h.clients[pollID]; !ok {
		h.clients[pollID] = make(map[*Subscriber]struct{})
	}
	h.clients[pollID][s] = struct{}{}
	n := len(h.clients[pollID])
	h.mu.Unlock()

	logging.For("live", "Subscribe").WithFields(logrus.Fields{"poll_id": pollID, "clients": n}).Debug("订阅者已注册")
	return s
}

// Unsubscribe 注销订阅者，可重复调用
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscriber) {
	subs, ok := h.clients[s.PollID]
	if !ok {
		return
	}
	if _, ok := subs[s]; !ok {
		return
	}
	delete(subs, s)
	close(s.send)
	if len(subs) == 0 {
		delete(h.clients, s.PollID)
	}
}

// SubscriberCount 某个投票当前的订阅者数量
func (h *Hub) SubscriberCount(pollID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[pollID])
}

// Encode 计算投票结果并序列化为推送消息
func (h *Hub) Encode(poll *models.Poll) ([]byte, error) {
	res := tally.Summarize(poll, h.now())
	return json.Marshal(Message{Type: "results", PollID: poll.ID, Data: &res})
}

// PollUpdated 实现tally.Notifier，本地广播并转发给其他实例
func (h *Hub) PollUpdated(poll *models.Poll) {
	log := logging.For("live", "PollUpdated").WithField("poll_id", poll.ID)

	payload, err := h.Encode(poll)
	if err != nil {
		log.WithError(err).Error("序列化结果失败")
		return
	}
	if !h.deliver(poll.ID, poll.TotalVotes, payload) {
		log.WithField("total_votes", poll.TotalVotes).Debug("丢弃过期的结果快照")
		return
	}

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := relay.Publish(ctx, poll.ID, payload); err != nil {
			log.WithError(err).Warn("跨实例转发失败")
		}
	}
}

// Broadcast 向本实例中订阅该投票的连接发送消息
// 发送缓冲区已满的订阅者会被移除
func (h *Hub) Broadcast(pollID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(pollID, payload)
}

// deliver 只广播比已推送快照更新的结果，返回是否已广播
func (h *Hub) deliver(pollID string, total int64, payload []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.latest[pollID]; ok && total <= last {
		return false
	}
	h.latest[pollID] = total
	h.broadcastLocked(pollID, payload)
	return true
}

func (h *Hub) broadcastLocked(pollID string, payload []byte) {
	subs := h.clients[pollID]
	for s := range subs {
		select {
		case s.send <- payload:
		default:
			h.removeLocked(s)
		}
	}
	logging.For("live", "Broadcast").WithFields(logrus.Fields{"poll_id": pollID, "clients": len(subs)}).Debug("广播投票结果")
}
