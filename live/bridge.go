package live

import (
	"context"
	"encoding/json"
	"fmt"

	"electrafusion-backend/logging"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const bridgeChannel = "electrafusion:poll_updates"

type envelope struct {
	Origin  string          `json:"origin"`
	PollID  string          `json:"poll_id"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBridge 通过Redis发布订阅在多个实例之间同步实时结果
type RedisBridge struct {
	client   *redis.Client
	hub      *Hub
	instance string
}

func NewRedisBridge(client *redis.Client, hub *Hub) *RedisBridge {
	return &RedisBridge{client: client, hub: hub, instance: uuid.NewString()}
}

// Publish 实现Relay
func (b *RedisBridge) Publish(ctx context.Context, pollID string, payload []byte) error {
	data, err := json.Marshal(envelope{Origin: b.instance, PollID: pollID, Payload: payload})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, bridgeChannel, data).Err(); err != nil {
		return fmt.Errorf("publish poll update: %w", err)
	}
	return nil
}

// Run 订阅频道并把其他实例的更新转发给本地Hub，ctx结束时返回
func (b *RedisBridge) Run(ctx context.Context) {
	log := logging.For("live", "RedisBridge.Run")

	pubsub := b.client.Subscribe(ctx, bridgeChannel)
	defer pubsub.Close()
	log.Info("实时结果桥接已启动")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handle([]byte(msg.Payload))
		}
	}
}

func (b *RedisBridge) handle(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logging.For("live", "RedisBridge.handle").WithError(err).Warn("无法解析桥接消息")
		return
	}
	if env.Origin == b.instance {
		return
	}
	var msg Message
	if err := json.Unmarshal(env.Payload, &msg); err != nil || msg.Data == nil {
		b.hub.Broadcast(env.PollID, env.Payload)
		return
	}
	b.hub.deliver(env.PollID, msg.Data.TotalVotes, env.Payload)
}
