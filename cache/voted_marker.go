package cache

import (
	"context"
	"fmt"
	"time"
)

// VotedMarkers 用户已投票标记的Redis快速路径
// 数据库中的选票记录才是权威来源，这里只用于提前拒绝重复投票
type VotedMarkers struct {
	redisClient RedisClient
	ttl         time.Duration
}

func NewVotedMarkers(client RedisClient, ttl time.Duration) *VotedMarkers {
	return &VotedMarkers{redisClient: client, ttl: ttl}
}

func markerKey(pollID, userID string) string {
	return fmt.Sprintf("poll:%s:voted:%s", pollID, userID)
}

// HasVoted 查询标记是否存在
func (m *VotedMarkers) HasVoted(ctx context.Context, pollID, userID string) (bool, error) {
	if m.redisClient == nil {
		return false, ErrRedisNotAvailable
	}
	n, err := m.redisClient.Exists(ctx, markerKey(pollID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkVoted 写入标记，已存在时不覆盖
func (m *VotedMarkers) MarkVoted(ctx context.Context, pollID, userID string) error {
	if m.redisClient == nil {
		return ErrRedisNotAvailable
	}
	return m.redisClient.SetNX(ctx, markerKey(pollID, userID), 1, m.ttl).Err()
}
