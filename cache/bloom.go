package cache

import (
	"context"
	"hash/fnv"

	"github.com/redis/go-redis/v9"
)

// BloomFilter 基于Redis位图的布隆过滤器
type BloomFilter struct {
	redisClient RedisClient
	key         string
	readyKey    string
	hashCount   int
}

// NewBloomFilter 创建新的布隆过滤器
func NewBloomFilter(client RedisClient, key string, hashCount int) *BloomFilter {
	return &BloomFilter{
		redisClient: client,
		key:         "bloom:" + key,
		readyKey:    "bloom:" + key + ":ready",
		hashCount:   hashCount,
	}
}

// Add 添加元素到布隆过滤器
// 位图不设置过期时间，过期会产生假阴性
func (bf *BloomFilter) Add(ctx context.Context, item string) error {
	if bf.redisClient == nil {
		return ErrRedisNotAvailable
	}

	pipe := bf.redisClient.Pipeline()
	for i := 0; i < bf.hashCount; i++ {
		pipe.SetBit(ctx, bf.key, bf.hash(item, i), 1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// MarkReady 标记过滤器已完成预热
func (bf *BloomFilter) MarkReady(ctx context.Context) error {
	if bf.redisClient == nil {
		return ErrRedisNotAvailable
	}
	return bf.redisClient.Set(ctx, bf.readyKey, 1, 0).Err()
}

// MightContain 检查元素是否可能存在
// 未预热(例如Redis被清空)时一律返回true
func (bf *BloomFilter) MightContain(ctx context.Context, item string) (bool, error) {
	if bf.redisClient == nil {
		return true, ErrRedisNotAvailable
	}

	pipe := bf.redisClient.Pipeline()
	ready := pipe.Exists(ctx, bf.readyKey)
	cmds := make([]*redis.IntCmd, 0, bf.hashCount)
	for i := 0; i < bf.hashCount; i++ {
		cmds = append(cmds, pipe.GetBit(ctx, bf.key, bf.hash(item, i)))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return true, err
	}
	if ready.Val() == 0 {
		return true, nil
	}

	// 如果任何一个位为0，则元素肯定不存在
	for _, cmd := range cmds {
		if cmd.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// hash 计算哈希值，使用不同的种子
func (bf *BloomFilter) hash(key string, seed int) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	h.Write([]byte{byte(seed)})
	return int64(h.Sum64() % uint64(1<<30)) // 使用2^30位
}
