package cache

import (
	"context"
	"fmt"
	"time"

	"electrafusion-backend/logging"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// DistributedLockService 基于redsync的分布式锁服务
type DistributedLockService struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewLockService 创建分布式锁服务，expiry为锁的自动过期时间
func NewLockService(client *redis.Client, expiry time.Duration) *DistributedLockService {
	// 创建Redis连接池
	pool := goredis.NewPool(client)
	logging.For("cache", "NewLockService").Info("分布式锁初始化成功")
	return &DistributedLockService{rs: redsync.New(pool), expiry: expiry}
}

// AcquireLock 获取锁，重试耗尽或ctx结束时返回错误
func (s *DistributedLockService) AcquireLock(ctx context.Context, lockName string) (*redsync.Mutex, error) {
	mutex := s.rs.NewMutex("lock:"+lockName,
		redsync.WithExpiry(s.expiry),
		redsync.WithTries(32),                       // 最大重试次数
		redsync.WithRetryDelay(50*time.Millisecond), // 重试延迟
		redsync.WithDriftFactor(0.01),               // 时钟漂移因子
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockNotAcquired, err)
	}
	return mutex, nil
}

// WithLock 在锁内执行操作
func (s *DistributedLockService) WithLock(ctx context.Context, lockName string, action func() error) error {
	mutex, err := s.AcquireLock(ctx, lockName)
	if err != nil {
		return err
	}

	// 确保解锁，ctx可能已超时所以使用独立上下文
	defer func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			logging.For("cache", "WithLock").WithError(err).WithField("lock", lockName).Warn("释放分布式锁失败")
		}
	}()

	return action()
}
