package cache

import (
	"context"
	"time"

	"electrafusion-backend/config"
	"electrafusion-backend/logging"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewClient 根据配置创建Redis客户端
// 地址为空或连接失败时返回nil，调用方应退化为单机实现
func NewClient(ctx context.Context, cfg config.Config) *redis.Client {
	log := logging.For("cache", "NewClient")

	if cfg.RedisAddr == "" {
		log.Info("未配置REDIS_ADDR，Redis功能已禁用")
		return nil
	}

	log.WithField("addr", cfg.RedisAddr).Info("初始化Redis连接")
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 3 * time.Second,
		ReadTimeout: 3 * time.Second,
		PoolSize:    10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithFields(logrus.Fields{"error": err, "addr": cfg.RedisAddr}).Warn("Redis连接失败，使用单机模式")
		_ = client.Close()
		return nil
	}

	log.Info("Redis连接初始化成功")
	return client
}

// Close 关闭Redis连接，nil安全
func Close(client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logging.For("cache", "Close").WithError(err).Error("关闭Redis连接错误")
		return
	}
	logging.For("cache", "Close").Info("Redis连接已关闭")
}
