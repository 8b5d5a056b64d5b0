package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"electrafusion-backend/cache"
	"electrafusion-backend/config"
	"electrafusion-backend/database"
	"electrafusion-backend/live"
	"electrafusion-backend/logging"
	"electrafusion-backend/registry"
	"electrafusion-backend/routes"
	"electrafusion-backend/session"
	"electrafusion-backend/tally"
)

func main() {
	log := logging.For("main", "main")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	logging.SetLevel(cfg.LogLevel)

	// 初始化数据库连接
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Info("数据库连接初始化成功")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Redis可选，不可用时所有组件退化为单机实现
	redisClient := cache.NewClient(ctx, cfg)

	hub := live.NewHub()
	sessions := session.NewService(db, cfg.SessionTTL)

	engineOpts := []tally.Option{
		tally.WithNotifier(hub),
		tally.WithTimeout(cfg.BallotTimeout),
	}
	var polls registry.Registry = registry.NewGormRegistry(db)

	if redisClient != nil {
		engineOpts = append(engineOpts,
			tally.WithLocker(cache.NewLockService(redisClient, 8*time.Second)),
			tally.WithMarkers(cache.NewVotedMarkers(redisClient, 30*24*time.Hour)),
		)

		cached := registry.NewCachedRegistry(polls, cache.NewBloomFilter(redisClient, "electrafusion:poll_ids", 3))
		if err := cached.Prewarm(ctx); err != nil {
			log.WithError(err).Warn("布隆过滤器预热失败")
		}
		polls = cached

		bridge := live.NewRedisBridge(redisClient, hub)
		hub.SetRelay(bridge)
		go bridge.Run(ctx)
		log.Info("Redis组件初始化成功")
	}

	engine := tally.NewEngine(db, engineOpts...)

	// 设置路由
	router := routes.SetupRouter(routes.Deps{
		Config:   cfg,
		DB:       db,
		Redis:    redisClient,
		Sessions: sessions,
		Polls:    polls,
		Engine:   engine,
		Hub:      hub,
	})

	srv := routes.StartServer(cfg, router)
	go routes.StartExpiryChecker(ctx, cfg.ExpiryCheckInterval, polls, sessions)

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("关闭服务器...")

	stop()

	// 创建一个5秒超时的上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 不接受新请求并等待现有请求完成
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("服务器强制关闭")
	}

	database.Close(db)
	cache.Close(redisClient)

	log.Info("服务器优雅关闭")
}
