package routes

import (
	"context"
	"net/http"
	"time"

	"electrafusion-backend/config"
	"electrafusion-backend/handlers"
	"electrafusion-backend/live"
	"electrafusion-backend/logging"
	"electrafusion-backend/registry"
	"electrafusion-backend/session"
	"electrafusion-backend/tally"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps 路由依赖的服务
type Deps struct {
	Config   config.Config
	DB       *gorm.DB
	Redis    *redis.Client // 可以为nil
	Sessions *session.Service
	Polls    registry.Registry
	Engine   *tally.Engine
	Hub      *live.Hub
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// 通配来源不能携带凭证
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// SetupRouter 设置和配置Gin路由
func SetupRouter(d Deps) *gin.Engine {
	if !d.Config.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger())
	router.Use(cors.New(corsConfig(d.Config.CORSAllowedOrigins)))

	limiter := handlers.NewRateLimiter(d.Config, d.Redis)
	throttle := handlers.NewLoginThrottle(d.Config.RateLimitEnabled, d.Redis)

	health := handlers.NewHealthHandler(d.DB, d.Redis, limiter)
	auth := handlers.NewAuthHandler(d.Sessions)
	polls := handlers.NewPollHandler(d.Polls, d.Engine)
	liveHandler := handlers.NewLiveHandler(d.Polls, d.Hub)

	api := router.Group("/api")
	api.Use(handlers.Authenticate(d.Sessions), limiter.Middleware())
	{
		// 健康检查
		api.GET("/health", health.HealthCheck)
		api.GET("/status", health.SystemStatus)

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", throttle.Middleware(), auth.Login)
			authGroup.POST("/register", throttle.Middleware(), auth.Register)
			authGroup.POST("/logout", auth.Logout)
			authGroup.GET("/session", auth.Session)
		}

		pollGroup := api.Group("/polls")
		{
			pollGroup.GET("", polls.GetPolls)
			pollGroup.GET("/stats", handlers.RequireAdmin(), polls.GetStats)
			pollGroup.GET("/:id", polls.GetPoll)
			pollGroup.GET("/:id/results", polls.GetResults)

			pollGroup.POST("", handlers.RequireAdmin(), polls.CreatePoll)
			pollGroup.POST("/:id/publish", handlers.RequireAdmin(), polls.PublishPoll)
			pollGroup.POST("/:id/close", handlers.RequireAdmin(), polls.ClosePoll)

			pollGroup.POST("/:id/ballots", handlers.RequireVoter(), polls.SubmitBallot)

			// 实时更新端点（WebSocket和SSE）
			pollGroup.GET("/:id/ws", liveHandler.WebSocket)
			pollGroup.GET("/:id/live", liveHandler.SSE)
		}
	}

	return router
}

// StartServer 启动HTTP服务器
func StartServer(cfg config.Config, router *gin.Engine) *http.Server {
	addr := ":" + cfg.ServerPort
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 在单独的goroutine中启动服务器
	go func() {
		logging.For("routes", "StartServer").Infof("服务器启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Fatalf("服务器启动失败: %v", err)
		}
	}()

	return srv
}

// StartExpiryChecker 定期关闭过期的投票并清理过期会话，ctx结束时停止
func StartExpiryChecker(ctx context.Context, interval time.Duration, polls registry.Registry, sessions *session.Service) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sweep(ctx, now, polls, sessions)
		}
	}
}

func sweep(ctx context.Context, now time.Time, polls registry.Registry, sessions *session.Service) {
	log := logging.For("routes", "sweep")

	closed, err := polls.CloseExpired(ctx, now)
	if err != nil {
		log.WithError(err).Error("关闭过期投票失败")
	}
	purged, err := sessions.PurgeExpired(ctx)
	if err != nil {
		log.WithError(err).Error("清理过期会话失败")
	}
	if closed > 0 || purged > 0 {
		log.WithFields(logrus.Fields{"closed_polls": closed, "purged_sessions": purged}).Info("过期检查完成")
	}
}
