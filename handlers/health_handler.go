package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"electrafusion-backend/database"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SystemInfo contains basic system metrics and information
type SystemInfo struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Uptime       string            `json:"uptime"`
	StartTime    time.Time         `json:"start_time"`
	CurrentTime  time.Time         `json:"current_time"`
	GoVersion    string            `json:"go_version"`
	NumGoroutine int               `json:"num_goroutine"`
	NumCPU       int               `json:"num_cpu"`
	DBStatus     string            `json:"db_status"`
	RedisStatus  string            `json:"redis_status"`
	RateLimit    *RateLimiterStats `json:"rate_limit,omitempty"`
}

var (
	startTime = time.Now()
	version   = "0.1.0" // 应用版本，可通过构建参数注入
)

type HealthHandler struct {
	db      *gorm.DB
	redis   *redis.Client
	limiter *RateLimiter
}

// NewHealthHandler redis和limiter可以为nil
func NewHealthHandler(db *gorm.DB, client *redis.Client, limiter *RateLimiter) *HealthHandler {
	return &HealthHandler{db: db, redis: client, limiter: limiter}
}

// HealthCheck 提供基本健康检查端点
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 提供详细的系统状态信息
func (h *HealthHandler) SystemStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	info := SystemInfo{
		Status:       "ok",
		Version:      version,
		Uptime:       time.Since(startTime).String(),
		StartTime:    startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		DBStatus:     "ok",
		RedisStatus:  "disabled",
	}

	// 检查数据库连接
	if err := database.Ping(ctx, h.db); err != nil {
		info.DBStatus = "error"
		info.Status = "degraded"
	}
	if h.redis != nil {
		info.RedisStatus = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			info.RedisStatus = "error"
			info.Status = "degraded"
		}
	}
	if h.limiter != nil {
		stats := h.limiter.Stats()
		info.RateLimit = &stats
	}

	c.JSON(http.StatusOK, info)
}
