package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"electrafusion-backend/cache"
	"electrafusion-backend/config"
	"electrafusion-backend/logging"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiterConfig 限流器配置结构
type RateLimiterConfig struct {
	Enabled     bool `json:"enabled"`
	GlobalRate  int  `json:"globalRate"`
	GlobalBurst int  `json:"globalBurst"`
	UserRate    int  `json:"userRate"`
	UserBurst   int  `json:"userBurst"`
	Distributed bool `json:"distributed"`
}

// RateLimiterStats 限流器统计信息
type RateLimiterStats struct {
	TotalRequests     int64             `json:"totalRequests"`
	AllowedRequests   int64             `json:"allowedRequests"`
	RejectedRequests  int64             `json:"rejectedRequests"`
	RateLimiterConfig RateLimiterConfig `json:"config"`
}

// keyedLimiterIdle 超过该时长未使用的令牌桶会被回收，回收时桶早已回满
const keyedLimiterIdle = 10 * time.Minute

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiter 按键分配的进程内令牌桶
type keyedLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*keyedEntry
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newKeyedLimiter(limit rate.Limit, burst int) *keyedLimiter {
	return &keyedLimiter{
		limiters:  make(map[string]*keyedEntry),
		limit:     limit,
		burst:     burst,
		idle:      keyedLimiterIdle,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (k *keyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	now := k.now()
	if now.Sub(k.lastSweep) >= k.idle {
		k.sweepLocked(now)
	}
	e, ok := k.limiters[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.limiters[key] = e
	}
	e.lastSeen = now
	k.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

func (k *keyedLimiter) sweepLocked(now time.Time) {
	for key, e := range k.limiters {
		if now.Sub(e.lastSeen) >= k.idle {
			delete(k.limiters, key)
		}
	}
	k.lastSweep = now
}

func (k *keyedLimiter) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

// RateLimiter API限流
// 有Redis时使用分布式令牌桶，否则使用进程内限流
type RateLimiter struct {
	config RateLimiterConfig

	distributed *cache.UserRateLimiter

	localGlobal *rate.Limiter
	localUsers  *keyedLimiter

	statsLock sync.Mutex
	stats     map[string]int64
}

// NewRateLimiter 根据配置创建限流器，client可以为nil
func NewRateLimiter(cfg config.Config, client *redis.Client) *RateLimiter {
	rc := RateLimiterConfig{
		Enabled:     cfg.RateLimitEnabled,
		GlobalRate:  cfg.GlobalRateLimit,
		GlobalBurst: cfg.GlobalRateLimit * 2,
		UserRate:    cfg.UserRateLimit,
		UserBurst:   cfg.UserRateLimit * 2,
		Distributed: client != nil,
	}

	l := &RateLimiter{
		config:      rc,
		localGlobal: rate.NewLimiter(rate.Limit(rc.GlobalRate), rc.GlobalBurst),
		localUsers:  newKeyedLimiter(rate.Limit(rc.UserRate), rc.UserBurst),
		stats:       map[string]int64{"total": 0, "allowed": 0, "rejected": 0},
	}
	if client != nil {
		l.distributed = cache.NewUserRateLimiter(client, "electrafusion:api", rc.GlobalRate, rc.GlobalBurst, rc.UserRate, rc.UserBurst)
	}

	if rc.Enabled {
		logging.For("handlers", "NewRateLimiter").Infof("限流器已初始化：全局速率=%d/秒，用户速率=%d/秒，分布式=%v",
			rc.GlobalRate, rc.UserRate, rc.Distributed)
	}
	return l
}

func (l *RateLimiter) allow(ctx context.Context, key string) bool {
	if l.distributed != nil {
		allowed, err := l.distributed.AllowUser(ctx, key)
		if err == nil {
			return allowed
		}
		// Redis不可用时退化为进程内限流
		logging.For("handlers", "RateLimiter.allow").WithError(err).Warn("分布式限流失败")
	}
	return l.localGlobal.Allow() && l.localUsers.Allow(key)
}

func (l *RateLimiter) record(allowed bool) {
	l.statsLock.Lock()
	defer l.statsLock.Unlock()
	l.stats["total"]++
	if allowed {
		l.stats["allowed"]++
	} else {
		l.stats["rejected"]++
	}
}

// Middleware 限流中间件
// 已登录用户按用户ID限流，匿名请求按客户端IP限流
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.config.Enabled {
			c.Next()
			return
		}

		key := "ip:" + c.ClientIP()
		if user := currentUser(c); user != nil {
			key = "user:" + user.ID
		}

		allowed := l.allow(c.Request.Context(), key)
		l.record(allowed)
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   codeTooManyRequests,
				"message": "too many requests, please slow down",
			})
			return
		}
		c.Next()
	}
}

// Stats 返回限流统计
func (l *RateLimiter) Stats() RateLimiterStats {
	l.statsLock.Lock()
	defer l.statsLock.Unlock()
	return RateLimiterStats{
		TotalRequests:     l.stats["total"],
		AllowedRequests:   l.stats["allowed"],
		RejectedRequests:  l.stats["rejected"],
		RateLimiterConfig: l.config,
	}
}

// LoginThrottle 限制同一IP的登录和注册尝试次数
type LoginThrottle struct {
	enabled bool
	window  *cache.SlidingWindowRateLimiter
	local   *keyedLimiter
}

const (
	loginAttempts = 10
	loginWindow   = time.Minute
)

func NewLoginThrottle(enabled bool, client *redis.Client) *LoginThrottle {
	t := &LoginThrottle{
		enabled: enabled,
		local:   newKeyedLimiter(rate.Every(loginWindow/loginAttempts), loginAttempts),
	}
	if client != nil {
		t.window = cache.NewSlidingWindowRateLimiter(client, "electrafusion:login", loginWindow, loginAttempts)
	}
	return t
}

func (t *LoginThrottle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.enabled {
			c.Next()
			return
		}

		key := c.ClientIP()
		allowed := false
		if t.window != nil {
			ok, err := t.window.AllowKey(c.Request.Context(), key)
			if err != nil {
				logging.For("handlers", "LoginThrottle").WithError(err).Warn("滑动窗口限流失败")
				allowed = t.local.Allow(key)
			} else {
				allowed = ok
			}
		} else {
			allowed = t.local.Allow(key)
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   codeTooManyRequests,
				"message": "too many sign-in attempts, try again later",
			})
			return
		}
		c.Next()
	}
}
