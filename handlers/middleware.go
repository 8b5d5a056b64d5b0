package handlers

import (
	"strings"
	"time"

	"electrafusion-backend/logging"
	"electrafusion-backend/models"
	"electrafusion-backend/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const currentUserKey = "current_user"

// RequestLogger 使用logrus记录每个请求
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logging.Logger.WithFields(logrus.Fields{
			"status":    c.Writer.Status(),
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("请求失败")
		case c.Writer.Status() >= 400:
			entry.Warn("请求被拒绝")
		default:
			entry.Debug("请求完成")
		}
	}
}

// bearerToken 从Authorization头中提取令牌
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// Authenticate 解析会话令牌，把当前用户放入上下文
// 没有或无效的令牌不会终止请求，由RequireVoter或RequireAdmin决定
func Authenticate(sessions *session.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		user, err := sessions.CurrentSession(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if user != nil {
			c.Set(currentUserKey, user)
		}
		c.Next()
	}
}

// currentUser 当前登录用户，未登录时返回nil
func currentUser(c *gin.Context) *models.PublicUser {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.PublicUser)
	return user
}

// RequireVoter 要求具有投票资格的登录用户
func RequireVoter() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			abortWithError(c, models.ErrUnauthenticated)
			return
		}
		if !user.Role.IsVoter {
			abortWithError(c, models.ErrNotVoter)
			return
		}
		c.Next()
	}
}

// RequireAdmin 要求管理员
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			abortWithError(c, models.ErrUnauthenticated)
			return
		}
		if !user.Role.IsAdmin {
			abortWithError(c, models.ErrForbidden)
			return
		}
		c.Next()
	}
}
