package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"electrafusion-backend/logging"
	"electrafusion-backend/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service 管理用户认证和服务端会话
type Service struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewService 创建会话服务
func NewService(db *gorm.DB, ttl time.Duration) *Service {
	return &Service{db: db, ttl: ttl, now: time.Now}
}

// HashPassword 使用bcrypt哈希密码
func HashPassword(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", models.ErrPasswordTooLong
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate 校验邮箱和密码，成功后建立会话并返回令牌
func (s *Service) Authenticate(ctx context.Context, email, secret string) (*models.PublicUser, string, error) {
	log := logging.For("session", "Authenticate")

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("find user: %w", err)
	}
	// 数据库排序规则之外再做一次精确比较
	if user.Email != email {
		return nil, "", models.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)); err != nil {
		log.WithField("user_id", user.ID).Debug("密码校验失败")
		return nil, "", models.ErrInvalidCredentials
	}

	token, err := s.startSession(s.db.WithContext(ctx), user.ID)
	if err != nil {
		return nil, "", err
	}
	log.WithField("user_id", user.ID).Info("用户登录成功")
	return user.Public(), token, nil
}

// Register 注册新用户(普通投票者)并建立会话
func (s *Service) Register(ctx context.Context, email, secret string) (*models.PublicUser, string, error) {
	log := logging.For("session", "Register")

	hash, err := HashPassword(secret)
	if err != nil {
		return nil, "", err
	}
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      false,
		IsVoter:      true,
	}

	var token string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return models.ErrUserAlreadyExists
		}
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return models.ErrUserAlreadyExists
			}
			return err
		}
		t, err := s.startSession(tx, user.ID)
		if err != nil {
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		var domainErr *models.Error
		if errors.As(err, &domainErr) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("register user: %w", err)
	}

	log.WithField("user_id", user.ID).Info("新用户注册成功")
	return user.Public(), token, nil
}

// EndSession 删除会话记录，重复调用无副作用
func (s *Service) EndSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := s.db.WithContext(ctx).Where("token_hash = ?", hashToken(token)).Delete(&models.Session{}).Error
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// CurrentSession 根据令牌查找当前用户，不存在或已过期时返回nil
func (s *Service) CurrentSession(ctx context.Context, token string) (*models.PublicUser, error) {
	if token == "" {
		return nil, nil
	}

	var sess models.Session
	err := s.db.WithContext(ctx).Where("token_hash = ?", hashToken(token)).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if !s.now().Before(sess.ExpiresAt) {
		return nil, nil
	}

	var user models.User
	err = s.db.WithContext(ctx).Where("id = ?", sess.UserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session user: %w", err)
	}
	return user.Public(), nil
}

// PurgeExpired 清理过期会话
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

func (s *Service) startSession(tx *gorm.DB, userID string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	now := s.now()
	sess := models.Session{
		TokenHash: hashToken(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := tx.Create(&sess).Error; err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
