package database

import (
	"context"
	"fmt"
	"time"

	"electrafusion-backend/config"
	"electrafusion-backend/logging"
	"electrafusion-backend/migrations"
	"electrafusion-backend/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewGormLogger 基于logrus构建GORM日志
func NewGormLogger(level logger.LogLevel) logger.Interface {
	return logger.New(
		logging.Logger,
		logger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Open 根据配置连接数据库并执行迁移
func Open(cfg config.Config) (*gorm.DB, error) {
	log := logging.For("database", "Open")

	level := logger.Warn
	if cfg.IsDevelopment() {
		level = logger.Info
	}
	gormCfg := &gorm.Config{
		Logger:         NewGormLogger(level),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "mysql":
		log.WithFields(logrus.Fields{"host": cfg.DBHost, "db": cfg.DBName}).Info("使用MySQL数据库")
		dialector = mysql.Open(cfg.MySQLDSN())
	default:
		log.WithField("path", cfg.SQLitePath).Info("使用SQLite数据库")
		dialector = sqlite.Open(cfg.SQLitePath)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if cfg.DBDriver == "sqlite" {
		// SQLite只允许单写者
		if err := singleConnection(db); err != nil {
			return nil, err
		}
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.ShouldSeed() {
		if err := SeedSampleData(db); err != nil {
			log.WithError(err).Warn("创建示例数据失败")
		}
	}

	log.Info("数据库连接和迁移成功")
	return db, nil
}

// Migrate 自动迁移模型并执行补充迁移
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Poll{},
		&models.PollOption{},
		&models.Ballot{},
	); err != nil {
		return fmt.Errorf("迁移模型失败: %w", err)
	}
	if err := migrations.CaseSensitiveEmail(db); err != nil {
		return fmt.Errorf("迁移邮箱排序规则失败: %w", err)
	}
	return nil
}

func singleConnection(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取数据库连接失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

// Ping 检查数据库连接
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func Close(db *gorm.DB) {
	log := logging.For("database", "Close")
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Error("获取数据库连接失败")
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.WithError(err).Error("关闭数据库连接失败")
		return
	}
	log.Info("数据库连接已关闭")
}
