package migrations

import (
	"electrafusion-backend/logging"

	"gorm.io/gorm"
)

// CaseSensitiveEmail 将users.email改为二进制排序规则
// MySQL默认排序规则不区分大小写，会让唯一索引把 A@x.com 和 a@x.com 视为同一邮箱
func CaseSensitiveEmail(db *gorm.DB) error {
	log := logging.For("migrations", "CaseSensitiveEmail")

	if db.Dialector.Name() != "mysql" {
		return nil
	}
	if !db.Migrator().HasColumn(&User{}, "email") {
		log.Warn("迁移跳过: email字段不存在")
		return nil
	}

	var collation string
	err := db.Raw(`SELECT COLLATION_NAME FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = 'users' AND COLUMN_NAME = 'email'`).Scan(&collation).Error
	if err != nil {
		return err
	}
	if collation == "utf8mb4_bin" {
		log.Debug("迁移跳过: email已区分大小写")
		return nil
	}

	if err := db.Exec("ALTER TABLE users MODIFY email VARCHAR(191) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL").Error; err != nil {
		log.WithError(err).Error("迁移失败")
		return err
	}
	log.Info("迁移成功: email已改为utf8mb4_bin")
	return nil
}

// 定义一个简单的User结构体，仅用于检查字段
type User struct {
	Email string
}

func (User) TableName() string {
	return "users"
}
