package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/models"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return gdb, nil
}

func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.AIAgent{},
		&models.UserAgentPermission{},
		&models.Conversation{},
		&models.Message{},
		&models.Order{},
		&models.PermissionAuditLog{},
		&models.ChatJob{},
	)
}
