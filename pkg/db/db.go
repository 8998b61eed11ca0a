package db

import (
	"fmt"
	"log"

	"go-direct-chat/internal/model"
	"go-direct-chat/pkg/config"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB opens the configured MySQL database and migrates the schema.
func InitDB() error {
	dsn := config.GlobalConfig.Database.DSN

	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	err = DB.AutoMigrate(&model.User{}, &model.Message{})
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("Database connected and migrated successfully")
	return nil
}
