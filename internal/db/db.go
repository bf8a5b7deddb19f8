package db

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mail-code-service/internal/config"
	"mail-code-service/internal/model"
)

// Init opens the audit database and runs migrations
func Init(cfg config.AuditConfig) (*gorm.DB, error) {
	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, err
	}

	logrus.Info("Audit database initialized successfully")
	return db, nil
}

func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.AuditEvent{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}
