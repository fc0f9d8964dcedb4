package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/history"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/sharing"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const foreignKeysPragma = "_pragma=foreign_keys(1)"

// OpenSQLite establishes a SQLite connection with foreign keys enforced and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(withForeignKeys(path)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&users.User{},
		&notes.Note{},
		&history.ChatHistory{},
		&sharing.ShareLink{},
		&sharing.ShareMember{},
		&sharing.ShareInvite{},
		&migrationRecord{},
	)
}

// withForeignKeys appends the foreign key pragma so every pooled connection enforces cascades.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + foreignKeysPragma
}
