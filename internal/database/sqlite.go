package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/characters"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options controls how the catalog database is opened.
type Options struct {
	Path string
	// Seed inserts the sample characters into an empty catalog.
	Seed bool
	// ImageURL builds the image URL stored with each seeded character.
	ImageURL func(characterName string) string
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(options Options, zapLogger *zap.Logger) (*gorm.DB, error) {
	if options.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(options.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&characters.Character{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, migrationsFor(options), zapLogger); err != nil {
		return nil, err
	}

	if zapLogger != nil {
		zapLogger.Info("database initialized", zap.String("path", options.Path), zap.Bool("seed", options.Seed))
	}

	return db, nil
}
