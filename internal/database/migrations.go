package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/characters"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationSeedCharacters = "2025-06-01_seed_characters"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

type seedCharacter struct {
	name           string
	race           string
	planet         string
	transformation string
	technique      string
}

var sampleCharacters = []seedCharacter{
	{name: "Goku", race: "Saiyan", planet: "Earth", transformation: "Ultra Instinct", technique: "Kamehameha"},
	{name: "Vegeta", race: "Saiyan", planet: "Vegeta", transformation: "Super Saiyan Blue Evolution", technique: "Final Flash"},
	{name: "Piccolo", race: "Namekian", planet: "Namek", transformation: "Orange Piccolo", technique: "Special Beam Cannon"},
	{name: "Gohan", race: "Half-Saiyan", planet: "Earth", transformation: "Beast", technique: "Masenko"},
	{name: "Frieza", race: "Frost Demon", planet: "Unknown", transformation: "Black Frieza", technique: "Death Ball"},
}

func migrationsFor(options Options) []migrationDefinition {
	var migrations []migrationDefinition
	if options.Seed {
		migrations = append(migrations, migrationDefinition{
			name: migrationSeedCharacters,
			apply: func(db *gorm.DB) error {
				return seedCharacters(db, options.ImageURL)
			},
		})
	}
	return migrations
}

func applyMigrations(db *gorm.DB, migrations []migrationDefinition, logger *zap.Logger) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// seedCharacters populates an empty catalog with fixed identifiers 1..n.
func seedCharacters(db *gorm.DB, imageURL func(string) string) error {
	var count int64
	if err := db.Model(&characters.Character{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	records := make([]characters.Character, 0, len(sampleCharacters))
	for index, sample := range sampleCharacters {
		record := characters.Character{
			ID:             int64(index + 1),
			Name:           sample.name,
			Race:           sample.race,
			Planet:         sample.planet,
			Transformation: sample.transformation,
			Technique:      sample.technique,
		}
		if imageURL != nil {
			url := imageURL(sample.name)
			record.ImageURL = &url
		}
		records = append(records, record)
	}
	return db.Create(&records).Error
}
