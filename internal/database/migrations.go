package database

import (
	"errors"
	"time"

	"github.com/MannyG3/Kettle/internal/posts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationSeedDefaultKettles = "2026-08-20_seed_default_kettles"

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

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedDefaultKettles, apply: seedDefaultKettles},
	}

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

// seedDefaultKettles creates the starter kettle directory on a fresh database.
func seedDefaultKettles(db *gorm.DB) error {
	defaults := []posts.Kettle{
		{KettleID: "kettle-campus", Slug: "campus-tea", Name: "Campus Tea", Description: "Lecture hall drama and dorm gossip.", Icon: "🏫"},
		{KettleID: "kettle-office", Slug: "office-tea", Name: "Office Tea", Description: "Anonymous workplace chatter.", Icon: "💼"},
		{KettleID: "kettle-group-chat", Slug: "group-chat-tea", Name: "Group Chat Tea", Description: "Screenshots stay, names go.", Icon: "💬"},
		{KettleID: "kettle-dating", Slug: "dating-tea", Name: "Dating Tea", Description: "Situationships and red flags.", Icon: "💔"},
		{KettleID: "kettle-internet", Slug: "internet-tea", Name: "Internet Tea", Description: "Whatever the timeline is boiling over.", Icon: "🌐"},
	}

	now := time.Now().UTC().Unix()
	for index := range defaults {
		defaults[index].IsActive = true
		defaults[index].CreatedAtSeconds = now + int64(index)
		var existing posts.Kettle
		err := db.Where("slug = ?", defaults[index].Slug).Take(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Create(&defaults[index]).Error; err != nil {
			return err
		}
	}
	return nil
}
