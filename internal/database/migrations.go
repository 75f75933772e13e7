package database

import (
	"errors"
	"time"

	"github.com/confdesk/backend/internal/conferences"
	"github.com/confdesk/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	migrationSeedDefaultCategory = "2025-01-10_seed_default_category"
	migrationSeedDefaultRoles    = "2025-01-10_seed_default_roles"

	defaultCategoryName = "General"
)

var defaultRoleNames = []string{"Chairperson", "Secretary", "Participant"}

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
		{name: migrationSeedDefaultCategory, apply: seedDefaultCategory},
		{name: migrationSeedDefaultRoles, apply: seedDefaultRoles},
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

// Conferences created without categories link to the default category, so it must exist.
func seedDefaultCategory(db *gorm.DB) error {
	category := conferences.CategoryRecord{ID: conferences.DefaultCategoryID, Name: defaultCategoryName}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&category).Error
}

func seedDefaultRoles(db *gorm.DB) error {
	for index, name := range defaultRoleNames {
		role := users.Role{ID: int64(index + 1), Name: name}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&role).Error; err != nil {
			return err
		}
	}
	return nil
}
