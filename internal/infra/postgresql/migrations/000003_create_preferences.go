package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/vigilhq/checkin-engine/internal/repository"
	"gorm.io/gorm"
)

func createPreferencesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_preferences",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.PreferenceModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PreferenceModel{})
		},
	}
}
