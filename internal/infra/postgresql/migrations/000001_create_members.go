package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/vigilhq/checkin-engine/internal/repository"
	"gorm.io/gorm"
)

func createMembersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_members",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.MemberModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_members_active ON members (active) WHERE active`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.MemberModel{})
		},
	}
}
