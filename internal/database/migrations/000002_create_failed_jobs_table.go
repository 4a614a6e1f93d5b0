package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/revaspay/loyalty/internal/models"
)

func createFailedJobsTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_failed_jobs_table",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.FailedJob{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&models.FailedJob{})
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createFailedJobsTableMigration())
}
