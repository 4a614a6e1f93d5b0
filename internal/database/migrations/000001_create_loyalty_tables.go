package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/revaspay/loyalty/internal/models"
)

// The tables are created from the models so the same migration runs on
// postgres in production and sqlite in tests.
func createLoyaltyTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_loyalty_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Account{},
				&models.Transaction{},
				&models.Reward{},
				&models.Redemption{},
				&models.Referral{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&models.Referral{},
				&models.Redemption{},
				&models.Reward{},
				&models.Transaction{},
				&models.Account{},
			)
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createLoyaltyTablesMigration())
}
