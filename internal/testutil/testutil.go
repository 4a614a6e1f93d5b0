// Package testutil provides in-memory databases and fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/revaspay/loyalty/internal/database/migrations"
	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/services/tier"
)

// NewTestDB opens a private in-memory SQLite database with all migrations applied.
// A single connection serialises writers the way the account row lock does in postgres.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrations.RunMigrations(db))
	return db
}

func ptr(v int64) *int64 {
	return &v
}

// StandardTiers is Bronze 0-4999, Silver 5000-14999, Gold 15000-29999, Platinum 30000+
func StandardTiers() []models.Tier {
	return []models.Tier{
		{Level: "Bronze", MinPoints: 0, MaxPoints: ptr(5000), Multiplier: 1.0},
		{Level: "Silver", MinPoints: 5000, MaxPoints: ptr(15000), Multiplier: 1.25},
		{Level: "Gold", MinPoints: 15000, MaxPoints: ptr(30000), Multiplier: 1.5},
		{Level: "Platinum", MinPoints: 30000, Multiplier: 2.0},
	}
}

// StandardTable returns the tier table built from StandardTiers
func StandardTable(t *testing.T) *tier.Table {
	t.Helper()
	table, err := tier.NewTable(StandardTiers())
	require.NoError(t, err)
	return table
}

// StandardRules mirrors the default program's earning rules
func StandardRules() []models.EarningRule {
	return []models.EarningRule{
		{ID: "purchase", Action: models.ActionPurchase, Kind: models.RuleRate, Rate: 1, MultiplierApplies: true},
		{ID: "review", Action: models.ActionReview, Kind: models.RuleFlat, Points: 50},
		{ID: "signup", Action: models.ActionSignup, Kind: models.RuleFlat, Points: 100},
		{ID: "referral", Action: models.ActionReferral, Kind: models.RuleFlat, Points: 500},
		{ID: "birthday", Action: models.ActionBirthday, Kind: models.RuleFlat, Points: 200, MultiplierApplies: true},
	}
}
