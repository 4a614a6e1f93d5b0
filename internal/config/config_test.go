package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/secrets"
)

func TestLoadDefaults(t *testing.T) {
	cfg := loadFrom(secrets.EnvSource{})

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.True(t, cfg.Queue.Enabled)
	assert.Equal(t, time.Hour, cfg.Loyalty.ExpirySweepInterval)
	assert.Equal(t, 0, cfg.Loyalty.ExpiryDays)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("QUEUE_WORKERS", "8")
	t.Setenv("QUEUE_ENABLED", "false")
	t.Setenv("POINTS_EXPIRY_DAYS", "365")
	t.Setenv("POINTS_EXPIRY_SWEEP_INTERVAL", "15m")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example.com, https://admin.example.com,")
	t.Setenv("WEBHOOK_SECRET", "hook")
	t.Setenv("ENVIRONMENT", "production")

	cfg := loadFrom(secrets.EnvSource{})

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.False(t, cfg.Queue.Enabled)
	assert.Equal(t, 365, cfg.Loyalty.ExpiryDays)
	assert.Equal(t, 15*time.Minute, cfg.Loyalty.ExpirySweepInterval)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "hook", cfg.Webhook.Secret)
	assert.True(t, cfg.IsProduction())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("QUEUE_WORKERS", "many")
	t.Setenv("QUEUE_ENABLED", "sometimes")
	t.Setenv("POINTS_EXPIRY_SWEEP_INTERVAL", "hourly")

	cfg := loadFrom(secrets.EnvSource{})

	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.True(t, cfg.Queue.Enabled)
	assert.Equal(t, time.Hour, cfg.Loyalty.ExpirySweepInterval)
}

func TestLoadEmbeddedProgram(t *testing.T) {
	program, err := LoadProgram("")
	require.NoError(t, err)

	require.Len(t, program.Tiers, 4)
	assert.Equal(t, "Bronze", program.Tiers[0].Level)
	assert.Equal(t, int64(0), program.Tiers[0].MinPoints)
	require.NotNil(t, program.Tiers[0].MaxPoints)
	assert.Equal(t, int64(5000), *program.Tiers[0].MaxPoints)
	assert.Equal(t, "Platinum", program.Tiers[3].Level)
	assert.Nil(t, program.Tiers[3].MaxPoints)
	assert.Equal(t, 1.5, program.Tiers[2].Multiplier)

	actions := make(map[models.EarningAction]models.EarningRule)
	for _, rule := range program.EarningRules {
		actions[rule.Action] = rule
	}
	assert.Equal(t, models.RuleRate, actions[models.ActionPurchase].Kind)
	assert.True(t, actions[models.ActionPurchase].MultiplierApplies)
	assert.Equal(t, int64(500), program.ReferralBonus(0))
	assert.Equal(t, int64(750), program.ReferralBonus(750))
}

func TestLoadProgramFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.yaml")
	doc := `
tiers:
  - level: Member
    min_points: 0
    multiplier: 1
earning_rules:
  - id: signup
    action: signup
    kind: flat
    points: 10
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	program, err := LoadProgram(path)
	require.NoError(t, err)
	assert.Len(t, program.Tiers, 1)
	assert.Equal(t, int64(0), program.ReferralBonus(0))

	_, err = LoadProgram(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseProgramRejectsBadDocuments(t *testing.T) {
	_, err := ParseProgram([]byte("tiers: []\nearning_rules: []\n"))
	assert.Error(t, err)

	_, err = ParseProgram([]byte("tiers:\n  - level: A\n    min_points: 0\n    multiplier: 1\n    colour: red\nearning_rules: []\n"))
	assert.Error(t, err)

	_, err = ParseProgram([]byte("tiers:\n  - level: A\n    min_points: 0\n    multiplier: 1\n"))
	assert.Error(t, err)
}
