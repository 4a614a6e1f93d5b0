package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/revaspay/loyalty/internal/models"
)

//go:embed program.yaml
var defaultProgram []byte

// Program is the static tier table and earning rule table
type Program struct {
	Tiers        []models.Tier        `yaml:"tiers"`
	EarningRules []models.EarningRule `yaml:"earning_rules"`
}

// LoadProgram reads the program file at path, or the embedded default when path is empty
func LoadProgram(path string) (*Program, error) {
	data := defaultProgram
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read program file: %w", err)
		}
	}
	return ParseProgram(data)
}

// ParseProgram decodes a program document. Unknown fields are rejected.
func ParseProgram(data []byte) (*Program, error) {
	var program Program
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&program); err != nil {
		return nil, fmt.Errorf("failed to parse program file: %w", err)
	}
	if len(program.Tiers) == 0 {
		return nil, fmt.Errorf("program file defines no tiers")
	}
	if len(program.EarningRules) == 0 {
		return nil, fmt.Errorf("program file defines no earning rules")
	}
	return &program, nil
}

// ReferralBonus returns the referral payout: override when positive, else the referral rule's points
func (p *Program) ReferralBonus(override int64) int64 {
	if override > 0 {
		return override
	}
	for _, rule := range p.EarningRules {
		if rule.Action == models.ActionReferral && rule.Kind == models.RuleFlat {
			return rule.Points
		}
	}
	return 0
}
