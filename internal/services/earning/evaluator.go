// Package earning turns business events into point amounts.
package earning

import (
	"fmt"
	"math"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/models"
)

// representationUlps is how far below a whole number a float product may land and
// still count as that number (0.29*100 = 28.999999999999996)
const representationUlps = 2

// maxBaseAmount bounds event amounts so point math stays inside int64
const maxBaseAmount = 1e12

// RuleTable indexes earning rules by action
type RuleTable struct {
	rules map[models.EarningAction]models.EarningRule
}

// NewRuleTable validates rules; each action may have at most one rule
func NewRuleTable(rules []models.EarningRule) (*RuleTable, error) {
	t := &RuleTable{rules: make(map[models.EarningAction]models.EarningRule, len(rules))}
	for _, r := range rules {
		if !r.Action.Valid() {
			return nil, fmt.Errorf("rule %q has unknown action %q", r.ID, r.Action)
		}
		if _, dup := t.rules[r.Action]; dup {
			return nil, fmt.Errorf("action %q has more than one rule", r.Action)
		}
		switch r.Kind {
		case models.RuleFlat:
			if r.Points <= 0 {
				return nil, fmt.Errorf("flat rule %q must award a positive number of points", r.ID)
			}
		case models.RuleRate:
			if r.Rate <= 0 || math.IsNaN(r.Rate) || math.IsInf(r.Rate, 0) {
				return nil, fmt.Errorf("rate rule %q must have a positive finite rate", r.ID)
			}
		default:
			return nil, fmt.Errorf("rule %q has unknown kind %q", r.ID, r.Kind)
		}
		t.rules[r.Action] = r
	}
	return t, nil
}

// Lookup returns the rule for action
func (t *RuleTable) Lookup(action models.EarningAction) (models.EarningRule, error) {
	r, ok := t.rules[action]
	if !ok {
		return models.EarningRule{}, apperrors.Wrap(apperrors.ErrUnknownAction, "no earning rule for action %q", string(action))
	}
	return r, nil
}

// Rules returns all rules
func (t *RuleTable) Rules() []models.EarningRule {
	out := make([]models.EarningRule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	return out
}

// ComputePoints evaluates rule for an event of baseAmount at the given tier.
// Every step rounds down. baseAmount is ignored by flat rules but must still be valid.
func ComputePoints(rule models.EarningRule, baseAmount float64, tr models.Tier) (int64, error) {
	if math.IsNaN(baseAmount) || math.IsInf(baseAmount, 0) || baseAmount < 0 {
		return 0, apperrors.ErrInvalidAmount
	}
	if baseAmount > maxBaseAmount {
		return 0, apperrors.Wrap(apperrors.ErrInvalidAmount, "amount %.2f exceeds the maximum of %.0f", baseAmount, maxBaseAmount)
	}

	var points int64
	switch rule.Kind {
	case models.RuleRate:
		points = floorPoints(baseAmount * rule.Rate)
	case models.RuleFlat:
		points = rule.Points
	default:
		return 0, apperrors.Validation("rule %q has unknown kind %q", rule.ID, rule.Kind)
	}

	if rule.MultiplierApplies {
		points = applyMultiplier(points, tr.Multiplier)
	}
	return points, nil
}

// applyMultiplier returns floor(points × multiplier). Multipliers below 1 count as 1.
func applyMultiplier(points int64, multiplier float64) int64 {
	if multiplier <= 1 {
		return points
	}
	return floorPoints(float64(points) * multiplier)
}

// floorPoints rounds x down. A product that sits within a few ulps under a whole
// number is that number carried through binary rounding, not a fraction below it.
func floorPoints(x float64) int64 {
	nearest := math.Round(x)
	if nearest > x {
		ulp := math.Nextafter(nearest, math.Inf(1)) - nearest
		if nearest-x <= representationUlps*ulp {
			return int64(nearest)
		}
	}
	return int64(math.Floor(x))
}
