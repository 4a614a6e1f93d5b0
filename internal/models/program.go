package models

// Tier is one row of the static tier table loaded at boot.
// Ranges are half-open: [MinPoints, MaxPoints). A nil MaxPoints is unbounded.
type Tier struct {
	Level      string   `yaml:"level" json:"level"`
	MinPoints  int64    `yaml:"min_points" json:"min_points"`
	MaxPoints  *int64   `yaml:"max_points" json:"max_points"`
	Multiplier float64  `yaml:"multiplier" json:"multiplier"`
	Benefits   []string `yaml:"benefits" json:"benefits"`
	Color      string   `yaml:"color" json:"color,omitempty"`
	Icon       string   `yaml:"icon" json:"icon,omitempty"`
}

// Contains reports whether lifetimePoints falls inside the tier's range
func (t Tier) Contains(lifetimePoints int64) bool {
	if lifetimePoints < t.MinPoints {
		return false
	}
	return t.MaxPoints == nil || lifetimePoints < *t.MaxPoints
}

// EarningAction is a business event that can earn points
type EarningAction string

const (
	ActionPurchase EarningAction = "purchase"
	ActionReview   EarningAction = "review"
	ActionSignup   EarningAction = "signup"
	ActionReferral EarningAction = "referral"
	ActionBirthday EarningAction = "birthday"
)

// Valid reports whether a is a known action
func (a EarningAction) Valid() bool {
	switch a {
	case ActionPurchase, ActionReview, ActionSignup, ActionReferral, ActionBirthday:
		return true
	}
	return false
}

// RuleKind says how an earning rule turns an event into points
type RuleKind string

const (
	// RuleFlat awards a fixed number of points per event
	RuleFlat RuleKind = "flat"
	// RuleRate awards points per currency unit of the event amount
	RuleRate RuleKind = "rate"
)

// EarningRule maps an action to a points formula
type EarningRule struct {
	ID                string        `yaml:"id" json:"id"`
	Action            EarningAction `yaml:"action" json:"action"`
	Kind              RuleKind      `yaml:"kind" json:"kind"`
	Points            int64         `yaml:"points" json:"points,omitempty"`
	Rate              float64       `yaml:"rate" json:"rate,omitempty"`
	MultiplierApplies bool          `yaml:"multiplier_applies" json:"multiplier_applies"`
	Description       string        `yaml:"description" json:"description"`
}
