// Package tier derives membership tiers from lifetime points.
package tier

import (
	"fmt"
	"math"

	"github.com/revaspay/loyalty/internal/models"
)

// Table is a validated, ascending tier table
type Table struct {
	tiers []models.Tier
	index map[string]int
}

// Progress describes how far an account is toward the next tier
type Progress struct {
	Current         models.Tier  `json:"current"`
	Next            *models.Tier `json:"next"`
	ProgressPercent float64      `json:"progress_percent"`
	PointsToNext    int64        `json:"points_to_next"`
}

// NewTable validates tiers and returns a resolver over them.
// The table must start at 0, be contiguous, and end with one unbounded tier.
func NewTable(tiers []models.Tier) (*Table, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier table is empty")
	}
	if tiers[0].MinPoints != 0 {
		return nil, fmt.Errorf("first tier %q must start at 0, starts at %d", tiers[0].Level, tiers[0].MinPoints)
	}

	t := &Table{
		tiers: make([]models.Tier, len(tiers)),
		index: make(map[string]int, len(tiers)),
	}
	copy(t.tiers, tiers)

	for i, tr := range t.tiers {
		if tr.Level == "" {
			return nil, fmt.Errorf("tier %d has no level name", i)
		}
		if _, dup := t.index[tr.Level]; dup {
			return nil, fmt.Errorf("tier %q is defined twice", tr.Level)
		}
		t.index[tr.Level] = i

		if tr.Multiplier < 1.0 || math.IsNaN(tr.Multiplier) || math.IsInf(tr.Multiplier, 0) {
			return nil, fmt.Errorf("tier %q multiplier %v must be a finite value >= 1.0", tr.Level, tr.Multiplier)
		}

		last := i == len(t.tiers)-1
		if last {
			if tr.MaxPoints != nil {
				return nil, fmt.Errorf("last tier %q must be unbounded", tr.Level)
			}
			continue
		}
		if tr.MaxPoints == nil {
			return nil, fmt.Errorf("tier %q is unbounded but is not the last tier", tr.Level)
		}
		if *tr.MaxPoints <= tr.MinPoints {
			return nil, fmt.Errorf("tier %q has an empty range [%d, %d)", tr.Level, tr.MinPoints, *tr.MaxPoints)
		}
		if next := t.tiers[i+1]; next.MinPoints != *tr.MaxPoints {
			return nil, fmt.Errorf("tier %q ends at %d but %q starts at %d", tr.Level, *tr.MaxPoints, next.Level, next.MinPoints)
		}
	}

	return t, nil
}

// Resolve returns the tier whose range contains lifetimePoints.
// Negative input resolves to the base tier.
func (t *Table) Resolve(lifetimePoints int64) models.Tier {
	for i := len(t.tiers) - 1; i > 0; i-- {
		if lifetimePoints >= t.tiers[i].MinPoints {
			return t.tiers[i]
		}
	}
	return t.tiers[0]
}

// Base returns the lowest tier
func (t *Table) Base() models.Tier {
	return t.tiers[0]
}

// Index returns the position of level in the table
func (t *Table) Index(level string) (int, bool) {
	i, ok := t.index[level]
	return i, ok
}

// Lookup returns the tier with the given level name
func (t *Table) Lookup(level string) (models.Tier, bool) {
	i, ok := t.index[level]
	if !ok {
		return models.Tier{}, false
	}
	return t.tiers[i], true
}

// Next returns the tier above level, or nil for the top tier
func (t *Table) Next(level string) *models.Tier {
	i, ok := t.index[level]
	if !ok || i == len(t.tiers)-1 {
		return nil
	}
	next := t.tiers[i+1]
	return &next
}

// Tiers returns a copy of the table in ascending order
func (t *Table) Tiers() []models.Tier {
	out := make([]models.Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// Progress computes progress toward the next tier
func (t *Table) Progress(lifetimePoints int64) Progress {
	current := t.Resolve(lifetimePoints)
	next := t.Next(current.Level)
	if next == nil {
		return Progress{Current: current, ProgressPercent: 100}
	}

	span := float64(next.MinPoints - current.MinPoints)
	pct := float64(lifetimePoints-current.MinPoints) / span * 100
	pct = math.Max(0, math.Min(100, pct))

	toNext := next.MinPoints - lifetimePoints
	if toNext < 0 {
		toNext = 0
	}

	return Progress{
		Current:         current,
		Next:            next,
		ProgressPercent: pct,
		PointsToNext:    toNext,
	}
}
