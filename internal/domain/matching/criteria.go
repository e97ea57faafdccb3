// Package matching contains the pure matchmaking core: pairwise hard criteria,
// weighted soft scoring and the combinatorial subset search built on them.
//
// Nothing in this package touches storage or clocks. Every function is
// deterministic for a given Criteria value and input order.
package matching

import (
	"fmt"

	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CRITERIA
// ══════════════════════════════════════════════════════════════════════════════

// CheckFunc is a symmetric boolean predicate over two preference snapshots.
type CheckFunc func(a, b preference.Preferences) bool

// ScoreFunc is a symmetric scorer returning a value in [0, 1].
type ScoreFunc func(a, b preference.Preferences) float64

// HardCriterion must pass for a pair to be compatible.
type HardCriterion struct {
	Name  string
	Check CheckFunc
}

// WeightedScorer is one term of the soft preference score.
type WeightedScorer struct {
	Name   string
	Weight float64
	Score  ScoreFunc
}

// Criteria is the full configuration used to compare two candidates. It is
// passed explicitly to NewMatcher; there is no package-level default state.
type Criteria struct {
	Hard []HardCriterion
	Soft []WeightedScorer
}

// Criterion names used by DefaultCriteria.
const (
	CriterionSharedDays     = "shared_days"
	CriterionSharedLanguage = "shared_language"
	CriterionSharedLocation = "shared_location"
	ScorerDaysInCommon      = "days_in_common"
)

// SharedDays passes when the two day sets overlap.
func SharedDays(a, b preference.Preferences) bool {
	return a.Days.Overlap(b.Days) > 0
}

// SharedLanguage passes when the two language sets intersect.
func SharedLanguage(a, b preference.Preferences) bool {
	return !a.Languages.Intersect(b.Languages).IsEmpty()
}

// SharedLocation passes when the two study-location sets intersect.
func SharedLocation(a, b preference.Preferences) bool {
	return !a.Locations.Intersect(b.Locations).IsEmpty()
}

// DaysInCommon is the fraction of the week both sides are available.
func DaysInCommon(a, b preference.Preferences) float64 {
	return float64(a.Days.Overlap(b.Days)) / preference.DaysInWeek
}

// DefaultCriteria returns the production criteria set.
func DefaultCriteria() Criteria {
	return Criteria{
		Hard: []HardCriterion{
			{Name: CriterionSharedDays, Check: SharedDays},
			{Name: CriterionSharedLanguage, Check: SharedLanguage},
			{Name: CriterionSharedLocation, Check: SharedLocation},
		},
		Soft: []WeightedScorer{
			{Name: ScorerDaysInCommon, Weight: 1.0, Score: DaysInCommon},
		},
	}
}

// Validate rejects criteria that cannot be evaluated.
func (c Criteria) Validate() error {
	seen := make(map[string]struct{}, len(c.Hard)+len(c.Soft))
	for i, h := range c.Hard {
		if h.Check == nil {
			return shared.WrapError("matching", "Validate", shared.ErrValidation,
				"invalid criteria configuration", fmt.Errorf("hard criterion %d (%q) has no check", i, h.Name))
		}
		if _, dup := seen[h.Name]; dup {
			return shared.WrapError("matching", "Validate", shared.ErrValidation,
				"invalid criteria configuration", fmt.Errorf("duplicate criterion name %q", h.Name))
		}
		seen[h.Name] = struct{}{}
	}
	for i, s := range c.Soft {
		if s.Score == nil {
			return shared.WrapError("matching", "Validate", shared.ErrValidation,
				"invalid criteria configuration", fmt.Errorf("scorer %d (%q) has no score func", i, s.Name))
		}
		if s.Weight < 0 {
			return shared.WrapError("matching", "Validate", shared.ErrValidation,
				"invalid criteria configuration", fmt.Errorf("scorer %q has negative weight", s.Name))
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// Verdict is the diagnostic result of comparing two snapshots.
type Verdict struct {
	Passed bool
	// Failed lists the names of failing hard criteria in configuration order.
	Failed []string
	Score  float64
}

// Compatible reports whether every hard criterion passes. It stops at the
// first failure.
func (c Criteria) Compatible(a, b preference.Preferences) bool {
	for _, h := range c.Hard {
		if !h.Check(a, b) {
			return false
		}
	}
	return true
}

// Score returns the normalized soft score Σ(w·s)/Σw, or 0 when the total
// weight is zero.
func (c Criteria) Score(a, b preference.Preferences) float64 {
	var sum, total float64
	for _, s := range c.Soft {
		if s.Weight == 0 {
			continue
		}
		sum += s.Weight * s.Score(a, b)
		total += s.Weight
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// Evaluate runs every hard criterion (no short-circuit) and the soft score.
func (c Criteria) Evaluate(a, b preference.Preferences) Verdict {
	v := Verdict{Passed: true}
	for _, h := range c.Hard {
		if !h.Check(a, b) {
			v.Passed = false
			v.Failed = append(v.Failed, h.Name)
		}
	}
	v.Score = c.Score(a, b)
	return v
}
