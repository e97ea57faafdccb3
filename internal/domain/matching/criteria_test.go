package matching

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

func randomPrefs(r *rand.Rand) preference.Preferences {
	return preference.Preferences{
		Languages:    preference.LanguageSet(r.IntN(1 << 6)),
		Availability: preference.Availability(r.IntN(6)),
		Days:         preference.DaySet(r.IntN(1 << 7)),
		Locations:    preference.LocationSet(r.IntN(1 << 4)),
	}
}

func TestCriteriaAreSymmetric(t *testing.T) {
	c := DefaultCriteria()
	r := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 2000; i++ {
		a, b := randomPrefs(r), randomPrefs(r)
		for _, h := range c.Hard {
			assert.Equal(t, h.Check(a, b), h.Check(b, a), "criterion %s not symmetric for %v / %v", h.Name, a, b)
		}
		assert.Equal(t, c.Score(a, b), c.Score(b, a))
		assert.Equal(t, c.Evaluate(a, b), c.Evaluate(b, a))
	}
}

func TestEvaluateReportsFailingCriteria(t *testing.T) {
	c := DefaultCriteria()
	a := preference.Preferences{
		Languages: preference.Languages(preference.English),
		Days:      preference.Weekdays,
		Locations: preference.Locations(preference.Online),
	}
	b := preference.Preferences{
		Languages: preference.Languages(preference.French),
		Days:      preference.Weekend,
		Locations: preference.Locations(preference.Online),
	}

	v := c.Evaluate(a, b)
	assert.False(t, v.Passed)
	assert.Equal(t, []string{CriterionSharedDays, CriterionSharedLanguage}, v.Failed)
	assert.Zero(t, v.Score)
	assert.False(t, c.Compatible(a, b))

	b.Languages = preference.Languages(preference.English, preference.French)
	b.Days = preference.Friday | preference.Saturday
	v = c.Evaluate(a, b)
	assert.True(t, v.Passed)
	assert.Empty(t, v.Failed)
	assert.InDelta(t, 1.0/7, v.Score, 1e-9)
}

func TestScoreIsNormalizedWeightedAverage(t *testing.T) {
	half := func(a, b preference.Preferences) float64 { return 0.5 }
	one := func(a, b preference.Preferences) float64 { return 1 }

	c := Criteria{Soft: []WeightedScorer{
		{Name: "half", Weight: 1, Score: half},
		{Name: "one", Weight: 3, Score: one},
	}}
	assert.InDelta(t, (0.5+3)/4, c.Score(preference.Preferences{}, preference.Preferences{}), 1e-9)

	zero := Criteria{Soft: []WeightedScorer{{Name: "half", Weight: 0, Score: half}}}
	assert.Zero(t, zero.Score(preference.Preferences{}, preference.Preferences{}))
	assert.Zero(t, Criteria{}.Score(preference.Preferences{}, preference.Preferences{}))
}

func TestCriteriaValidate(t *testing.T) {
	require.NoError(t, DefaultCriteria().Validate())

	err := Criteria{Hard: []HardCriterion{{Name: "x"}}}.Validate()
	assert.True(t, shared.IsValidation(err))

	err = Criteria{Soft: []WeightedScorer{{Name: "neg", Weight: -1, Score: DaysInCommon}}}.Validate()
	assert.True(t, shared.IsValidation(err))

	err = Criteria{Hard: []HardCriterion{
		{Name: "dup", Check: SharedDays},
		{Name: "dup", Check: SharedLanguage},
	}}.Validate()
	assert.Error(t, err)
}
