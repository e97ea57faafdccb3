package matching

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/groupmatch/internal/domain/preference"
)

type stubCandidate struct {
	id       string
	kind     Kind
	prefs    preference.Preferences
	queuedAt time.Time
	members  []string
}

func (s stubCandidate) ID() string                          { return s.id }
func (s stubCandidate) Kind() Kind                          { return s.kind }
func (s stubCandidate) Preferences() preference.Preferences { return s.prefs }
func (s stubCandidate) QueuedAt() time.Time                 { return s.queuedAt }
func (s stubCandidate) Occupancy() int                      { return len(s.members) }
func (s stubCandidate) Members() []string                   { return s.members }

var t0 = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

func person(id string, days preference.DaySet, queuedAfter time.Duration) stubCandidate {
	return stubCandidate{
		id:   id,
		kind: KindIndividual,
		prefs: preference.Preferences{
			Languages:    preference.Languages(preference.English),
			Availability: preference.Evening,
			Days:         days,
			Locations:    preference.Locations(preference.Online),
		},
		queuedAt: t0.Add(queuedAfter),
		members:  []string{"user-" + id},
	}
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID()
	}
	return out
}

func newDefaultMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := NewMatcher(DefaultCriteria())
	require.NoError(t, err)
	return m
}

func TestMatchPicksHigherDaysOverlap(t *testing.T) {
	m := newDefaultMatcher(t)
	seed := person("seed", preference.Weekdays, 0)
	a := person("a", preference.Monday|preference.Tuesday, time.Minute)
	b := person("b", preference.Wednesday, 2*time.Minute)

	got := m.Match(seed, []Candidate{b, a}, 1)
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestMatchReturnsEmptyWhenNotEnoughCompatibleCandidates(t *testing.T) {
	m := newDefaultMatcher(t)
	seed := person("seed", preference.Weekdays, 0)
	only := person("only", preference.Monday, time.Minute)

	res := m.MatchDetailed(seed, []Candidate{seed, only}, 2)
	assert.Empty(t, res.Members)
	assert.False(t, res.Found())
	assert.Equal(t, 1, res.Eligible)
}

func TestMatchTargetZeroAndEmptyPool(t *testing.T) {
	m := newDefaultMatcher(t)
	seed := person("seed", preference.Weekdays, 0)

	assert.Empty(t, m.Match(seed, []Candidate{person("a", preference.Monday, 0)}, 0))
	assert.Empty(t, m.Match(seed, nil, 1))
	assert.Empty(t, m.Match(nil, []Candidate{seed}, 1))
}

func TestMatchHardCriteriaVeto(t *testing.T) {
	m := newDefaultMatcher(t)
	seed := person("seed", preference.Weekdays, 0)

	weekendOnly := person("weekend", preference.Weekend, 0)
	french := person("french", preference.AllDays, 0)
	french.prefs.Languages = preference.Languages(preference.French)
	inPerson := person("inperson", preference.AllDays, 0)
	inPerson.prefs.Locations = preference.Locations(preference.InPerson)
	ok1 := person("ok1", preference.Monday|preference.Tuesday, time.Minute)
	ok2 := person("ok2", preference.Tuesday, 2*time.Minute)

	got := m.Match(seed, []Candidate{weekendOnly, french, inPerson, ok1, ok2}, 2)
	assert.Equal(t, []string{"ok1", "ok2"}, ids(got))
}

func TestMatchRejectsSubsetsWithIncompatiblePairs(t *testing.T) {
	m := newDefaultMatcher(t)
	seed := person("seed", preference.AllDays, 0)

	// mon and sat both fit the seed but not each other
	mon := person("mon", preference.Monday, 0)
	sat := person("sat", preference.Saturday, time.Minute)
	monSat := person("monsat", preference.Monday|preference.Saturday, 2*time.Minute)

	got := m.Match(seed, []Candidate{mon, sat, monSat}, 2)
	require.Len(t, got, 2)
	assert.Contains(t, ids(got), "monsat")

	none := m.Match(seed, []Candidate{mon, sat}, 2)
	assert.Empty(t, none)
}

func TestMatchTieGoesToLongerWaiting(t *testing.T) {
	m := newDefaultMatcher(t)
	seed := person("seed", preference.Weekdays, 0)
	newer := person("newer", preference.Monday, 5*time.Minute)
	older := person("older", preference.Tuesday, time.Minute)

	got := m.Match(seed, []Candidate{newer, older}, 1)
	assert.Equal(t, []string{"older"}, ids(got))
}

func TestMatchExcludesSeedAndSharedMembers(t *testing.T) {
	m := newDefaultMatcher(t)
	seed := stubCandidate{
		id:       "group-seed",
		kind:     KindGroup,
		prefs:    person("x", preference.Weekdays, 0).prefs,
		queuedAt: t0,
		members:  []string{"user-a", "user-b"},
	}
	dupOfMember := person("a", preference.Weekdays, 0) // carries user-a
	fresh := person("c", preference.Monday, time.Minute)

	got := m.Match(seed, []Candidate{seed, dupOfMember, fresh}, 1)
	assert.Equal(t, []string{"c"}, ids(got))
}

func TestMatchNeverExceedsTarget(t *testing.T) {
	m := newDefaultMatcher(t)
	r := rand.New(rand.NewPCG(3, 5))

	for round := 0; round < 200; round++ {
		seed := person("seed", preference.DaySet(r.IntN(127)+1), 0)
		size := r.IntN(9)
		pool := make([]Candidate, 0, size)
		for i := 0; i < size; i++ {
			pool = append(pool, person(fmt.Sprintf("c%d", i), preference.DaySet(r.IntN(128)), time.Duration(i)*time.Second))
		}
		target := r.IntN(5)
		got := m.Match(seed, pool, target)
		if len(got) != 0 {
			assert.Len(t, got, target)
		}
		for _, c := range got {
			assert.True(t, DefaultCriteria().Compatible(seed.Preferences(), c.Preferences()))
		}
	}
}

func TestMatchSubsetCap(t *testing.T) {
	m, err := NewMatcher(DefaultCriteria(), WithMaxSubsets(3))
	require.NoError(t, err)

	seed := person("seed", preference.AllDays, 0)
	pool := make([]Candidate, 0, 6)
	for i := 0; i < 6; i++ {
		pool = append(pool, person(fmt.Sprintf("c%d", i), preference.AllDays, time.Duration(i)*time.Second))
	}

	res := m.MatchDetailed(seed, pool, 2)
	assert.True(t, res.Truncated)
	assert.Equal(t, 3, res.Evaluated)
	assert.Equal(t, []string{"c0", "c1"}, ids(res.Members))
	assert.InDelta(t, 1.0, res.Score, 1e-9)
}

func TestNewMatcherRejectsInvalidCriteria(t *testing.T) {
	_, err := NewMatcher(Criteria{Hard: []HardCriterion{{Name: "broken"}}})
	assert.Error(t, err)
}

func TestCombinationsEnumeratesLexicographically(t *testing.T) {
	var got [][]int
	gen := combinations{n: 4, k: 2, visit: func(idx []int) bool {
		got = append(got, append([]int(nil), idx...))
		return true
	}}
	gen.run()
	assert.Equal(t, [][]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}, got)
	assert.Equal(t, 6, countCombinations(4, 2, 0))
	assert.Equal(t, 10, countCombinations(100, 3, 10))
	assert.Zero(t, countCombinations(2, 3, 0))
}

func TestCombinationsPruning(t *testing.T) {
	var got [][]int
	gen := combinations{
		n: 4, k: 2,
		accept: func(prefix []int, next int) bool { return next != 1 },
		visit: func(idx []int) bool {
			got = append(got, append([]int(nil), idx...))
			return true
		},
	}
	gen.run()
	assert.Equal(t, [][]int{{0, 2}, {0, 3}, {2, 3}}, got)
}

func TestWaitTime(t *testing.T) {
	c := person("a", preference.Monday, 0)
	assert.Equal(t, time.Hour, WaitTime(c, t0.Add(time.Hour)))
	assert.Zero(t, WaitTime(c, t0.Add(-time.Hour)))
}
