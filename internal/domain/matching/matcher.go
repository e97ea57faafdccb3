package matching

import (
	"math"
	"sort"
)

// DefaultMaxSubsets bounds how many complete subsets a single Match call
// scores.
const DefaultMaxSubsets = 1_000_000

// Matcher selects a compatible, best-scoring subset of candidates around a
// seed. A Matcher is safe for concurrent use.
type Matcher struct {
	criteria   Criteria
	maxSubsets int
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMaxSubsets caps the number of scored subsets per call. Zero or a
// negative value removes the cap.
func WithMaxSubsets(n int) Option {
	return func(m *Matcher) {
		m.maxSubsets = n
	}
}

// NewMatcher creates a Matcher over the given criteria.
func NewMatcher(criteria Criteria, opts ...Option) (*Matcher, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}
	m := &Matcher{criteria: criteria, maxSubsets: DefaultMaxSubsets}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Criteria returns the configuration the matcher was built with.
func (m *Matcher) Criteria() Criteria {
	return m.criteria
}

// Result is the detailed outcome of a match attempt.
type Result struct {
	// Members is the chosen subset, or nil when no valid subset exists.
	Members []Candidate
	// Score is the average seed-to-member soft score of Members.
	Score float64
	// Eligible is the number of pool candidates that passed the seed filter.
	Eligible int
	// Evaluated is the number of pairwise-compatible subsets scored.
	Evaluated int
	// SearchSpace is C(Eligible, target), saturated at the subset cap.
	SearchSpace int
	// Truncated is set when the subset cap stopped the search early.
	Truncated bool
}

// Found reports whether a subset was selected.
func (r Result) Found() bool {
	return len(r.Members) > 0
}

// Match returns the best subset of exactly target candidates from pool that
// is compatible with seed and pairwise compatible among itself. It returns an
// empty slice when no such subset exists; a partial group is never returned.
func (m *Matcher) Match(seed Candidate, pool []Candidate, target int) []Candidate {
	return m.MatchDetailed(seed, pool, target).Members
}

// MatchDetailed is Match with search statistics.
//
// The pool is stably ordered by QueuedAt before enumeration. Subsets are
// visited in lexicographic index order and the highest average score wins;
// on a tie the earlier subset is kept, which favours longer-waiting
// candidates.
func (m *Matcher) MatchDetailed(seed Candidate, pool []Candidate, target int) Result {
	if target <= 0 || seed == nil {
		return Result{}
	}

	seedPrefs := seed.Preferences()
	eligible := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		if c == nil || c.ID() == seed.ID() || sharesMember(seed, c) {
			continue
		}
		if !m.criteria.Compatible(seedPrefs, c.Preferences()) {
			continue
		}
		eligible = append(eligible, c)
	}
	res := Result{Eligible: len(eligible)}
	if len(eligible) < target {
		return res
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].QueuedAt().Before(eligible[j].QueuedAt())
	})

	n := len(eligible)
	limit := m.maxSubsets
	if limit <= 0 {
		limit = math.MaxInt32
	}
	res.SearchSpace = countCombinations(n, target, limit)
	prefs := make([]preferenceView, n)
	for i, c := range eligible {
		prefs[i] = preferenceView{c: c, score: m.criteria.Score(seedPrefs, c.Preferences())}
	}

	// compat[i*n+j]: 0 unknown, 1 compatible, 2 incompatible
	compat := make([]uint8, n*n)
	compatible := func(i, j int) bool {
		k := i*n + j
		switch compat[k] {
		case 1:
			return true
		case 2:
			return false
		}
		ok := !sharesMember(prefs[i].c, prefs[j].c) &&
			m.criteria.Compatible(prefs[i].c.Preferences(), prefs[j].c.Preferences())
		v := uint8(2)
		if ok {
			v = 1
		}
		compat[k] = v
		compat[j*n+i] = v
		return ok
	}

	best := make([]int, 0, target)
	bestScore := -1.0
	gen := combinations{
		n: n,
		k: target,
		accept: func(prefix []int, next int) bool {
			for _, p := range prefix {
				if !compatible(p, next) {
					return false
				}
			}
			return true
		},
		visit: func(idx []int) bool {
			var sum float64
			for _, i := range idx {
				sum += prefs[i].score
			}
			score := sum / float64(len(idx))
			res.Evaluated++
			if score > bestScore {
				bestScore = score
				best = append(best[:0], idx...)
			}
			if m.maxSubsets > 0 && res.Evaluated >= m.maxSubsets {
				res.Truncated = true
				return false
			}
			return true
		},
	}
	gen.run()

	if len(best) != target {
		return res
	}
	res.Members = make([]Candidate, target)
	for i, idx := range best {
		res.Members[i] = prefs[idx].c
	}
	res.Score = bestScore
	return res
}

type preferenceView struct {
	c     Candidate
	score float64
}
