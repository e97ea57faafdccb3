package matchmaking

import (
	"time"
)

// Outcome classifies one course batch.
type Outcome string

const (
	// OutcomeSkipped means fewer than two queue entries were eligible.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeLocked means another worker holds the course lock.
	OutcomeLocked Outcome = "locked"
	// OutcomeInsufficient means no compatible group of the required size
	// exists yet. Nothing was written.
	OutcomeInsufficient Outcome = "insufficient"
	// OutcomeFormed means a group was created or grown.
	OutcomeFormed Outcome = "formed"
	// OutcomeAbandoned means the batch hit a stale read or a conflict and
	// was rolled back; the next run retries.
	OutcomeAbandoned Outcome = "abandoned"
	// OutcomeFailed means an unexpected error or panic rolled the batch back.
	OutcomeFailed Outcome = "failed"
)

// CourseOutcome is the result of RunCourse.
type CourseOutcome struct {
	CourseID string
	Outcome  Outcome

	// Set when Outcome is OutcomeFormed.
	GroupID  string
	SeedID   string
	Members  []string
	Score    float64
	Complete bool

	// Set when Outcome is OutcomeAbandoned or OutcomeFailed.
	Err error

	Duration time.Duration
}

// RunReport summarises one RunAll pass.
type RunReport struct {
	StartedAt    time.Time
	Duration     time.Duration
	Courses      []CourseOutcome
	GroupsFormed int
	Failures     int
	// Cancelled is set when the context ended before every course ran.
	Cancelled bool
}

func (r *RunReport) add(o CourseOutcome) {
	r.Courses = append(r.Courses, o)
	switch o.Outcome {
	case OutcomeFormed:
		r.GroupsFormed++
	case OutcomeFailed, OutcomeAbandoned:
		r.Failures++
	}
}

// Count returns how many courses ended with the given outcome.
func (r RunReport) Count(o Outcome) int {
	n := 0
	for _, c := range r.Courses {
		if c.Outcome == o {
			n++
		}
	}
	return n
}
