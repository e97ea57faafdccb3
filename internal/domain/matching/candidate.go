package matching

import (
	"time"

	"github.com/studyhub/groupmatch/internal/domain/preference"
)

// Kind distinguishes the two queue entry variants.
type Kind string

const (
	// KindIndividual is a single person's ticket.
	KindIndividual Kind = "individual"
	// KindGroup is a partially filled group asking for more members.
	KindGroup Kind = "group"
)

// Candidate is the uniform view of a queue entry that the matcher works on.
type Candidate interface {
	// ID is the stable queue entry identifier used for dedup and exclusion.
	ID() string
	Kind() Kind
	// Preferences is the snapshot captured at enqueue time.
	Preferences() preference.Preferences
	QueuedAt() time.Time
	// Occupancy is the number of seats the candidate already fills.
	Occupancy() int
	// Members are the user identities carried by the candidate.
	Members() []string
}

// WaitTime returns how long c has been queued at now.
func WaitTime(c Candidate, now time.Time) time.Duration {
	d := now.Sub(c.QueuedAt())
	if d < 0 {
		return 0
	}
	return d
}

// sharesMember reports whether a and b carry a common identity.
func sharesMember(a, b Candidate) bool {
	am := a.Members()
	if len(am) == 0 {
		return false
	}
	for _, x := range b.Members() {
		for _, y := range am {
			if x == y {
				return true
			}
		}
	}
	return false
}
