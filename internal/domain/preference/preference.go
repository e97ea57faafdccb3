// Package preference defines the immutable preference snapshot attached to
// every queue entry and group.
//
// All sets are bitsets so that overlap checks used by the matcher are a single
// AND plus a popcount. A Preferences value is copied, never shared by pointer:
// once a ticket captures one, later edits to the user profile cannot reach it.
package preference

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Languages
// ═══════════════════════════════════════════════════════════════════════════

// Language is a single language tag.
type Language uint16

// Supported languages.
const (
	English Language = 1 << iota
	French
	Spanish
	Mandarin
	Arabic
	Portuguese
)

var languageNames = map[Language]string{
	English:    "english",
	French:     "french",
	Spanish:    "spanish",
	Mandarin:   "mandarin",
	Arabic:     "arabic",
	Portuguese: "portuguese",
}

// LanguageSet is a set of languages.
type LanguageSet uint16

const allLanguages = LanguageSet(English | French | Spanish | Mandarin | Arabic | Portuguese)

// Languages builds a set from individual tags.
func Languages(ls ...Language) LanguageSet {
	var s LanguageSet
	for _, l := range ls {
		s |= LanguageSet(l)
	}
	return s
}

// Intersect returns the languages present in both sets.
func (s LanguageSet) Intersect(o LanguageSet) LanguageSet { return s & o }

// Contains reports whether l is in the set.
func (s LanguageSet) Contains(l Language) bool { return s&LanguageSet(l) != 0 }

// IsEmpty reports whether the set has no members.
func (s LanguageSet) IsEmpty() bool { return s == 0 }

// Len returns the number of languages in the set.
func (s LanguageSet) Len() int { return bits.OnesCount16(uint16(s)) }

// Names returns the sorted language names.
func (s LanguageSet) Names() []string {
	out := make([]string, 0, s.Len())
	for l, name := range languageNames {
		if s.Contains(l) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ParseLanguages converts names into a set. Unknown names are an error.
func ParseLanguages(names []string) (LanguageSet, error) {
	var s LanguageSet
	for _, n := range names {
		found := false
		key := strings.ToLower(strings.TrimSpace(n))
		for l, name := range languageNames {
			if name == key {
				s |= LanguageSet(l)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown language %q", n)
		}
	}
	return s, nil
}

// MarshalJSON encodes the set as a list of names.
func (s LanguageSet) MarshalJSON() ([]byte, error) { return json.Marshal(s.Names()) }

// UnmarshalJSON decodes a list of names.
func (s *LanguageSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	v, err := ParseLanguages(names)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Availability
// ═══════════════════════════════════════════════════════════════════════════

// Availability is a time-of-day bucket.
type Availability uint8

// Availability buckets. AvailabilityUnset marks "no preference given" in
// overrides.
const (
	AvailabilityUnset Availability = iota
	Morning
	Afternoon
	Evening
	Night
	Flexible
)

var availabilityNames = [...]string{"", "morning", "afternoon", "evening", "night", "flexible"}

// String returns the bucket name.
func (a Availability) String() string {
	if int(a) < len(availabilityNames) {
		return availabilityNames[a]
	}
	return fmt.Sprintf("availability(%d)", a)
}

// ParseAvailability parses a bucket name. The empty string yields AvailabilityUnset.
func ParseAvailability(s string) (Availability, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, name := range availabilityNames {
		if name == key {
			return Availability(i), nil
		}
	}
	return AvailabilityUnset, fmt.Errorf("unknown availability %q", s)
}

// MarshalJSON encodes the bucket as its name.
func (a Availability) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

// UnmarshalJSON decodes a bucket name.
func (a *Availability) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, err := ParseAvailability(name)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Study locations
// ═══════════════════════════════════════════════════════════════════════════

// Location is a single study location option.
type Location uint8

// Study location options.
const (
	InPerson Location = 1 << iota
	Online
	Library
	CampusCafe
)

var locationNames = map[Location]string{
	InPerson:   "in_person",
	Online:     "online",
	Library:    "library",
	CampusCafe: "campus_cafe",
}

// LocationSet is a set of study locations.
type LocationSet uint8

const allLocations = LocationSet(InPerson | Online | Library | CampusCafe)

// Locations builds a set from individual options.
func Locations(ls ...Location) LocationSet {
	var s LocationSet
	for _, l := range ls {
		s |= LocationSet(l)
	}
	return s
}

// Intersect returns the locations present in both sets.
func (s LocationSet) Intersect(o LocationSet) LocationSet { return s & o }

// Contains reports whether l is in the set.
func (s LocationSet) Contains(l Location) bool { return s&LocationSet(l) != 0 }

// IsEmpty reports whether the set has no members.
func (s LocationSet) IsEmpty() bool { return s == 0 }

// Len returns the number of locations in the set.
func (s LocationSet) Len() int { return bits.OnesCount8(uint8(s)) }

// Names returns the sorted location names.
func (s LocationSet) Names() []string {
	out := make([]string, 0, s.Len())
	for l, name := range locationNames {
		if s.Contains(l) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ParseLocations converts names into a set.
func ParseLocations(names []string) (LocationSet, error) {
	var s LocationSet
	for _, n := range names {
		found := false
		key := strings.ToLower(strings.TrimSpace(n))
		for l, name := range locationNames {
			if name == key {
				s |= LocationSet(l)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown study location %q", n)
		}
	}
	return s, nil
}

// MarshalJSON encodes the set as a list of names.
func (s LocationSet) MarshalJSON() ([]byte, error) { return json.Marshal(s.Names()) }

// UnmarshalJSON decodes a list of names.
func (s *LocationSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	v, err := ParseLocations(names)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Preferences
// ═══════════════════════════════════════════════════════════════════════════

// Preferences is the canonical preference snapshot.
type Preferences struct {
	Languages    LanguageSet  `json:"languages"`
	Availability Availability `json:"availability"`
	Days         DaySet       `json:"days"`
	Locations    LocationSet  `json:"locations"`
}

// Merge returns p with every non-empty field of override applied on top.
// It is the only way course-level overrides are combined with a user's
// global preferences.
func (p Preferences) Merge(override Preferences) Preferences {
	out := p
	if !override.Languages.IsEmpty() {
		out.Languages = override.Languages
	}
	if override.Availability != AvailabilityUnset {
		out.Availability = override.Availability
	}
	if !override.Days.IsEmpty() {
		out.Days = override.Days
	}
	if !override.Locations.IsEmpty() {
		out.Locations = override.Locations
	}
	return out
}

// IsZero reports whether no field is set.
func (p Preferences) IsZero() bool {
	return p == Preferences{}
}

// Validate checks that every set holds only known members.
func (p Preferences) Validate() error {
	if p.Languages&^allLanguages != 0 {
		return fmt.Errorf("languages: unknown bits %#x", uint16(p.Languages&^allLanguages))
	}
	if int(p.Availability) >= len(availabilityNames) {
		return fmt.Errorf("availability: unknown value %d", p.Availability)
	}
	if p.Days&^AllDays != 0 {
		return fmt.Errorf("days: unknown bits %#x", uint8(p.Days&^AllDays))
	}
	if p.Locations&^allLocations != 0 {
		return fmt.Errorf("locations: unknown bits %#x", uint8(p.Locations&^allLocations))
	}
	return nil
}

// String renders the snapshot for logs.
func (p Preferences) String() string {
	return fmt.Sprintf("languages=%v availability=%s days=%s locations=%v",
		p.Languages.Names(), p.Availability, p.Days, p.Locations.Names())
}
