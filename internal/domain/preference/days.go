package preference

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"
)

// DaySet is a 7-bit set of weekdays, bit 0 = Monday.
type DaySet uint8

// Individual days and common sets.
const (
	Monday DaySet = 1 << iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday

	Weekdays = Monday | Tuesday | Wednesday | Thursday | Friday
	Weekend  = Saturday | Sunday
	AllDays  = Weekdays | Weekend
)

// DaysInWeek is the denominator of the days-in-common score.
const DaysInWeek = 7

var dayNames = [DaysInWeek]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Intersect returns the days present in both sets.
func (d DaySet) Intersect(o DaySet) DaySet { return d & o }

// Overlap counts the days present in both sets.
func (d DaySet) Overlap(o DaySet) int { return bits.OnesCount8(uint8(d & o & AllDays)) }

// Len returns the number of days in the set.
func (d DaySet) Len() int { return bits.OnesCount8(uint8(d & AllDays)) }

// IsEmpty reports whether the set has no days.
func (d DaySet) IsEmpty() bool { return d&AllDays == 0 }

// Names returns the day names in week order.
func (d DaySet) Names() []string {
	out := make([]string, 0, d.Len())
	for i, name := range dayNames {
		if d&(1<<i) != 0 {
			out = append(out, name)
		}
	}
	return out
}

// String joins the day names with "|".
func (d DaySet) String() string {
	switch d & AllDays {
	case 0:
		return "none"
	case AllDays:
		return "all"
	case Weekdays:
		return "weekdays"
	case Weekend:
		return "weekend"
	}
	return strings.Join(d.Names(), "|")
}

// ParseDays converts names into a set. "weekdays", "weekend" and "all" are
// accepted as shorthands.
func ParseDays(names []string) (DaySet, error) {
	var d DaySet
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		switch key {
		case "weekdays":
			d |= Weekdays
			continue
		case "weekend", "weekends":
			d |= Weekend
			continue
		case "all", "everyday":
			d |= AllDays
			continue
		}
		found := false
		for i, name := range dayNames {
			if name == key || name[:3] == key {
				d |= 1 << i
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown day %q", n)
		}
	}
	return d, nil
}

// MarshalJSON encodes the set as a list of day names.
func (d DaySet) MarshalJSON() ([]byte, error) { return json.Marshal(d.Names()) }

// UnmarshalJSON decodes a list of day names.
func (d *DaySet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	v, err := ParseDays(names)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
