package preference

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaySetOverlap(t *testing.T) {
	assert.Equal(t, 2, Weekdays.Overlap(Monday|Tuesday))
	assert.Equal(t, 1, Weekdays.Overlap(Wednesday))
	assert.Equal(t, 0, Weekdays.Overlap(Weekend))
	assert.Equal(t, 7, AllDays.Len())
	assert.Equal(t, "weekdays", Weekdays.String())
	assert.Equal(t, "monday|sunday", (Monday | Sunday).String())
}

func TestParseDays(t *testing.T) {
	d, err := ParseDays([]string{"Mon", "wednesday", "weekend"})
	require.NoError(t, err)
	assert.Equal(t, Monday|Wednesday|Saturday|Sunday, d)

	_, err = ParseDays([]string{"funday"})
	assert.Error(t, err)
}

func TestMergeOverridesOnlyNonEmptyFields(t *testing.T) {
	base := Preferences{
		Languages:    Languages(English),
		Availability: Morning,
		Days:         Weekdays,
		Locations:    Locations(Online),
	}
	merged := base.Merge(Preferences{Days: Weekend, Availability: Evening})

	assert.Equal(t, Languages(English), merged.Languages)
	assert.Equal(t, Evening, merged.Availability)
	assert.Equal(t, Weekend, merged.Days)
	assert.Equal(t, Locations(Online), merged.Locations)

	// base is a value; merging never mutates it
	assert.Equal(t, Weekdays, base.Days)
	assert.Equal(t, base, base.Merge(Preferences{}))
}

func TestPreferencesJSONRoundTrip(t *testing.T) {
	p := Preferences{
		Languages:    Languages(English, Spanish),
		Availability: Flexible,
		Days:         Monday | Friday,
		Locations:    Locations(Library, Online),
	}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"languages":["english","spanish"],"availability":"flexible","days":["monday","friday"],"locations":["library","online"]}`, string(b))

	var back Preferences
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, p, back)
}

func TestValidateRejectsUnknownBits(t *testing.T) {
	assert.NoError(t, Preferences{Days: AllDays, Languages: Languages(Arabic)}.Validate())
	assert.Error(t, Preferences{Days: 1 << 7}.Validate())
	assert.Error(t, Preferences{Availability: Availability(42)}.Validate())
}
