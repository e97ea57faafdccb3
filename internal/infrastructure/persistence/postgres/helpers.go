package postgres

import (
	"fmt"
	"strings"

	"github.com/studyhub/groupmatch/internal/domain/preference"
)

// prefsRow holds the four preference columns as stored.
type prefsRow struct {
	Languages    int16
	Availability int16
	Days         int16
	Locations    int16
}

func (p *prefsRow) dest() []any {
	return []any{&p.Languages, &p.Availability, &p.Days, &p.Locations}
}

func (p prefsRow) toDomain() preference.Preferences {
	return preference.Preferences{
		Languages:    preference.LanguageSet(p.Languages),
		Availability: preference.Availability(p.Availability),
		Days:         preference.DaySet(p.Days),
		Locations:    preference.LocationSet(p.Locations),
	}
}

func prefsArgs(p preference.Preferences) []any {
	return []any{int16(p.Languages), int16(p.Availability), int16(p.Days), int16(p.Locations)}
}

// placeholders returns "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
