package intake

import (
	"strings"

	"complaintdesk/internal/domain"
)

// ParseQuick reads the one-line form
//
//	intent: ... | observed: ... | expected: ... | frequency: ... | context: ...
//
// Keys are case-insensitive and may appear in any order. Text that is not a
// key/value pair becomes the summary. The second return value reports whether
// all three narrative fields were given.
func ParseQuick(text string) (domain.Draft, bool) {
	var d domain.Draft
	var loose []string
	for _, part := range strings.Split(text, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			loose = append(loose, part)
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "intent", "goal":
			d.UserIntent = value
		case "observed", "actual", "happened":
			d.ObservedOutcome = value
		case "expected":
			d.ExpectedOutcome = value
		case "frequency", "freq":
			d.Frequency = domain.ParseFrequency(value)
		case "context":
			d.Context = value
		case "summary":
			d.UserSummary = value
		default:
			loose = append(loose, part)
		}
	}
	if d.UserSummary == "" && len(loose) > 0 {
		d.UserSummary = strings.Join(loose, " ")
	}
	complete := domain.Provided(d.UserIntent) && domain.Provided(d.ObservedOutcome) && domain.Provided(d.ExpectedOutcome)
	return d, complete
}
