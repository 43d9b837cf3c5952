// Package similarity clusters a new complaint with earlier complaints of the
// same primary category by keyword overlap.
package similarity

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"complaintdesk/internal/domain"
	"complaintdesk/internal/rules"
)

type Match struct {
	ID         string
	Overlap    float64
	ReportedAt time.Time
}

type Matcher struct {
	rules     *rules.Rules
	threshold float64
}

// New builds a matcher. A threshold <= 0 falls back to the rule tables.
func New(r *rules.Rules, threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = r.Similarity.Threshold
	}
	return &Matcher{rules: r, threshold: threshold}
}

func (m *Matcher) Threshold() float64 { return m.threshold }

// Keywords extracts the deduplicated, case-folded, stop-word-free token set
// of the three narrative fields. Fallback values contribute nothing.
func (m *Matcher) Keywords(d domain.Draft) map[string]struct{} {
	set := make(map[string]struct{})
	minLen := m.rules.Similarity.MinTokenLen
	for _, v := range []string{d.UserIntent, d.ObservedOutcome, d.ExpectedOutcome} {
		if !domain.Provided(v) {
			continue
		}
		for _, tok := range tokenize(rules.Normalize(v)) {
			if utf8.RuneCountInString(tok) < minLen || m.rules.IsStopWord(tok) {
				continue
			}
			set[tok] = struct{}{}
		}
	}
	return set
}

// tokenize splits on anything that is not a letter, digit or apostrophe.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Overlap is |new ∩ existing| / |new|. An empty new set overlaps nothing.
func Overlap(newSet, existing map[string]struct{}) float64 {
	if len(newSet) == 0 {
		return 0
	}
	shared := 0
	for tok := range newSet {
		if _, ok := existing[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(newSet))
}

// FindRelated scores every candidate against the new complaint and returns
// those at or above the threshold, best overlap first and most recent first
// on ties. Candidates are expected to share the new complaint's primary
// category; the record itself is skipped.
func (m *Matcher) FindRelated(selfID string, d domain.Draft, candidates []domain.Complaint) []Match {
	newSet := m.Keywords(d)
	if len(newSet) == 0 {
		return nil
	}
	var matches []Match
	for _, cand := range candidates {
		if cand.ID == selfID {
			continue
		}
		overlap := Overlap(newSet, m.Keywords(domain.DraftOf(cand)))
		if overlap >= m.threshold {
			matches = append(matches, Match{ID: cand.ID, Overlap: overlap, ReportedAt: cand.ReportedAt})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Overlap != matches[j].Overlap {
			return matches[i].Overlap > matches[j].Overlap
		}
		if !matches[i].ReportedAt.Equal(matches[j].ReportedAt) {
			return matches[i].ReportedAt.After(matches[j].ReportedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	return matches
}

// IDs flattens matches into the related_complaints list.
func IDs(matches []Match) []string {
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, len(matches))
	for i, mt := range matches {
		ids[i] = mt.ID
	}
	return ids
}
