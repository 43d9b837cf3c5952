// Package classifier turns a complaint draft into category, severity, root
// causes, a suggested fix and a confidence score. Every function here is a
// pure function of its input and the rule tables.
package classifier

import (
	"fmt"
	"sort"
	"strings"

	"complaintdesk/internal/domain"
	"complaintdesk/internal/rules"
)

type Result struct {
	PrimaryCategory     domain.Category
	SecondaryCategories []domain.Category
	CategoryScores      map[domain.Category]int
	Severity            domain.Severity
	SeverityScore       int
	SeverityBasis       []string
	RootCauses          []domain.RootCause
	SuggestedFix        string
	Confidence          float64
}

const defaultSeverityReason = "Default severity based on available information"

type Classifier struct {
	rules *rules.Rules
}

func New(r *rules.Rules) *Classifier {
	return &Classifier{rules: r}
}

// Classify runs every stage over the draft. It never fails: drafts without
// any signal come back as other/low/unknown.
func (c *Classifier) Classify(d domain.Draft) Result {
	blob := Blob(d)
	primary, secondary, scores := c.Categorize(blob)
	severity, score, basis := c.Severity(blob, d.Frequency, primary)
	causes := c.RootCauses(blob)
	return Result{
		PrimaryCategory:     primary,
		SecondaryCategories: secondary,
		CategoryScores:      scores,
		Severity:            severity,
		SeverityScore:       score,
		SeverityBasis:       basis,
		RootCauses:          causes,
		SuggestedFix:        c.SuggestFix(primary, causes),
		Confidence:          c.Confidence(d),
	}
}

// Blob joins the user-supplied free text of a draft into one normalized
// string. Fallback values are left out so they never score.
func Blob(d domain.Draft) string {
	var parts []string
	for _, v := range []string{d.UserSummary, d.UserIntent, d.ObservedOutcome, d.ExpectedOutcome, d.Context} {
		if domain.Provided(v) {
			parts = append(parts, v)
		}
	}
	return rules.Normalize(strings.Join(parts, " "))
}

// Categorize scores each category by summed keyword occurrence counts plus
// boosts. Ties on the top score go to the earlier entry of category_priority.
func (c *Classifier) Categorize(blob string) (domain.Category, []domain.Category, map[domain.Category]int) {
	scores := make(map[domain.Category]int, len(domain.Categories))
	for _, cat := range domain.Categories {
		score := 0
		for _, kw := range c.rules.CategoryKeywords(cat) {
			score += strings.Count(blob, kw)
		}
		scores[cat] = score
	}
	for i, boost := range c.rules.CategoryBoosts {
		if c.rules.BoostPhrases(i).Any(blob) {
			scores[boost.Category] += boost.Bonus
		}
	}

	rank := make(map[domain.Category]int, len(c.rules.CategoryPriority))
	for i, cat := range c.rules.CategoryPriority {
		rank[cat] = i
	}
	ordered := make([]domain.Category, len(c.rules.CategoryPriority))
	copy(ordered, c.rules.CategoryPriority)
	sort.SliceStable(ordered, func(i, j int) bool {
		if scores[ordered[i]] != scores[ordered[j]] {
			return scores[ordered[i]] > scores[ordered[j]]
		}
		return rank[ordered[i]] < rank[ordered[j]]
	})

	top := ordered[0]
	if scores[top] == 0 {
		return domain.CategoryOther, nil, scores
	}

	var secondary []domain.Category
	cutoff := c.rules.SecondaryMargin * float64(scores[top])
	for _, cat := range ordered[1:] {
		if len(secondary) >= c.rules.MaxSecondary {
			break
		}
		if scores[cat] > 0 && float64(scores[cat]) >= cutoff {
			secondary = append(secondary, cat)
		}
	}
	return top, secondary, scores
}

// Severity accumulates points from keywords, frequency, work impact and the
// category, and records one reason per rule that fired, in that order.
func (c *Classifier) Severity(blob string, freq domain.Frequency, primary domain.Category) (domain.Severity, int, []string) {
	sr := c.rules.Severity
	score := 0
	var basis []string

	for i, found := range c.rules.SeverityPhrases().Present(blob) {
		if !found {
			continue
		}
		kw := sr.Keywords[i]
		score += kw.Points()
		basis = append(basis, fmt.Sprintf("Contains '%s' indicator", c.rules.SeverityPhrases().Phrase(i)))
	}

	if w := sr.FrequencyWeights[freq]; w > 0 {
		score += w
		basis = append(basis, fmt.Sprintf("Recurring issue (%s)", freq))
	}

	if c.rules.ImpactPhrases().Any(blob) {
		score += sr.ImpactWeight
		basis = append(basis, "Impacts work/productivity")
	}

	if c.rules.Elevated(primary) {
		score += sr.ElevatedWeight
		basis = append(basis, fmt.Sprintf("Category: %s (elevated priority)", primary))
	}

	if len(basis) == 0 {
		basis = []string{defaultSeverityReason}
	}
	return c.levelFor(score), score, basis
}

func (c *Classifier) levelFor(score int) domain.Severity {
	t := c.rules.Severity.Thresholds
	switch {
	case score >= t.Critical:
		return domain.SeverityCritical
	case score >= t.High:
		return domain.SeverityHigh
	case score >= t.Medium:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// RootCauses returns every cause whose patterns occur in blob, in table
// order, or just unknown.
func (c *Classifier) RootCauses(blob string) []domain.RootCause {
	var causes []domain.RootCause
	for i, rc := range c.rules.RootCauses {
		if c.rules.RootCausePhrases(i).Any(blob) {
			causes = append(causes, rc.Cause)
		}
	}
	if len(causes) == 0 {
		return []domain.RootCause{domain.RootCauseUnknown}
	}
	return causes
}

// SuggestFix prefers fixes keyed by (category, cause), then the category-wide
// fix, then the generic default.
func (c *Classifier) SuggestFix(primary domain.Category, causes []domain.RootCause) string {
	var specific []string
	categoryWide := ""
	for _, f := range c.rules.Fixes {
		if f.Category != primary {
			continue
		}
		if f.RootCause == "" {
			if categoryWide == "" {
				categoryWide = f.Fix
			}
			continue
		}
		for _, cause := range causes {
			if cause == f.RootCause {
				specific = append(specific, f.Fix)
				break
			}
		}
	}
	switch {
	case len(specific) > 0:
		return strings.Join(specific, "; ")
	case categoryWide != "":
		return categoryWide
	default:
		return c.rules.DefaultFix
	}
}

// Confidence starts at the configured base and loses a fixed penalty per
// required narrative field that was defaulted, never dropping below the floor.
func (c *Classifier) Confidence(d domain.Draft) float64 {
	cr := c.rules.Confidence
	v := cr.Base - cr.DefaultPenalty*float64(d.DefaultedPillars())
	if v < cr.Floor {
		v = cr.Floor
	}
	if v > 1 {
		v = 1
	}
	return v
}

// IsComplaintTrigger reports whether a chat message looks like the user wants
// to file a complaint.
func (c *Classifier) IsComplaintTrigger(text string) bool {
	for _, re := range c.rules.TriggerPatterns() {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
