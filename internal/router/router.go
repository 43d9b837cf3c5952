// Package router picks the handling queue for a classified complaint.
package router

import (
	"slices"

	"complaintdesk/internal/domain"
)

type Input struct {
	Category   domain.Category
	Severity   domain.Severity
	RootCauses []domain.RootCause
	Frequency  domain.Frequency
}

// Rule is one entry of the routing table. Rules are evaluated in order and
// the first match wins.
type Rule struct {
	Name   string
	Match  func(Input) bool
	Target domain.RoutingTarget
}

// Rules is the routing table. Critical severity must stay first: it escalates
// to a human regardless of category.
var Rules = []Rule{
	{
		Name:   "critical severity",
		Match:  func(in Input) bool { return in.Severity == domain.SeverityCritical },
		Target: domain.RouteHumanReview,
	},
	{
		Name: "high severity trust and safety",
		Match: func(in Input) bool {
			return in.Category == domain.CategoryTrustSafety && in.Severity.AtLeast(domain.SeverityHigh)
		},
		Target: domain.RouteSafetyEscalation,
	},
	{
		Name: "high severity bug",
		Match: func(in Input) bool {
			return in.Category == domain.CategoryBug && in.Severity.AtLeast(domain.SeverityHigh)
		},
		Target: domain.RouteHumanReview,
	},
	{
		Name: "model ignored a constraint",
		Match: func(in Input) bool {
			return in.Category == domain.CategoryModelBehavior &&
				slices.Contains(in.RootCauses, domain.RootCauseConstraintParsingFailure)
		},
		Target: domain.RouteSelfCorrection,
	},
	{
		Name: "high severity performance",
		Match: func(in Input) bool {
			return in.Category == domain.CategoryPerformance && in.Severity.AtLeast(domain.SeverityHigh)
		},
		Target: domain.RouteHumanReview,
	},
	{
		Name: "feature request",
		Match: func(in Input) bool {
			return in.Category == domain.CategoryFeatureRequest && in.Severity.AtLeast(domain.SeverityMedium)
		},
		Target: domain.RouteProductBacklog,
	},
	{
		Name: "persistent misunderstanding",
		Match: func(in Input) bool {
			return in.Category == domain.CategoryMisunderstanding && in.Frequency == domain.FrequencyPersistent
		},
		Target: domain.RouteDocumentationUpdate,
	},
}

// Route returns the target of the first matching rule, or human review.
func Route(in Input) domain.RoutingTarget {
	target, _ := Explain(in)
	return target
}

// Explain is Route plus the name of the rule that decided.
func Explain(in Input) (domain.RoutingTarget, string) {
	for _, r := range Rules {
		if r.Match(in) {
			return r.Target, r.Name
		}
	}
	return domain.RouteHumanReview, "default"
}
