package slackbot

import (
	"fmt"
	"strings"

	"complaintdesk/internal/complaint"
	"complaintdesk/internal/domain"
)

const (
	recentAuditEntries = 5
	maxListed          = 20
	excerptLen         = 120
)

func formatFiled(res complaint.Result) string {
	c := res.Complaint
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Complaint *%s* filed. Thank you.\n", c.ID))
	sb.WriteString(fmt.Sprintf("- Category: %s", c.PrimaryCategory))
	if len(c.SecondaryCategories) > 0 {
		sb.WriteString(fmt.Sprintf(" (also %s)", joinCategories(c.SecondaryCategories)))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("- Severity: %s\n", c.Severity))
	for _, reason := range c.SeverityBasis {
		sb.WriteString(fmt.Sprintf("  - %s\n", reason))
	}
	sb.WriteString(fmt.Sprintf("- Routed to: %s\n", c.RoutingTarget))
	sb.WriteString(fmt.Sprintf("- Confidence: %.0f%%\n", c.Confidence*100))
	if c.SuggestedFix != "" {
		sb.WriteString(fmt.Sprintf("- Suggested fix: %s\n", c.SuggestedFix))
	}
	if len(res.Related) > 0 {
		sb.WriteString("- Similar complaints:\n")
		for _, m := range res.Related {
			sb.WriteString(fmt.Sprintf("  - %s (%.0f%% overlap)\n", m.ID, m.Overlap*100))
		}
	}
	if n := domain.DraftOf(c).DefaultedPillars(); n > 0 {
		sb.WriteString(fmt.Sprintf("_%d detail(s) were not provided; follow up with `/complaint %s` later._\n", n, c.ID))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatComplaint(c domain.Complaint) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*%s* (%s)\n", c.ID, c.Status))
	sb.WriteString(fmt.Sprintf("Reported: %s\n", c.ReportedAt.Format("2006-01-02 15:04 MST")))
	if c.UserSummary != "" {
		sb.WriteString(fmt.Sprintf("Summary: %s\n", c.UserSummary))
	}
	sb.WriteString(fmt.Sprintf("Intent: %s\n", c.UserIntent))
	sb.WriteString(fmt.Sprintf("Observed: %s\n", c.ObservedOutcome))
	sb.WriteString(fmt.Sprintf("Expected: %s\n", c.ExpectedOutcome))
	sb.WriteString(fmt.Sprintf("Category: %s | Severity: %s | Frequency: %s\n", c.PrimaryCategory, c.Severity, c.Frequency))
	sb.WriteString(fmt.Sprintf("Root causes: %s\n", joinCauses(c.ProbableRootCauses)))
	if c.RoutingTarget != "" {
		sb.WriteString(fmt.Sprintf("Routed to: %s\n", c.RoutingTarget))
	}
	if len(c.RelatedComplaints) > 0 {
		sb.WriteString(fmt.Sprintf("Related: %s\n", strings.Join(c.RelatedComplaints, ", ")))
	}

	trail := c.AuditTrail
	if len(trail) > recentAuditEntries {
		trail = trail[len(trail)-recentAuditEntries:]
	}
	if len(trail) > 0 {
		sb.WriteString("*Recent activity*\n")
		for _, e := range trail {
			sb.WriteString(fmt.Sprintf("- %s %s: %s\n", e.Timestamp.Format("2006-01-02 15:04"), e.Actor, e.Action))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatList(title string, items []domain.Complaint) string {
	if len(items) == 0 {
		return fmt.Sprintf("No complaints with %s.", title)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Complaints with %s* (%d)\n", title, len(items)))
	for i, c := range items {
		if i == maxListed {
			sb.WriteString(fmt.Sprintf("...and %d more\n", len(items)-maxListed))
			break
		}
		sb.WriteString(fmt.Sprintf("- %s [%s/%s/%s] %s\n", c.ID, c.PrimaryCategory, c.Severity, c.Status, excerpt(c)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatRouted is the channel message for a freshly routed complaint.
func formatRouted(c domain.Complaint) string {
	return fmt.Sprintf("*New complaint routed to %s*\n%s | %s | %s\n>%s\nSuggested fix: %s",
		c.RoutingTarget, c.ID, c.PrimaryCategory, c.Severity, excerpt(c), c.SuggestedFix)
}

func excerpt(c domain.Complaint) string {
	text := c.UserSummary
	if !domain.Provided(text) {
		text = c.ObservedOutcome
	}
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > excerptLen {
		text = string(r[:excerptLen]) + "..."
	}
	return text
}

func joinCategories(cats []domain.Category) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}

func joinCauses(causes []domain.RootCause) string {
	parts := make([]string, len(causes))
	for i, c := range causes {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
