// Package lifecycle owns the complaint status graph. It decides whether a
// transition is legal and stamps the audit trail; persistence lives elsewhere.
package lifecycle

import (
	"fmt"
	"slices"
	"time"

	"complaintdesk/internal/domain"
)

var transitions = map[domain.Status][]domain.Status{
	domain.StatusNew:          {domain.StatusTriaged},
	domain.StatusTriaged:      {domain.StatusStructured},
	domain.StatusStructured:   {domain.StatusClustered},
	domain.StatusClustered:    {domain.StatusRouted},
	domain.StatusRouted:       {domain.StatusInProgress},
	domain.StatusInProgress:   {domain.StatusResolved, domain.StatusAwaitingUser},
	domain.StatusAwaitingUser: {domain.StatusInProgress, domain.StatusResolved},
	domain.StatusResolved:     {domain.StatusClosed},
	domain.StatusClosed:       {domain.StatusReopened},
	domain.StatusReopened:     {domain.StatusTriaged},
}

// Allowed returns the legal targets from a state, in table order.
func Allowed(from domain.Status) []domain.Status {
	return slices.Clone(transitions[from])
}

func CanTransition(from, to domain.Status) bool {
	return slices.Contains(transitions[from], to)
}

// Transition moves c to the target state and appends exactly one audit
// entry. On an illegal target it returns *domain.InvalidTransitionError and
// leaves c untouched.
func Transition(c *domain.Complaint, to domain.Status, actor, note string, at time.Time) error {
	from := c.Status
	if !CanTransition(from, to) {
		return &domain.InvalidTransitionError{From: from, To: to}
	}
	action := fmt.Sprintf("Status changed: %s -> %s", from, to)
	if note != "" {
		action += ": " + note
	}
	c.Status = to
	c.AuditTrail = append(c.AuditTrail, domain.AuditEntry{
		Timestamp: at,
		Actor:     actor,
		Action:    action,
		From:      from,
		To:        to,
	})
	return nil
}

// Record appends a non-transition audit entry, such as intake creation.
func Record(c *domain.Complaint, actor, action string, at time.Time) {
	c.AuditTrail = append(c.AuditTrail, domain.AuditEntry{
		Timestamp: at,
		Actor:     actor,
		Action:    action,
	})
}
