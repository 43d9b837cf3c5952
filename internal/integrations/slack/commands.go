package slackbot

import (
	"fmt"
	"log"
	"strings"

	"complaintdesk/internal/complaint"
	"complaintdesk/internal/digest"
	"complaintdesk/internal/domain"
	"complaintdesk/internal/intake"
)

const triggerHint = "It sounds like something went wrong. Use `/complain <what happened>` to file a complaint, or `/complaint-help` for the one-line form."

// Commands turns slash command text into reply text. It never talks to Slack
// itself, so every command can be exercised without a workspace.
type Commands struct {
	svc        *complaint.Service
	sessions   *intake.Sessions
	questions  map[string][]string
	maxRounds  int
	pick       intake.Picker
	isOperator func(userID string) bool
}

func NewCommands(svc *complaint.Service, questions map[string][]string, maxRounds int, pick intake.Picker, isOperator func(string) bool) *Commands {
	if isOperator == nil {
		isOperator = func(string) bool { return false }
	}
	return &Commands{
		svc:        svc,
		sessions:   intake.NewSessions(),
		questions:  questions,
		maxRounds:  maxRounds,
		pick:       pick,
		isOperator: isOperator,
	}
}

// Complain handles /complain. A complete one-line form is filed at once;
// anything else opens (or continues) the caller's intake session.
func (h *Commands) Complain(userID, text string) string {
	text = strings.TrimSpace(text)

	if sess, ok := h.sessions.Get(userID); ok {
		if strings.EqualFold(text, "cancel") {
			h.sessions.Drop(userID)
			log.Printf("complain intake cancelled user=%s", userID)
			return "Complaint intake cancelled."
		}
		q, more, claimed := sess.Reply(text)
		if more {
			return q + "\n_Reply with `/complain <answer>` or `/complain cancel`._"
		}
		if !claimed {
			return "Your complaint is already being filed."
		}
		h.sessions.Release(userID, sess)
		return h.file(userID, sess.Draft())
	}

	if text == "" {
		return "Usage: `/complain <what happened>` or `/complain intent: ... | observed: ... | expected: ...`"
	}
	draft, complete := intake.ParseQuick(text)
	if complete {
		return h.file(userID, draft)
	}

	sess := intake.NewSession(h.questions, h.maxRounds, h.pick, draft)
	q, more := sess.Next()
	if !more {
		return h.file(userID, sess.Draft())
	}
	h.sessions.Put(userID, sess)
	log.Printf("complain intake started user=%s missing=%d", userID, len(sess.Missing()))
	return "Sorry to hear that. A few quick questions.\n" + q + "\n_Reply with `/complain <answer>` or `/complain cancel`._"
}

func (h *Commands) file(userID string, d domain.Draft) string {
	res, err := h.svc.File(d, userID)
	if err != nil {
		log.Printf("complain file error user=%s: %v", userID, err)
		if domain.IsValidation(err) {
			return fmt.Sprintf("Could not file the complaint: %v", err)
		}
		return "Error filing the complaint. Please try again."
	}
	return formatFiled(res)
}

// Show handles /complaint <id>.
func (h *Commands) Show(text string) string {
	id := strings.ToUpper(strings.TrimSpace(text))
	if id == "" {
		return "Usage: `/complaint <complaint id>`"
	}
	c, err := h.svc.Get(id)
	if domain.IsNotFound(err) {
		return fmt.Sprintf("No complaint with ID %s.", id)
	}
	if err != nil {
		log.Printf("complaint show error id=%s: %v", id, err)
		return "Error loading the complaint."
	}
	return formatComplaint(c)
}

// List handles /complaints category|severity|status <value>.
func (h *Commands) List(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) != 2 {
		return "Usage: `/complaints category|severity|status <value>`"
	}
	kind, value := fields[0], fields[1]

	var items []domain.Complaint
	var err error
	switch kind {
	case "category":
		items, err = h.svc.ListByCategory(domain.Category(value))
	case "severity":
		items, err = h.svc.ListBySeverity(domain.Severity(value))
	case "status":
		items, err = h.svc.ListByStatus(domain.Status(value))
	default:
		return "Usage: `/complaints category|severity|status <value>`"
	}
	if domain.IsValidation(err) {
		return fmt.Sprintf("Unknown %s '%s'.", kind, value)
	}
	if err != nil {
		log.Printf("complaints list error kind=%s value=%s: %v", kind, value, err)
		return "Error listing complaints."
	}
	return formatList(fmt.Sprintf("%s %s", kind, value), items)
}

func (h *Commands) Stats() string {
	st, err := h.svc.Statistics()
	if err != nil {
		log.Printf("complaint-stats error: %v", err)
		return "Error loading statistics."
	}
	return digest.FormatStatistics(st)
}

// SetStatus handles /complaint-status <id> <status|reprocess> [note].
func (h *Commands) SetStatus(userID, text string) string {
	if !h.isOperator(userID) {
		log.Printf("complaint-status denied user=%s", userID)
		return "Sorry, only operators can change complaint status."
	}
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "Usage: `/complaint-status <id> <status|reprocess> [note]`"
	}
	id := strings.ToUpper(fields[0])
	target := strings.ToLower(fields[1])
	note := strings.Join(fields[2:], " ")

	if target == "reprocess" {
		res, err := h.svc.Reprocess(id, userID)
		if err != nil {
			return statusError(id, err)
		}
		return fmt.Sprintf("%s reprocessed: severity %s, routed to %s.", id, res.Complaint.Severity, res.Complaint.RoutingTarget)
	}

	c, err := h.svc.UpdateStatus(id, domain.Status(target), userID, note)
	if err != nil {
		return statusError(id, err)
	}
	return fmt.Sprintf("%s is now %s.", c.ID, c.Status)
}

func statusError(id string, err error) string {
	switch {
	case domain.IsNotFound(err):
		return fmt.Sprintf("No complaint with ID %s.", id)
	case domain.IsInvalidTransition(err), domain.IsValidation(err):
		return fmt.Sprintf("Cannot update %s: %v", id, err)
	default:
		log.Printf("complaint-status error id=%s: %v", id, err)
		return "Error updating the complaint."
	}
}

func (h *Commands) Help(userID string) string {
	lines := []string{
		"*Complaint Desk Commands*",
		"",
		"`/complain <what happened>` — Start a complaint; I'll ask for anything missing.",
		">*One-line form:* `/complain intent: ... | observed: ... | expected: ... | frequency: once|intermittent|persistent`",
		"`/complaint <id>` — Show a complaint and its recent activity.",
		"`/complaints category|severity|status <value>` — List complaints.",
		"`/complaint-stats` — Totals by category, severity and status.",
		"`/complaint-help` — Show this help.",
	}
	if h.isOperator(userID) {
		lines = append(lines,
			"",
			"*Operator Commands*",
			"",
			"`/complaint-status <id> <status> [note]` — Move a complaint (in_progress, awaiting_user, resolved, closed, reopened).",
			"`/complaint-status <id> reprocess` — Run a reopened complaint through triage again.",
		)
	}
	return strings.Join(lines, "\n")
}

// Hint returns the suggestion to post for free chat text, if any.
func (h *Commands) Hint(text string) (string, bool) {
	if !h.svc.IsTrigger(text) {
		return "", false
	}
	return triggerHint, true
}
