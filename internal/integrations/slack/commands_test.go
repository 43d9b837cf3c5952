package slackbot

import (
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"complaintdesk/internal/complaint"
	"complaintdesk/internal/intake"
	"complaintdesk/internal/rules"
	"complaintdesk/internal/storage/sqlite"
)

var filedIDPattern = regexp.MustCompile(`CMP-\d{4}-\d{2}-\d{2}-[A-Z0-9]{6}`)

func newTestCommands(t *testing.T) *Commands {
	t.Helper()
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "slack-test.db"))
	if err != nil {
		t.Fatalf("init test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	r, err := rules.Default()
	if err != nil {
		t.Fatalf("rules.Default failed: %v", err)
	}
	svc := complaint.NewService(sqlite.NewStore(db), r, r.Similarity.Threshold)
	return NewCommands(svc, r.Intake.Questions, r.Intake.MaxRounds, intake.FirstPicker, func(id string) bool { return id == "UOPS" })
}

func fileQuick(t *testing.T, h *Commands) string {
	t.Helper()
	reply := h.Complain("U1", "intent: Upload a file | observed: Upload failed with an error | expected: File uploaded | frequency: once")
	id := filedIDPattern.FindString(reply)
	if id == "" {
		t.Fatalf("expected a complaint id in reply, got %q", reply)
	}
	return id
}

func TestComplainQuickFormFilesImmediately(t *testing.T) {
	h := newTestCommands(t)
	reply := h.Complain("U1", "intent: Append new paragraphs | observed: AI overwrote entire sections | expected: Only new content | frequency: persistent")
	if !strings.Contains(reply, "filed") || !strings.Contains(reply, "model_behavior") || !strings.Contains(reply, "self_correction") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestComplainSessionAsksThenFiles(t *testing.T) {
	h := newTestCommands(t)

	first := h.Complain("U2", "The export keeps crashing")
	if !strings.Contains(first, "What were you trying to accomplish?") {
		t.Fatalf("expected intent question, got %q", first)
	}
	second := h.Complain("U2", "Export the monthly report")
	if !strings.Contains(second, "What actually happened?") {
		t.Fatalf("expected observed question, got %q", second)
	}
	third := h.Complain("U2", "The app crashed with an error")
	if !strings.Contains(third, "What did you expect to happen?") {
		t.Fatalf("expected expected-outcome question, got %q", third)
	}
	final := h.Complain("U2", "A CSV download")
	if filedIDPattern.FindString(final) == "" || !strings.Contains(final, "bug") {
		t.Fatalf("expected filed bug complaint, got %q", final)
	}
	if _, ok := h.sessions.Get("U2"); ok {
		t.Fatalf("expected session to be closed after filing")
	}
}

func TestComplainSessionCancel(t *testing.T) {
	h := newTestCommands(t)
	h.Complain("U3", "Something is off")
	if got := h.Complain("U3", "cancel"); got != "Complaint intake cancelled." {
		t.Fatalf("unexpected cancel reply: %q", got)
	}
	if _, ok := h.sessions.Get("U3"); ok {
		t.Fatalf("expected session to be dropped")
	}
}

func TestComplainEmptyShowsUsage(t *testing.T) {
	h := newTestCommands(t)
	if got := h.Complain("U4", "  "); !strings.HasPrefix(got, "Usage:") {
		t.Fatalf("expected usage, got %q", got)
	}
}

func TestShowAndList(t *testing.T) {
	h := newTestCommands(t)
	id := fileQuick(t, h)

	shown := h.Show(strings.ToLower(id))
	if !strings.Contains(shown, id) || !strings.Contains(shown, "Recent activity") {
		t.Fatalf("unexpected show reply: %q", shown)
	}
	if got := h.Show("CMP-2020-01-01-ABCDEF"); !strings.Contains(got, "No complaint") {
		t.Fatalf("expected not-found reply, got %q", got)
	}

	listed := h.List("category bug")
	if !strings.Contains(listed, id) {
		t.Fatalf("expected %s in list, got %q", id, listed)
	}
	if got := h.List("category gripes"); got != "Unknown category 'gripes'." {
		t.Fatalf("unexpected reply for unknown category: %q", got)
	}
	if got := h.List("status"); !strings.HasPrefix(got, "Usage:") {
		t.Fatalf("expected usage, got %q", got)
	}
	if got := h.List("severity critical"); got != "No complaints with severity critical." {
		t.Fatalf("unexpected empty list reply: %q", got)
	}
}

func TestSetStatusRequiresOperator(t *testing.T) {
	h := newTestCommands(t)
	id := fileQuick(t, h)

	if got := h.SetStatus("U1", id+" in_progress"); !strings.Contains(got, "only operators") {
		t.Fatalf("expected denial, got %q", got)
	}
	if got := h.SetStatus("UOPS", id+" closed"); !strings.Contains(got, "Cannot update") {
		t.Fatalf("expected invalid transition reply, got %q", got)
	}
	if got := h.SetStatus("UOPS", id+" in_progress looking now"); got != id+" is now in_progress." {
		t.Fatalf("unexpected reply: %q", got)
	}
	if got := h.SetStatus("UOPS", "CMP-2020-01-01-ZZZZZZ in_progress"); !strings.Contains(got, "No complaint") {
		t.Fatalf("expected not found, got %q", got)
	}
}

func TestSetStatusReprocess(t *testing.T) {
	h := newTestCommands(t)
	id := fileQuick(t, h)
	for _, step := range []string{"in_progress", "resolved", "closed", "reopened"} {
		if got := h.SetStatus("UOPS", id+" "+step); !strings.HasSuffix(got, "is now "+step+".") {
			t.Fatalf("step %s failed: %q", step, got)
		}
	}
	if got := h.SetStatus("UOPS", id+" reprocess"); !strings.Contains(got, "reprocessed") {
		t.Fatalf("unexpected reprocess reply: %q", got)
	}
}

func TestHelpShowsOperatorSection(t *testing.T) {
	h := newTestCommands(t)
	if strings.Contains(h.Help("U1"), "Operator Commands") {
		t.Fatalf("non-operator should not see operator commands")
	}
	if !strings.Contains(h.Help("UOPS"), "Operator Commands") {
		t.Fatalf("operator should see operator commands")
	}
}

func TestHint(t *testing.T) {
	h := newTestCommands(t)
	if _, ok := h.Hint("the upload button is broken again"); !ok {
		t.Fatalf("expected hint for a complaint-like message")
	}
	if _, ok := h.Hint("thanks, see you tomorrow"); ok {
		t.Fatalf("expected no hint for small talk")
	}
}

func TestStats(t *testing.T) {
	h := newTestCommands(t)
	fileQuick(t, h)
	got := h.Stats()
	if !strings.Contains(got, "Total: 1") || !strings.Contains(got, "- bug: 1") {
		t.Fatalf("unexpected stats reply: %q", got)
	}
}
