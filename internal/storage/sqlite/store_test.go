package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"complaintdesk/internal/domain"
	"complaintdesk/internal/lifecycle"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "complaints-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func routedComplaint(id string, reportedAt time.Time, cat domain.Category, sev domain.Severity) domain.Complaint {
	return domain.Complaint{
		ID:                 id,
		ReportedAt:         reportedAt,
		Status:             domain.StatusRouted,
		PrimaryCategory:    cat,
		Severity:           sev,
		SeverityBasis:      []string{"Default severity based on available information"},
		Frequency:          domain.FrequencyOnce,
		UserIntent:         "Upload a file",
		ObservedOutcome:    "Upload failed",
		ExpectedOutcome:    "Upload succeeds",
		ProbableRootCauses: []domain.RootCause{domain.RootCauseSystemBug},
		RoutingTarget:      domain.RouteHumanReview,
		Confidence:         1,
		AuditTrail: []domain.AuditEntry{
			{Timestamp: reportedAt, Actor: "system", Action: "Complaint intake initiated"},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := routedComplaint("CMP-2026-03-01-ABC123", base, domain.CategoryBug, domain.SeverityMedium)
	c.Evidence = []domain.Evidence{{Type: domain.EvidenceLink, Content: "https://example.com/log"}}

	id, err := s.Save(c)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id != c.ID {
		t.Fatalf("expected id %s, got %s", c.ID, id)
	}

	got, err := s.Load(id)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.PrimaryCategory != domain.CategoryBug || got.Status != domain.StatusRouted {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.ReportedAt.Equal(base) {
		t.Fatalf("expected reported_at %v, got %v", base, got.ReportedAt)
	}
	if len(got.Evidence) != 1 || got.Evidence[0].Type != domain.EvidenceLink {
		t.Fatalf("expected evidence to survive, got %+v", got.Evidence)
	}
	if len(got.AuditTrail) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(got.AuditTrail))
	}

	ok, err := s.Exists(id)
	if err != nil || !ok {
		t.Fatalf("Exists failed: ok=%v err=%v", ok, err)
	}
}

func TestLoadUnknownIDIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load("CMP-2026-03-01-ZZZZZZ")
	if !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSaveRejectsInvalidRecords(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*domain.Complaint)
	}{
		{"bad id", func(c *domain.Complaint) { c.ID = "CMP-1" }},
		{"missing intent", func(c *domain.Complaint) { c.UserIntent = "" }},
		{"bad severity", func(c *domain.Complaint) { c.Severity = "severe" }},
		{"confidence above one", func(c *domain.Complaint) { c.Confidence = 1.5 }},
		{"self reference", func(c *domain.Complaint) { c.RelatedComplaints = []string{c.ID} }},
		{"first save past routing", func(c *domain.Complaint) { c.Status = domain.StatusInProgress }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := routedComplaint("CMP-2026-03-01-VAL001", base, domain.CategoryBug, domain.SeverityLow)
			tt.mutate(&c)
			if _, err := s.Save(c); !domain.IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	st, err := s.Statistics()
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if st.TotalCount != 0 {
		t.Fatalf("expected nothing persisted, got %d records", st.TotalCount)
	}
}

func TestUpdateStatusAppliesLifecycle(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	c := routedComplaint("CMP-2026-03-01-LIFE01", fixed.Add(-time.Hour), domain.CategoryBug, domain.SeverityLow)
	if _, err := s.Save(c); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.UpdateStatus(c.ID, domain.StatusInProgress, "U123", "picked up")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if got.Status != domain.StatusInProgress || len(got.AuditTrail) != 2 {
		t.Fatalf("unexpected record after update: status=%s audit=%d", got.Status, len(got.AuditTrail))
	}
	last := got.AuditTrail[1]
	if last.Actor != "U123" || last.From != domain.StatusRouted || last.To != domain.StatusInProgress || !last.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected audit entry: %+v", last)
	}

	if _, err := s.UpdateStatus(c.ID, domain.StatusClosed, "U123", ""); !domain.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	stored, err := s.Load(c.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stored.Status != domain.StatusInProgress || len(stored.AuditTrail) != 2 {
		t.Fatalf("illegal transition changed the record: status=%s audit=%d", stored.Status, len(stored.AuditTrail))
	}

	inProgress, err := s.SearchByStatus(domain.StatusInProgress)
	if err != nil {
		t.Fatalf("SearchByStatus failed: %v", err)
	}
	if len(inProgress) != 1 {
		t.Fatalf("expected status index to follow the update, got %d", len(inProgress))
	}
	routed, err := s.SearchByStatus(domain.StatusRouted)
	if err != nil {
		t.Fatalf("SearchByStatus failed: %v", err)
	}
	if len(routed) != 0 {
		t.Fatalf("expected stale status index entry to be removed, got %d", len(routed))
	}

	if _, err := s.UpdateStatus("CMP-2026-03-01-NOPE00", domain.StatusInProgress, "U123", ""); !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSearchOrdersMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	records := []domain.Complaint{
		routedComplaint("CMP-2026-03-01-AAAAAA", base, domain.CategoryBug, domain.SeverityMedium),
		routedComplaint("CMP-2026-03-01-BBBBBB", base.Add(2*time.Hour), domain.CategoryBug, domain.SeverityHigh),
		routedComplaint("CMP-2026-03-01-CCCCCC", base.Add(time.Hour), domain.CategoryPerformance, domain.SeverityMedium),
	}
	for _, c := range records {
		if _, err := s.Save(c); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	bugs, err := s.SearchByCategory(domain.CategoryBug)
	if err != nil {
		t.Fatalf("SearchByCategory failed: %v", err)
	}
	if len(bugs) != 2 || bugs[0].ID != "CMP-2026-03-01-BBBBBB" || bugs[1].ID != "CMP-2026-03-01-AAAAAA" {
		t.Fatalf("unexpected category search result: %+v", ids(bugs))
	}

	medium, err := s.SearchBySeverity(domain.SeverityMedium)
	if err != nil {
		t.Fatalf("SearchBySeverity failed: %v", err)
	}
	if len(medium) != 2 || medium[0].ID != "CMP-2026-03-01-CCCCCC" {
		t.Fatalf("unexpected severity search result: %+v", ids(medium))
	}

	none, err := s.SearchByCategory(domain.CategoryTrustSafety)
	if err != nil {
		t.Fatalf("SearchByCategory failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no trust_safety records, got %d", len(none))
	}
}

func TestStatisticsCountsIndices(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, c := range []domain.Complaint{
		routedComplaint("CMP-2026-03-01-ST0001", base, domain.CategoryBug, domain.SeverityMedium),
		routedComplaint("CMP-2026-03-01-ST0002", base, domain.CategoryBug, domain.SeverityCritical),
		routedComplaint("CMP-2026-03-01-ST0003", base, domain.CategoryUXUI, domain.SeverityLow),
	} {
		if _, err := s.Save(c); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if _, err := s.UpdateStatus("CMP-2026-03-01-ST0003", domain.StatusInProgress, "U1", ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	st, err := s.Statistics()
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if st.TotalCount != 3 {
		t.Fatalf("expected total 3, got %d", st.TotalCount)
	}
	if st.CountsByCategory["bug"] != 2 || st.CountsByCategory["ux_ui"] != 1 {
		t.Fatalf("unexpected category counts: %v", st.CountsByCategory)
	}
	if st.CountsBySeverity["critical"] != 1 || st.CountsBySeverity["medium"] != 1 || st.CountsBySeverity["low"] != 1 {
		t.Fatalf("unexpected severity counts: %v", st.CountsBySeverity)
	}
	if st.CountsByStatus["routed"] != 2 || st.CountsByStatus["in_progress"] != 1 {
		t.Fatalf("unexpected status counts: %v", st.CountsByStatus)
	}
}

func TestResaveReplacesIndexEntries(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := routedComplaint("CMP-2026-03-01-RESAVE", base, domain.CategoryBug, domain.SeverityLow)
	if _, err := s.Save(c); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	c.Severity = domain.SeverityHigh
	if _, err := s.Save(c); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	low, err := s.SearchBySeverity(domain.SeverityLow)
	if err != nil {
		t.Fatalf("SearchBySeverity failed: %v", err)
	}
	high, err := s.SearchBySeverity(domain.SeverityHigh)
	if err != nil {
		t.Fatalf("SearchBySeverity failed: %v", err)
	}
	if len(low) != 0 || len(high) != 1 {
		t.Fatalf("expected index to move from low to high, got low=%d high=%d", len(low), len(high))
	}
}

func TestResaveCannotBypassLifecycle(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := routedComplaint("CMP-2026-03-01-GUARD1", base, domain.CategoryBug, domain.SeverityLow)
	if _, err := s.Save(c); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*domain.Complaint)
	}{
		{"status without transition", func(c *domain.Complaint) { c.Status = domain.StatusClosed }},
		{"audit trail erased", func(c *domain.Complaint) { c.AuditTrail = nil }},
		{"audit entry rewritten", func(c *domain.Complaint) { c.AuditTrail[0].Actor = "someone else" }},
		{"primary category changed", func(c *domain.Complaint) { c.PrimaryCategory = domain.CategoryOther }},
		{"reported_at changed", func(c *domain.Complaint) { c.ReportedAt = base.Add(time.Hour) }},
		{"illegal audited transition", func(c *domain.Complaint) {
			c.Status = domain.StatusClosed
			c.AuditTrail = append(c.AuditTrail, domain.AuditEntry{
				Timestamp: base.Add(time.Minute),
				Actor:     "ops",
				Action:    "Status changed: routed -> closed",
				From:      domain.StatusRouted,
				To:        domain.StatusClosed,
			})
		}},
		{"combined rewrite", func(c *domain.Complaint) {
			c.Status = domain.StatusClosed
			c.AuditTrail = nil
			c.PrimaryCategory = domain.CategoryOther
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := c
			next.AuditTrail = append([]domain.AuditEntry(nil), c.AuditTrail...)
			tt.mutate(&next)
			if _, err := s.Save(next); !domain.IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	stored, err := s.Load(c.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stored.Status != domain.StatusRouted || stored.PrimaryCategory != domain.CategoryBug || len(stored.AuditTrail) != 1 {
		t.Fatalf("rejected saves changed the record: status=%s category=%s audit=%d", stored.Status, stored.PrimaryCategory, len(stored.AuditTrail))
	}
}

func TestResaveAcceptsAuditedTransitions(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := routedComplaint("CMP-2026-03-01-GUARD2", base, domain.CategoryBug, domain.SeverityLow)
	if _, err := s.Save(c); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	for _, to := range []domain.Status{domain.StatusInProgress, domain.StatusResolved, domain.StatusClosed, domain.StatusReopened} {
		if _, err := s.UpdateStatus(c.ID, to, "ops", ""); err != nil {
			t.Fatalf("UpdateStatus to %s failed: %v", to, err)
		}
	}

	reopened, err := s.Load(c.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	at := base.Add(24 * time.Hour)
	for _, to := range []domain.Status{domain.StatusTriaged, domain.StatusStructured, domain.StatusClustered, domain.StatusRouted} {
		if err := lifecycle.Transition(&reopened, to, "system", "", at); err != nil {
			t.Fatalf("Transition to %s failed: %v", to, err)
		}
	}
	reopened.Severity = domain.SeverityHigh
	if _, err := s.Save(reopened); err != nil {
		t.Fatalf("Save after reprocessing failed: %v", err)
	}
	stored, err := s.Load(c.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stored.Status != domain.StatusRouted || stored.Severity != domain.SeverityHigh || len(stored.AuditTrail) != 9 {
		t.Fatalf("unexpected record: status=%s severity=%s audit=%d", stored.Status, stored.Severity, len(stored.AuditTrail))
	}
}

func ids(cs []domain.Complaint) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
