// Package complaint drives a draft through the intake pipeline
// (new -> triaged -> structured -> clustered -> routed) and exposes the
// operator-facing status operations on stored records.
package complaint

import (
	"fmt"
	"log"
	"slices"
	"time"

	"complaintdesk/internal/classifier"
	"complaintdesk/internal/domain"
	"complaintdesk/internal/lifecycle"
	"complaintdesk/internal/router"
	"complaintdesk/internal/rules"
	"complaintdesk/internal/similarity"
)

const (
	SystemActor      = "system"
	intakeAction     = "Complaint intake initiated"
	maxIDAttempts    = 5
	reprocessComment = "reprocessing after reopen"
)

type Store interface {
	Save(c domain.Complaint) (string, error)
	Load(id string) (domain.Complaint, error)
	Exists(id string) (bool, error)
	UpdateStatus(id string, to domain.Status, actor, note string) (domain.Complaint, error)
	SearchByCategory(category domain.Category) ([]domain.Complaint, error)
	SearchBySeverity(severity domain.Severity) ([]domain.Complaint, error)
	SearchByStatus(status domain.Status) ([]domain.Complaint, error)
	Statistics() (domain.Statistics, error)
}

// Notifier is told about every complaint that reaches routed.
type Notifier interface {
	ComplaintRouted(c domain.Complaint) error
}

// Result is what the caller shows back to the reporter after filing.
type Result struct {
	Complaint      domain.Complaint
	Classification classifier.Result
	Related        []similarity.Match
	RouteRule      string
}

type Service struct {
	store      Store
	classifier *classifier.Classifier
	matcher    *similarity.Matcher
	notifier   Notifier
	now        func() time.Time
	newID      func(time.Time) string
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func(time.Time) string) Option {
	return func(s *Service) { s.newID = gen }
}

func NewService(store Store, r *rules.Rules, similarityThreshold float64, opts ...Option) *Service {
	s := &Service{
		store:      store,
		classifier: classifier.New(r),
		matcher:    similarity.New(r, similarityThreshold),
		now:        time.Now,
		newID:      domain.NewComplaintID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// File validates a draft, runs the whole intake pipeline and persists the
// routed record. Nothing is stored when any step fails.
func (s *Service) File(d domain.Draft, actor string) (Result, error) {
	if err := domain.ValidateDraft(d); err != nil {
		return Result{}, err
	}
	actor = actorOrSystem(actor)
	now := s.now()

	id, err := s.allocateID(now)
	if err != nil {
		return Result{}, err
	}

	freq := d.Frequency
	if freq == "" {
		freq = domain.FrequencyUnknown
	}
	c := domain.Complaint{
		ID:              id,
		ReportedAt:      now,
		IncidentAt:      d.IncidentAt,
		Status:          domain.StatusNew,
		UserSummary:     d.UserSummary,
		Frequency:       freq,
		UserIntent:      d.UserIntent,
		ObservedOutcome: d.ObservedOutcome,
		ExpectedOutcome: d.ExpectedOutcome,
		Context:         d.Context,
		Evidence:        d.Evidence,
	}
	lifecycle.Record(&c, actor, intakeAction, now)

	res, err := s.process(&c, actor, "intake complete", false)
	if err != nil {
		return Result{}, err
	}
	if _, err := s.store.Save(c); err != nil {
		return Result{}, err
	}
	res.Complaint = c

	log.Printf("complaint filed id=%s category=%s severity=%s target=%s related=%d confidence=%.2f",
		c.ID, c.PrimaryCategory, c.Severity, c.RoutingTarget, len(c.RelatedComplaints), c.Confidence)
	s.notify(c)
	return res, nil
}

// Reprocess runs a reopened complaint through the pipeline again. The
// primary category is kept; severity, causes, fix, related complaints and
// routing are recomputed.
func (s *Service) Reprocess(id, actor string) (Result, error) {
	c, err := s.store.Load(id)
	if err != nil {
		return Result{}, err
	}
	if c.Status != domain.StatusReopened {
		return Result{}, &domain.InvalidTransitionError{From: c.Status, To: domain.StatusTriaged}
	}
	actor = actorOrSystem(actor)

	res, err := s.process(&c, actor, reprocessComment, true)
	if err != nil {
		return Result{}, err
	}
	if _, err := s.store.Save(c); err != nil {
		return Result{}, err
	}
	res.Complaint = c

	log.Printf("complaint reprocessed id=%s severity=%s target=%s", c.ID, c.Severity, c.RoutingTarget)
	s.notify(c)
	return res, nil
}

// process moves c from new or reopened to routed, appending one audit entry
// per step. It works on a copy and only writes back on success.
func (s *Service) process(c *domain.Complaint, actor, triageNote string, keepCategory bool) (Result, error) {
	work := *c
	work.AuditTrail = slices.Clone(c.AuditTrail)
	work.SeverityBasis = slices.Clone(c.SeverityBasis)
	now := s.now()

	if err := lifecycle.Transition(&work, domain.StatusTriaged, actor, triageNote, now); err != nil {
		return Result{}, err
	}

	draft := domain.DraftOf(work)
	cls := s.classifier.Classify(draft)
	if keepCategory {
		blob := classifier.Blob(draft)
		cls.PrimaryCategory = work.PrimaryCategory
		cls.SecondaryCategories = work.SecondaryCategories
		cls.Severity, cls.SeverityScore, cls.SeverityBasis = s.classifier.Severity(blob, work.Frequency, work.PrimaryCategory)
		cls.SuggestedFix = s.classifier.SuggestFix(work.PrimaryCategory, cls.RootCauses)
	} else {
		work.PrimaryCategory = cls.PrimaryCategory
		work.SecondaryCategories = cls.SecondaryCategories
	}
	work.Severity = cls.Severity
	work.SeverityBasis = appendNew(work.SeverityBasis, cls.SeverityBasis)
	work.ProbableRootCauses = cls.RootCauses
	work.SuggestedFix = cls.SuggestedFix
	work.Confidence = cls.Confidence
	if err := lifecycle.Transition(&work, domain.StatusStructured, actor,
		fmt.Sprintf("category=%s severity=%s", work.PrimaryCategory, work.Severity), now); err != nil {
		return Result{}, err
	}

	candidates, err := s.store.SearchByCategory(work.PrimaryCategory)
	if err != nil {
		return Result{}, fmt.Errorf("load cluster candidates: %w", err)
	}
	related := s.matcher.FindRelated(work.ID, draft, candidates)
	work.RelatedComplaints = similarity.IDs(related)
	if err := lifecycle.Transition(&work, domain.StatusClustered, actor,
		fmt.Sprintf("%d related", len(related)), now); err != nil {
		return Result{}, err
	}

	target, rule := router.Explain(router.Input{
		Category:   work.PrimaryCategory,
		Severity:   work.Severity,
		RootCauses: work.ProbableRootCauses,
		Frequency:  work.Frequency,
	})
	work.RoutingTarget = target
	if err := lifecycle.Transition(&work, domain.StatusRouted, actor,
		fmt.Sprintf("target=%s rule=%s", target, rule), now); err != nil {
		return Result{}, err
	}

	*c = work
	return Result{Classification: cls, Related: related, RouteRule: rule}, nil
}

// appendNew keeps basis append-only while skipping reasons already recorded.
func appendNew(basis, reasons []string) []string {
	for _, r := range reasons {
		if !slices.Contains(basis, r) {
			basis = append(basis, r)
		}
	}
	return basis
}

func (s *Service) allocateID(now time.Time) (string, error) {
	for range maxIDAttempts {
		id := s.newID(now)
		exists, err := s.store.Exists(id)
		if err != nil {
			return "", fmt.Errorf("check complaint id: %w", err)
		}
		if !exists {
			return id, nil
		}
		log.Printf("complaint id collision id=%s", id)
	}
	return "", fmt.Errorf("could not allocate a unique complaint id after %d attempts", maxIDAttempts)
}

func (s *Service) notify(c domain.Complaint) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ComplaintRouted(c); err != nil {
		log.Printf("complaint notify failed id=%s target=%s err=%v", c.ID, c.RoutingTarget, err)
	}
}

// UpdateStatus applies an operator transition.
func (s *Service) UpdateStatus(id string, to domain.Status, actor, note string) (domain.Complaint, error) {
	if !to.Valid() {
		return domain.Complaint{}, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", to)}
	}
	c, err := s.store.UpdateStatus(id, to, actorOrSystem(actor), note)
	if err != nil {
		return domain.Complaint{}, err
	}
	log.Printf("complaint status id=%s status=%s actor=%s", c.ID, c.Status, actorOrSystem(actor))
	return c, nil
}

func (s *Service) StartWork(id, actor string) (domain.Complaint, error) {
	return s.UpdateStatus(id, domain.StatusInProgress, actor, "")
}

func (s *Service) AwaitUser(id, actor, question string) (domain.Complaint, error) {
	return s.UpdateStatus(id, domain.StatusAwaitingUser, actor, question)
}

func (s *Service) Resolve(id, actor, resolution string) (domain.Complaint, error) {
	return s.UpdateStatus(id, domain.StatusResolved, actor, resolution)
}

func (s *Service) Close(id, actor string) (domain.Complaint, error) {
	return s.UpdateStatus(id, domain.StatusClosed, actor, "")
}

func (s *Service) Reopen(id, actor, reason string) (domain.Complaint, error) {
	return s.UpdateStatus(id, domain.StatusReopened, actor, reason)
}

func (s *Service) Get(id string) (domain.Complaint, error) {
	return s.store.Load(id)
}

func (s *Service) ListByCategory(c domain.Category) ([]domain.Complaint, error) {
	if !c.Valid() {
		return nil, &domain.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", c)}
	}
	return s.store.SearchByCategory(c)
}

func (s *Service) ListBySeverity(sev domain.Severity) ([]domain.Complaint, error) {
	if !sev.Valid() {
		return nil, &domain.ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", sev)}
	}
	return s.store.SearchBySeverity(sev)
}

func (s *Service) ListByStatus(st domain.Status) ([]domain.Complaint, error) {
	if !st.Valid() {
		return nil, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", st)}
	}
	return s.store.SearchByStatus(st)
}

func (s *Service) Statistics() (domain.Statistics, error) {
	return s.store.Statistics()
}

// IsTrigger reports whether free chat text reads like a complaint.
func (s *Service) IsTrigger(text string) bool {
	return s.classifier.IsComplaintTrigger(text)
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return SystemActor
	}
	return actor
}
