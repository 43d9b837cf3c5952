package domain

import (
	"slices"
	"strings"
	"time"
)

type Category string

const (
	CategoryBug              Category = "bug"
	CategoryModelBehavior    Category = "model_behavior"
	CategoryUXUI             Category = "ux_ui"
	CategoryFeatureRequest   Category = "feature_request"
	CategoryPolicyFriction   Category = "policy_friction"
	CategoryPerformance      Category = "performance"
	CategoryTrustSafety      Category = "trust_safety"
	CategoryMisunderstanding Category = "misunderstanding"
	CategoryOther            Category = "other"
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategoryBug,
	CategoryModelBehavior,
	CategoryUXUI,
	CategoryFeatureRequest,
	CategoryPolicyFriction,
	CategoryPerformance,
	CategoryTrustSafety,
	CategoryMisunderstanding,
	CategoryOther,
}

func (c Category) Valid() bool { return slices.Contains(Categories, c) }

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) Valid() bool { return slices.Contains(Severities, s) }

// Rank orders severities from low (0) to critical (3). Unknown values rank -1.
func (s Severity) Rank() int { return slices.Index(Severities, s) }

// AtLeast reports whether s is the same as or more severe than other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Valid() && s.Rank() >= other.Rank()
}

type Status string

const (
	StatusNew          Status = "new"
	StatusTriaged      Status = "triaged"
	StatusStructured   Status = "structured"
	StatusClustered    Status = "clustered"
	StatusRouted       Status = "routed"
	StatusInProgress   Status = "in_progress"
	StatusAwaitingUser Status = "awaiting_user"
	StatusResolved     Status = "resolved"
	StatusClosed       Status = "closed"
	StatusReopened     Status = "reopened"
)

var Statuses = []Status{
	StatusNew,
	StatusTriaged,
	StatusStructured,
	StatusClustered,
	StatusRouted,
	StatusInProgress,
	StatusAwaitingUser,
	StatusResolved,
	StatusClosed,
	StatusReopened,
}

func (s Status) Valid() bool { return slices.Contains(Statuses, s) }

// IntakeStage reports whether s belongs to the automatic intake pipeline
// (new through routed). Records are first persisted in one of these states.
func (s Status) IntakeStage() bool {
	switch s {
	case StatusNew, StatusTriaged, StatusStructured, StatusClustered, StatusRouted:
		return true
	}
	return false
}

type Frequency string

const (
	FrequencyOnce         Frequency = "once"
	FrequencyIntermittent Frequency = "intermittent"
	FrequencyPersistent   Frequency = "persistent"
	FrequencyUnknown      Frequency = "unknown"
)

var Frequencies = []Frequency{FrequencyOnce, FrequencyIntermittent, FrequencyPersistent, FrequencyUnknown}

func (f Frequency) Valid() bool { return slices.Contains(Frequencies, f) }

// ParseFrequency maps free text onto a frequency, falling back to unknown.
func ParseFrequency(s string) Frequency {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if f.Valid() {
		return f
	}
	return FrequencyUnknown
}

type RootCause string

const (
	RootCauseConstraintParsingFailure RootCause = "constraint_parsing_failure"
	RootCauseContextOverload          RootCause = "context_overload"
	RootCauseAmbiguousInstructions    RootCause = "ambiguous_instructions"
	RootCauseModelOvercorrection      RootCause = "model_overcorrection"
	RootCauseSystemBug                RootCause = "system_bug"
	RootCauseLatencyIssue             RootCause = "latency_issue"
	RootCauseUIConfusion              RootCause = "ui_confusion"
	RootCausePolicyBoundary           RootCause = "policy_boundary"
	RootCauseHallucination            RootCause = "hallucination"
	RootCauseDataAbsence              RootCause = "data_absence"
	RootCauseUnknown                  RootCause = "unknown"
)

var RootCauses = []RootCause{
	RootCauseConstraintParsingFailure,
	RootCauseContextOverload,
	RootCauseAmbiguousInstructions,
	RootCauseModelOvercorrection,
	RootCauseSystemBug,
	RootCauseLatencyIssue,
	RootCauseUIConfusion,
	RootCausePolicyBoundary,
	RootCauseHallucination,
	RootCauseDataAbsence,
	RootCauseUnknown,
}

func (r RootCause) Valid() bool { return slices.Contains(RootCauses, r) }

type RoutingTarget string

const (
	RouteSelfCorrection      RoutingTarget = "self_correction"
	RouteHumanReview         RoutingTarget = "human_review"
	RouteProductBacklog      RoutingTarget = "product_backlog"
	RouteSafetyEscalation    RoutingTarget = "safety_escalation"
	RouteDocumentationUpdate RoutingTarget = "documentation_update"
	RouteNone                RoutingTarget = "none"
)

var RoutingTargets = []RoutingTarget{
	RouteSelfCorrection,
	RouteHumanReview,
	RouteProductBacklog,
	RouteSafetyEscalation,
	RouteDocumentationUpdate,
	RouteNone,
}

func (r RoutingTarget) Valid() bool { return slices.Contains(RoutingTargets, r) }

type EvidenceType string

const (
	EvidenceText       EvidenceType = "text"
	EvidenceScreenshot EvidenceType = "screenshot"
	EvidenceLog        EvidenceType = "log"
	EvidenceLink       EvidenceType = "link"
)

type Evidence struct {
	Type    EvidenceType `json:"type" validate:"oneof=text screenshot log link"`
	Content string       `json:"content" validate:"required"`
}

type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	From      Status    `json:"from,omitempty"`
	To        Status    `json:"to,omitempty"`
}

// NotProvided fills a required narrative field the user never answered.
const NotProvided = "Not provided"

const MaxSummaryLen = 2000

// Complaint is the persisted record. JSON field names are the exchange format.
type Complaint struct {
	ID                  string        `json:"complaint_id" validate:"required,complaint_id"`
	ReportedAt          time.Time     `json:"reported_at" validate:"required"`
	IncidentAt          *time.Time    `json:"incident_at"`
	Status              Status        `json:"status" validate:"status"`
	UserSummary         string        `json:"user_summary,omitempty" validate:"max=2000"`
	PrimaryCategory     Category      `json:"primary_category" validate:"category"`
	SecondaryCategories []Category    `json:"secondary_categories" validate:"max=5,dive,category"`
	Severity            Severity      `json:"severity" validate:"severity"`
	SeverityBasis       []string      `json:"severity_basis"`
	Frequency           Frequency     `json:"frequency" validate:"frequency"`
	UserIntent          string        `json:"user_intent" validate:"required"`
	ObservedOutcome     string        `json:"observed_outcome" validate:"required"`
	ExpectedOutcome     string        `json:"expected_outcome" validate:"required"`
	Context             string        `json:"context,omitempty"`
	Evidence            []Evidence    `json:"evidence" validate:"dive"`
	ProbableRootCauses  []RootCause   `json:"probable_root_causes" validate:"dive,root_cause"`
	RelatedComplaints   []string      `json:"related_complaints" validate:"dive,complaint_id"`
	RoutingTarget       RoutingTarget `json:"routing_target,omitempty" validate:"omitempty,routing_target"`
	SuggestedFix        string        `json:"suggested_fix,omitempty"`
	Confidence          float64       `json:"confidence" validate:"gte=0,lte=1"`
	AuditTrail          []AuditEntry  `json:"audit_trail"`
}

// Draft is what intake hands to the pipeline. Any narrative field may be
// empty until intake applies its fallbacks.
type Draft struct {
	UserSummary     string     `validate:"max=2000"`
	UserIntent      string     `validate:"required"`
	ObservedOutcome string     `validate:"required"`
	ExpectedOutcome string     `validate:"required"`
	Frequency       Frequency  `validate:"omitempty,frequency"`
	Context         string
	IncidentAt      *time.Time
	Evidence        []Evidence `validate:"dive"`
}

// Provided reports whether a narrative value came from the user rather than
// from a fallback.
func Provided(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != NotProvided
}

// DefaultedPillars counts required narrative fields that are empty or were
// filled with NotProvided.
func (d Draft) DefaultedPillars() int {
	n := 0
	for _, v := range []string{d.UserIntent, d.ObservedOutcome, d.ExpectedOutcome} {
		if !Provided(v) {
			n++
		}
	}
	return n
}

// DraftOf rebuilds the classifier input from a stored record.
func DraftOf(c Complaint) Draft {
	return Draft{
		UserSummary:     c.UserSummary,
		UserIntent:      c.UserIntent,
		ObservedOutcome: c.ObservedOutcome,
		ExpectedOutcome: c.ExpectedOutcome,
		Frequency:       c.Frequency,
		Context:         c.Context,
		IncidentAt:      c.IncidentAt,
		Evidence:        c.Evidence,
	}
}

type Statistics struct {
	TotalCount       int            `json:"total_count"`
	CountsByCategory map[string]int `json:"counts_by_category"`
	CountsBySeverity map[string]int `json:"counts_by_severity"`
	CountsByStatus   map[string]int `json:"counts_by_status"`
}
