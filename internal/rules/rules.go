// Package rules holds the static tables the classifier, matcher and intake
// read from. Tables are loaded once at startup and never mutated afterwards,
// so a *Rules value is safe to share between goroutines.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"complaintdesk/internal/domain"
)

//go:embed rules.yaml
var defaultRules []byte

type CategoryRule struct {
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

type CategoryBoost struct {
	Category domain.Category `yaml:"category"`
	Bonus    int             `yaml:"bonus"`
	Phrases  []string        `yaml:"phrases"`
}

type SeverityKeyword struct {
	Phrase string `yaml:"phrase"`
	Weight *int   `yaml:"weight"`
}

// Points returns the declared weight, defaulting to 1.
func (k SeverityKeyword) Points() int {
	if k.Weight == nil {
		return 1
	}
	return *k.Weight
}

type SeverityThresholds struct {
	Critical int `yaml:"critical"`
	High     int `yaml:"high"`
	Medium   int `yaml:"medium"`
}

type SeverityRules struct {
	Keywords           []SeverityKeyword        `yaml:"keywords"`
	FrequencyWeights   map[domain.Frequency]int `yaml:"frequency_weights"`
	ImpactPhrases      []string                 `yaml:"impact_phrases"`
	ImpactWeight       int                      `yaml:"impact_weight"`
	ElevatedCategories []domain.Category        `yaml:"elevated_categories"`
	ElevatedWeight     int                      `yaml:"elevated_weight"`
	Thresholds         SeverityThresholds       `yaml:"thresholds"`
}

type RootCauseRule struct {
	Cause    domain.RootCause `yaml:"cause"`
	Patterns []string         `yaml:"patterns"`
}

// FixRule maps a (category, root cause) pair to a suggested fix. An empty
// RootCause makes it the category-wide fallback.
type FixRule struct {
	Category  domain.Category  `yaml:"category"`
	RootCause domain.RootCause `yaml:"root_cause"`
	Fix       string           `yaml:"fix"`
}

type ConfidenceRules struct {
	Base           float64 `yaml:"base"`
	DefaultPenalty float64 `yaml:"default_penalty"`
	Floor          float64 `yaml:"floor"`
}

type SimilarityRules struct {
	Threshold   float64 `yaml:"threshold"`
	MinTokenLen int     `yaml:"min_token_len"`
}

type IntakeRules struct {
	MaxRounds int                 `yaml:"max_rounds"`
	Questions map[string][]string `yaml:"questions"`
}

type Rules struct {
	CategoryPriority []domain.Category                `yaml:"category_priority"`
	SecondaryMargin  float64                          `yaml:"secondary_margin"`
	MaxSecondary     int                              `yaml:"max_secondary"`
	Categories       map[domain.Category]CategoryRule `yaml:"categories"`
	CategoryBoosts   []CategoryBoost                  `yaml:"category_boosts"`
	Severity         SeverityRules                    `yaml:"severity"`
	RootCauses       []RootCauseRule                  `yaml:"root_causes"`
	Fixes            []FixRule                        `yaml:"fixes"`
	DefaultFix       string                           `yaml:"default_fix"`
	Confidence       ConfidenceRules                  `yaml:"confidence"`
	Similarity       SimilarityRules                  `yaml:"similarity"`
	StopWords        []string                         `yaml:"stop_words"`
	Triggers         []string                         `yaml:"triggers"`
	Intake           IntakeRules                      `yaml:"intake"`

	compiled compiled
}

type compiled struct {
	categoryKeywords map[domain.Category][]string
	boosts           []*PhraseSet
	severity         *PhraseSet
	impact           *PhraseSet
	rootCauses       []*PhraseSet
	stopWords        map[string]bool
	triggers         []*regexp.Regexp
	elevated         map[domain.Category]bool
}

// Default returns the embedded rule tables.
func Default() (*Rules, error) {
	return Parse(defaultRules)
}

// Load reads rule tables from path, or the embedded defaults when path is empty.
func Load(path string) (*Rules, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}
	if err := r.check(); err != nil {
		return nil, err
	}
	r.compile()
	return &r, nil
}

func (r *Rules) check() error {
	if len(r.CategoryPriority) != len(domain.Categories) {
		return fmt.Errorf("category_priority must list all %d categories, got %d", len(domain.Categories), len(r.CategoryPriority))
	}
	seen := make(map[domain.Category]bool)
	for _, c := range r.CategoryPriority {
		if !c.Valid() {
			return fmt.Errorf("category_priority: unknown category %q", c)
		}
		if seen[c] {
			return fmt.Errorf("category_priority: duplicate category %q", c)
		}
		seen[c] = true
	}
	for c := range r.Categories {
		if !c.Valid() {
			return fmt.Errorf("categories: unknown category %q", c)
		}
	}
	for _, b := range r.CategoryBoosts {
		if !b.Category.Valid() {
			return fmt.Errorf("category_boosts: unknown category %q", b.Category)
		}
	}
	for _, c := range r.Severity.ElevatedCategories {
		if !c.Valid() {
			return fmt.Errorf("severity.elevated_categories: unknown category %q", c)
		}
	}
	t := r.Severity.Thresholds
	if !(t.Critical > t.High && t.High > t.Medium && t.Medium > 0) {
		return fmt.Errorf("severity.thresholds must satisfy critical > high > medium > 0, got %d/%d/%d", t.Critical, t.High, t.Medium)
	}
	for _, rc := range r.RootCauses {
		if !rc.Cause.Valid() || rc.Cause == domain.RootCauseUnknown {
			return fmt.Errorf("root_causes: invalid cause %q", rc.Cause)
		}
	}
	for _, f := range r.Fixes {
		if !f.Category.Valid() {
			return fmt.Errorf("fixes: unknown category %q", f.Category)
		}
		if f.RootCause != "" && !f.RootCause.Valid() {
			return fmt.Errorf("fixes: unknown root cause %q", f.RootCause)
		}
	}
	if r.SecondaryMargin < 0 || r.SecondaryMargin > 1 {
		return fmt.Errorf("secondary_margin must be between 0 and 1, got %f", r.SecondaryMargin)
	}
	if r.MaxSecondary < 0 || r.MaxSecondary > 5 {
		return fmt.Errorf("max_secondary must be between 0 and 5, got %d", r.MaxSecondary)
	}
	c := r.Confidence
	if c.Floor < 0 || c.Base > 1 || c.Floor > c.Base || c.DefaultPenalty < 0 {
		return fmt.Errorf("confidence must satisfy 0 <= floor <= base <= 1 and penalty >= 0")
	}
	if r.Similarity.Threshold <= 0 || r.Similarity.Threshold > 1 {
		return fmt.Errorf("similarity.threshold must be in (0, 1], got %f", r.Similarity.Threshold)
	}
	if r.Intake.MaxRounds < 1 {
		return fmt.Errorf("intake.max_rounds must be >= 1, got %d", r.Intake.MaxRounds)
	}
	for _, expr := range r.Triggers {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("triggers: %q: %w", expr, err)
		}
	}
	return nil
}

func (r *Rules) compile() {
	c := compiled{
		categoryKeywords: make(map[domain.Category][]string, len(r.Categories)),
		stopWords:        make(map[string]bool, len(r.StopWords)),
		elevated:         make(map[domain.Category]bool),
	}
	for cat, rule := range r.Categories {
		c.categoryKeywords[cat] = normalizeAll(rule.Keywords)
	}
	for _, b := range r.CategoryBoosts {
		c.boosts = append(c.boosts, NewPhraseSet(b.Phrases))
	}
	phrases := make([]string, len(r.Severity.Keywords))
	for i, k := range r.Severity.Keywords {
		phrases[i] = k.Phrase
	}
	c.severity = NewPhraseSet(phrases)
	c.impact = NewPhraseSet(r.Severity.ImpactPhrases)
	for _, rc := range r.RootCauses {
		c.rootCauses = append(c.rootCauses, NewPhraseSet(rc.Patterns))
	}
	for _, w := range r.StopWords {
		c.stopWords[Normalize(w)] = true
	}
	for _, expr := range r.Triggers {
		c.triggers = append(c.triggers, regexp.MustCompile(expr))
	}
	for _, cat := range r.Severity.ElevatedCategories {
		c.elevated[cat] = true
	}
	r.compiled = c
}

// CategoryKeywords returns the normalized keyword list for a category.
func (r *Rules) CategoryKeywords(c domain.Category) []string {
	return r.compiled.categoryKeywords[c]
}

// BoostPhrases returns the matcher for the i-th entry of CategoryBoosts.
func (r *Rules) BoostPhrases(i int) *PhraseSet { return r.compiled.boosts[i] }

// SeverityPhrases is aligned index-for-index with Severity.Keywords.
func (r *Rules) SeverityPhrases() *PhraseSet { return r.compiled.severity }

func (r *Rules) ImpactPhrases() *PhraseSet { return r.compiled.impact }

// RootCausePhrases returns the matcher for the i-th entry of RootCauses.
func (r *Rules) RootCausePhrases(i int) *PhraseSet { return r.compiled.rootCauses[i] }

func (r *Rules) IsStopWord(token string) bool { return r.compiled.stopWords[token] }

func (r *Rules) Elevated(c domain.Category) bool { return r.compiled.elevated[c] }

func (r *Rules) TriggerPatterns() []*regexp.Regexp { return r.compiled.triggers }

// Normalize case-folds text for matching.
func Normalize(s string) string {
	// Casers carry state, so each call gets its own.
	return cases.Fold().String(strings.TrimSpace(s))
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := Normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// PhraseSet answers "which of these phrases occur in the text" in one pass.
type PhraseSet struct {
	phrases []string
	index   []int // position in phrases for each matcher dictionary entry
	matcher *ahocorasick.Matcher
}

func NewPhraseSet(phrases []string) *PhraseSet {
	ps := &PhraseSet{phrases: make([]string, len(phrases))}
	var dict []string
	for i, p := range phrases {
		n := Normalize(p)
		ps.phrases[i] = n
		if n == "" {
			continue
		}
		dict = append(dict, n)
		ps.index = append(ps.index, i)
	}
	if len(dict) > 0 {
		ps.matcher = ahocorasick.NewStringMatcher(dict)
	}
	return ps
}

// Present returns a flag per phrase, in declaration order. text must
// already be normalized.
func (ps *PhraseSet) Present(text string) []bool {
	found := make([]bool, len(ps.phrases))
	if ps.matcher == nil || text == "" {
		return found
	}
	for _, hit := range ps.matcher.MatchThreadSafe([]byte(text)) {
		if hit >= 0 && hit < len(ps.index) {
			found[ps.index[hit]] = true
		}
	}
	return found
}

// Any reports whether at least one phrase occurs in text.
func (ps *PhraseSet) Any(text string) bool {
	for _, ok := range ps.Present(text) {
		if ok {
			return true
		}
	}
	return false
}

// Phrase returns the normalized phrase at position i.
func (ps *PhraseSet) Phrase(i int) string { return ps.phrases[i] }

func (ps *PhraseSet) Len() int { return len(ps.phrases) }
