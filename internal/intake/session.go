// Package intake collects the three narrative fields of a complaint, either
// from a one-line quick form or through a short question-and-answer session.
package intake

import (
	"math/rand/v2"
	"strings"
	"sync"

	"complaintdesk/internal/domain"
)

const (
	FieldIntent   = "user_intent"
	FieldObserved = "observed_outcome"
	FieldExpected = "expected_outcome"
)

// Pillars is the order in which missing fields are asked for.
var Pillars = []string{FieldIntent, FieldObserved, FieldExpected}

// Picker chooses one of n question templates.
type Picker func(n int) int

func RandomPicker(n int) int { return rand.IntN(n) }

// FirstPicker always asks the first template.
func FirstPicker(int) int { return 0 }

// Session is one reporter's intake conversation. Its methods are safe to
// call from concurrent command handlers.
type Session struct {
	mu sync.Mutex

	questions map[string][]string
	maxRounds int
	pick      Picker

	draft   domain.Draft
	queue   []string
	rounds  int
	asking  string
	pending bool
	claimed bool
}

// NewSession starts a session whose opening message becomes the summary.
// Fields already present in seed are not asked again.
func NewSession(questions map[string][]string, maxRounds int, pick Picker, seed domain.Draft) *Session {
	if pick == nil {
		pick = RandomPicker
	}
	if maxRounds < 1 {
		maxRounds = 1
	}
	s := &Session{questions: questions, maxRounds: maxRounds, pick: pick, draft: seed}
	for _, f := range Pillars {
		if !domain.Provided(s.get(f)) {
			s.queue = append(s.queue, f)
		}
	}
	return s
}

// Next returns the question to ask, or false when intake is finished. Calling
// it again before Answer returns the same field.
func (s *Session) Next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next()
}

func (s *Session) next() (string, bool) {
	if s.done() {
		return "", false
	}
	if !s.pending {
		s.asking = s.queue[0]
		s.pending = true
	}
	return s.question(s.asking), true
}

// Answer records the reply to the last question. A blank reply still uses up
// a round and the field is asked again.
func (s *Session) Answer(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer(text)
}

func (s *Session) answer(text string) {
	if !s.pending || s.done() {
		return
	}
	s.rounds++
	s.pending = false
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.set(s.asking, text)
	s.queue = s.queue[1:]
}

// Reply answers the pending question and returns the next one. Once intake
// is finished, exactly one caller gets claimed=true and should file the
// draft; later replies get neither a question nor the claim.
func (s *Session) Reply(text string) (question string, more bool, claimed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed {
		return "", false, false
	}
	s.answer(text)
	if q, ok := s.next(); ok {
		return q, true, false
	}
	s.claimed = true
	return "", false, true
}

func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done()
}

func (s *Session) done() bool {
	return len(s.queue) == 0 || s.rounds >= s.maxRounds
}

func (s *Session) Rounds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rounds
}

// Missing lists the fields still unanswered, in asking order.
func (s *Session) Missing() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queue...)
}

// Draft returns the collected draft with every unanswered pillar set to
// domain.NotProvided.
func (s *Session) Draft() domain.Draft {
	s.mu.Lock()
	d := s.draft
	s.mu.Unlock()
	for _, f := range Pillars {
		if !domain.Provided(fieldOf(d, f)) {
			setField(&d, f, domain.NotProvided)
		}
	}
	if d.Frequency == "" {
		d.Frequency = domain.FrequencyUnknown
	}
	return d
}

func (s *Session) question(field string) string {
	templates := s.questions[field]
	if len(templates) == 0 {
		return "Please describe the " + strings.ReplaceAll(field, "_", " ") + "."
	}
	i := s.pick(len(templates))
	if i < 0 || i >= len(templates) {
		i = 0
	}
	return templates[i]
}

func (s *Session) get(field string) string { return fieldOf(s.draft, field) }

func (s *Session) set(field, v string) { setField(&s.draft, field, v) }

func fieldOf(d domain.Draft, field string) string {
	switch field {
	case FieldIntent:
		return d.UserIntent
	case FieldObserved:
		return d.ObservedOutcome
	case FieldExpected:
		return d.ExpectedOutcome
	}
	return ""
}

func setField(d *domain.Draft, field, v string) {
	switch field {
	case FieldIntent:
		d.UserIntent = v
	case FieldObserved:
		d.ObservedOutcome = v
	case FieldExpected:
		d.ExpectedOutcome = v
	}
}

// Sessions keeps at most one open session per reporter.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*Session)}
}

func (ss *Sessions) Get(user string) (*Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.sessions[user]
	return s, ok
}

func (ss *Sessions) Put(user string, s *Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[user] = s
}

func (ss *Sessions) Drop(user string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, user)
}

// Release drops the user's session only if it is still s, so a finished
// session never removes one started after it.
func (ss *Sessions) Release(user string, s *Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.sessions[user] == s {
		delete(ss.sessions, user)
	}
}
