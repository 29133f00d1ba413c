package session

import (
	"sort"
	"time"
)

// Source tells where an answer value came from.
type Source string

const (
	SourcePrefilled Source = "prefilled"
	SourceSpoken    Source = "spoken"
)

// Answer is one collected field value. Once Confirmed it is immutable unless
// the caller corrects it through the confirmation exchange.
type Answer struct {
	Value     string    `json:"value"`
	Confirmed bool      `json:"confirmed"`
	Source    Source    `json:"source"`
	At        time.Time `json:"at"`
}

// SectionStatus tracks progress through one section.
type SectionStatus string

const (
	SectionNotStarted SectionStatus = "not_started"
	SectionInProgress SectionStatus = "in_progress"
	SectionCompleted  SectionStatus = "completed"
)

// Status is the terminal (or live) state of a whole call.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// Speaker identifies who produced a history turn.
type Speaker string

const (
	SpeakerCaller Speaker = "caller"
	SpeakerAgent  Speaker = "agent"
)

// Turn is one utterance in the append-only conversation history.
type Turn struct {
	Speaker    Speaker   `json:"speaker"`
	Text       string    `json:"text"`
	QuestionID string    `json:"question_id,omitempty"`
	At         time.Time `json:"at"`
}

// ConfirmKind is the style of the outstanding confirmation exchange.
type ConfirmKind string

const (
	ConfirmYesNo    ConfirmKind = "yes-no"
	ConfirmSpelling ConfirmKind = "spelling"
	ConfirmDigits   ConfirmKind = "digits"
)

// PendingConfirmation holds the at-most-one tentative answer awaiting the
// caller's confirmation before it is committed.
type PendingConfirmation struct {
	QuestionID string      `json:"question_id"`
	Value      string      `json:"value"`
	Kind       ConfirmKind `json:"kind"`
	Reprompted bool        `json:"reprompted"`
}

// State is the mutable per-call record. Exactly one orchestrator goroutine
// owns and mutates a given State for the lifetime of its call.
type State struct {
	ID        string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Status    Status    `json:"status"`

	// SectionOrder is frozen from the catalog at session creation so a
	// persisted record can be interpreted without the catalog at hand.
	SectionOrder []string `json:"section_order"`

	SectionIdx  int `json:"section_idx"`
	QuestionIdx int `json:"question_idx"`

	Answers       map[string]Answer        `json:"answers"`
	Flags         map[string]bool          `json:"conditional_flags"`
	SectionStatus map[string]SectionStatus `json:"section_status"`

	Pending *PendingConfirmation `json:"pending_confirmation,omitempty"`

	History []Turn `json:"history"`

	// Retries counts consecutive validation failures on the current
	// question; bounded by the orchestrator.
	Retries int `json:"retries"`
}

// New creates a fresh session, optionally seeded with pre-filled answers.
// Pre-filled values are stored unconfirmed so the flow surfaces them for a
// yes/no confirmation instead of re-asking from scratch.
func New(id string, sectionOrder []string, prefilled map[string]string) *State {
	st := &State{
		ID:            id,
		StartedAt:     time.Now().UTC(),
		Status:        StatusActive,
		SectionOrder:  append([]string(nil), sectionOrder...),
		Answers:       make(map[string]Answer),
		Flags:         make(map[string]bool),
		SectionStatus: make(map[string]SectionStatus),
	}
	for _, name := range sectionOrder {
		st.SectionStatus[name] = SectionNotStarted
	}
	for id, v := range prefilled {
		st.Answers[id] = Answer{Value: v, Source: SourcePrefilled, At: st.StartedAt}
	}
	return st
}

// Confirmed returns the set of question ids whose answers are confirmed.
func (s *State) Confirmed() map[string]bool {
	out := make(map[string]bool, len(s.Answers))
	for id, a := range s.Answers {
		if a.Confirmed {
			out[id] = true
		}
	}
	return out
}

// AppendTurn records an utterance in the history. History is append-only.
func (s *State) AppendTurn(sp Speaker, text, questionID string) {
	s.History = append(s.History, Turn{
		Speaker:    sp,
		Text:       text,
		QuestionID: questionID,
		At:         time.Now().UTC(),
	})
}

// RecentHistory returns up to n most recent turns for provider context.
func (s *State) RecentHistory(n int) []Turn {
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// Record is the durable call record handed to the persistence sink once at
// the end of a call.
type Record struct {
	SessionID string          `json:"session_id"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Status    Status          `json:"status"`
	Sections  []SectionRecord `json:"sections"`
	Answers   []AnswerRecord  `json:"answers"`
	History   []Turn          `json:"history"`
}

type SectionRecord struct {
	Name   string        `json:"name"`
	Status SectionStatus `json:"status"`
}

type AnswerRecord struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
	Confirmed  bool   `json:"confirmed"`
	Source     Source `json:"source"`
}

// Record flattens the state into the persisted layout. Answers are emitted
// in sorted question-id order for stable output.
func (s *State) Record() *Record {
	rec := &Record{
		SessionID: s.ID,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Status:    s.Status,
		History:   s.History,
	}
	for _, name := range s.SectionOrder {
		rec.Sections = append(rec.Sections, SectionRecord{Name: name, Status: s.SectionStatus[name]})
	}
	ids := make([]string, 0, len(s.Answers))
	for id := range s.Answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := s.Answers[id]
		rec.Answers = append(rec.Answers, AnswerRecord{
			QuestionID: id,
			Value:      a.Value,
			Confirmed:  a.Confirmed,
			Source:     a.Source,
		})
	}
	return rec
}
