// Package flow holds the pure decision logic of an intake call: which
// question comes next, how answers are committed, and the confirmation
// exchange for sensitive or pre-filled values. It never touches providers
// or transport; the orchestrator in internal/agent drives it.
package flow

import (
	"strings"
	"time"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/catalog"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

// Outcome classifies the result of a Next call.
type Outcome int

const (
	// OutcomeAsk means Step.Question should be asked now.
	OutcomeAsk Outcome = iota
	// OutcomeSectionComplete means Step.Section just finished; call Next
	// again to move on.
	OutcomeSectionComplete
	// OutcomeIntakeComplete means every section is completed.
	OutcomeIntakeComplete
)

// Step is the flow engine's instruction to the orchestrator.
type Step struct {
	Outcome  Outcome
	Question *catalog.Question
	Section  string
}

// Engine walks a session through the catalog. It is stateless; all mutable
// state lives in the session record it is handed.
type Engine struct {
	cat *catalog.Catalog
}

func New(cat *catalog.Catalog) *Engine { return &Engine{cat: cat} }

// Next returns the next question for the session, or reports that the
// current section (or the whole intake) is complete. It is deterministic:
// for identical (answers, flags, cursor, section statuses) it returns the
// same result, which lets the orchestrator re-render a question after a
// failed validation without advancing anything.
//
// Exactly one mutation happens per section transition: the section is
// marked completed and the cursor moves to the next one. The orchestrator
// loops on OutcomeSectionComplete.
func (e *Engine) Next(st *session.State) Step {
	secs := e.cat.Sections()
	if st.SectionIdx >= len(secs) {
		return Step{Outcome: OutcomeIntakeComplete}
	}
	sec := secs[st.SectionIdx]
	if st.SectionStatus[sec.Name] == session.SectionNotStarted {
		st.SectionStatus[sec.Name] = session.SectionInProgress
	}
	// eligibility only looks at questions from the cursor onward, so a
	// question skipped after exhausted retries is not surfaced again
	remaining := catalog.Section{Name: sec.Name, Questions: sec.Questions[st.QuestionIdx:]}
	if elig := e.cat.Eligible(remaining, st.Confirmed(), st.Flags); len(elig) > 0 {
		for qi := st.QuestionIdx; qi < len(sec.Questions); qi++ {
			if sec.Questions[qi].ID != elig[0].ID {
				continue
			}
			st.QuestionIdx = qi
			return Step{Outcome: OutcomeAsk, Question: &sec.Questions[qi], Section: sec.Name}
		}
	}
	st.SectionStatus[sec.Name] = session.SectionCompleted
	st.SectionIdx++
	st.QuestionIdx = 0
	return Step{Outcome: OutcomeSectionComplete, Section: sec.Name}
}

// Commit writes an answer as unconfirmed and evaluates every conditional
// rule triggered by this question, in catalog declaration order. Fired
// flags are monotonic for the life of the session: a later correction of
// the trigger answer does not retract already-surfaced dependents.
// Re-committing an already-confirmed answer with the same value is a no-op;
// it never demotes the answer back to unconfirmed.
func (e *Engine) Commit(st *session.State, q *catalog.Question, value string, source session.Source) {
	if a, ok := st.Answers[q.ID]; ok && a.Confirmed && a.Value == value {
		st.Retries = 0
		return
	}
	st.Answers[q.ID] = session.Answer{
		Value:  value,
		Source: source,
		At:     time.Now().UTC(),
	}
	for _, r := range e.cat.RulesFor(q.ID) {
		if strings.EqualFold(r.Value, value) {
			st.Flags[r.ID] = true
		}
	}
	st.Retries = 0
}

// ConfirmAnswer marks a committed answer as confirmed, freezing it unless
// the caller later corrects it through the confirmation exchange.
func (e *Engine) ConfirmAnswer(st *session.State, questionID string) {
	if a, ok := st.Answers[questionID]; ok {
		a.Confirmed = true
		st.Answers[questionID] = a
	}
}

// Skip moves the cursor past the current question. Used when validation has
// failed too many times in a row and the raw answer was recorded
// unconfirmed; without the skip, Next would return the same question
// forever.
func (e *Engine) Skip(st *session.State) {
	st.QuestionIdx++
	st.Retries = 0
}
