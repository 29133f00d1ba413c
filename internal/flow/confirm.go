package flow

import (
	"fmt"
	"strings"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/catalog"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

// Fixed lexicons for recognizing yes/no responses. Matching is
// case-insensitive on word boundaries, so "yeah that's right" confirms and
// "no, it's Smith" rejects, while "I don't know" matches neither.
var affirmatives = []string{
	"yes", "correct", "right", "yeah", "yep", "that's right", "exactly", "sure",
}

var negatives = []string{
	"no", "nope", "wrong", "incorrect", "not right", "that's not", "actually",
}

func matchesAny(utterance string, lexicon []string) bool {
	norm := strings.ToLower(utterance)
	norm = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r == '\'' {
			return r
		}
		return ' '
	}, norm)
	padded := " " + strings.Join(strings.Fields(norm), " ") + " "
	for _, w := range lexicon {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}

// Resolution is the outcome of feeding a caller utterance into an
// outstanding confirmation.
type Resolution int

const (
	// ResolutionCommitted: the value was confirmed and committed.
	ResolutionCommitted Resolution = iota
	// ResolutionRejected: the value was discarded; re-ask the base
	// question without any pre-fill hint.
	ResolutionRejected
	// ResolutionRepeat: unclear response; repeat the same confirmation
	// once before falling back to rejection.
	ResolutionRepeat
)

// Begin stages a tentative value for confirmation. At most one confirmation
// may be outstanding per session; the orchestrator resolves the existing one
// before creating another.
func (e *Engine) Begin(st *session.State, q *catalog.Question, value string, kind session.ConfirmKind) error {
	if st.Pending != nil {
		return fmt.Errorf("flow: confirmation already pending for %s", st.Pending.QuestionID)
	}
	st.Pending = &session.PendingConfirmation{
		QuestionID: q.ID,
		Value:      value,
		Kind:       kind,
	}
	return nil
}

// Resolve feeds the caller's next utterance into the outstanding
// confirmation. On commit the answer is written and confirmed (firing any
// conditional rules); on rejection the tentative value is discarded. For a
// pre-filled value this also removes the seed so the base question is asked
// fresh.
func (e *Engine) Resolve(st *session.State, utterance string) (Resolution, *catalog.Question, error) {
	p := st.Pending
	if p == nil {
		return 0, nil, fmt.Errorf("flow: no confirmation pending")
	}
	q, ok := e.cat.Question(p.QuestionID)
	if !ok {
		st.Pending = nil
		return 0, nil, fmt.Errorf("flow: pending confirmation for unknown question %s", p.QuestionID)
	}

	switch {
	case matchesAny(utterance, affirmatives) && !matchesAny(utterance, negatives):
		source := session.SourceSpoken
		if a, seeded := st.Answers[q.ID]; seeded && a.Source == session.SourcePrefilled {
			source = session.SourcePrefilled
		}
		e.Commit(st, q, p.Value, source)
		e.ConfirmAnswer(st, q.ID)
		st.Pending = nil
		return ResolutionCommitted, q, nil

	case matchesAny(utterance, negatives):
		delete(st.Answers, q.ID)
		st.Pending = nil
		return ResolutionRejected, q, nil

	default:
		// Neither clearly yes nor no: one repeat, then treat as a
		// low-confidence negative.
		if p.Reprompted {
			delete(st.Answers, q.ID)
			st.Pending = nil
			return ResolutionRejected, q, nil
		}
		p.Reprompted = true
		return ResolutionRepeat, q, nil
	}
}

// ConfirmationFor decides how an answer to this question must be confirmed:
// yes/no for pre-filled seeds, the question's configured read-back for
// spoken answers to sensitive fields, or nothing.
func ConfirmationFor(q *catalog.Question, prefilled bool) (session.ConfirmKind, bool) {
	if prefilled {
		return session.ConfirmYesNo, true
	}
	switch q.Confirm {
	case catalog.ConfirmSpelling:
		return session.ConfirmSpelling, true
	case catalog.ConfirmDigits:
		return session.ConfirmDigits, true
	}
	return "", false
}
