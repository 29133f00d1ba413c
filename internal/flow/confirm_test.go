package flow

import (
	"testing"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

func pendingSpelling(t *testing.T) (*Engine, *session.State) {
	t.Helper()
	e, cat := newEngine(t)
	st := newState(cat, nil)
	q, _ := cat.Question("Client_Name")
	if err := e.Begin(st, q, "Jane Doe", session.ConfirmSpelling); err != nil {
		t.Fatalf("begin: %v", err)
	}
	return e, st
}

func TestResolve_AffirmativeCommits(t *testing.T) {
	e, st := pendingSpelling(t)

	res, q, err := e.Resolve(st, "yeah that's right")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res != ResolutionCommitted {
		t.Fatalf("expected commit, got %v", res)
	}
	a := st.Answers[q.ID]
	if !a.Confirmed || a.Value != "Jane Doe" || a.Source != session.SourceSpoken {
		t.Fatalf("unexpected answer: %+v", a)
	}
	if st.Pending != nil {
		t.Fatalf("pending not cleared")
	}
}

func TestResolve_NegativeRejectsAndDeletes(t *testing.T) {
	e, st := pendingSpelling(t)

	res, q, err := e.Resolve(st, "no, it's Smith")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res != ResolutionRejected {
		t.Fatalf("expected rejection, got %v", res)
	}
	if _, ok := st.Answers[q.ID]; ok {
		t.Fatalf("rejected value must be discarded")
	}
	if st.Pending != nil {
		t.Fatalf("pending not cleared")
	}
}

func TestResolve_UnclearRepeatsOnceThenRejects(t *testing.T) {
	e, st := pendingSpelling(t)

	res, _, err := e.Resolve(st, "what do you mean")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res != ResolutionRepeat {
		t.Fatalf("expected repeat, got %v", res)
	}
	if st.Pending == nil || !st.Pending.Reprompted {
		t.Fatalf("pending must survive the repeat")
	}

	res, _, err = e.Resolve(st, "huh")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res != ResolutionRejected {
		t.Fatalf("expected rejection after second unclear reply, got %v", res)
	}
	if st.Pending != nil {
		t.Fatalf("pending not cleared")
	}
}

func TestResolve_WordBoundaryMatching(t *testing.T) {
	// "know" must not match the negative lexicon entry "no"
	e, st := pendingSpelling(t)
	res, _, err := e.Resolve(st, "I don't know")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res != ResolutionRepeat {
		t.Fatalf("expected unclear reply to repeat, got %v", res)
	}
}

func TestResolve_MixedSignalsTreatedAsNegative(t *testing.T) {
	// "yes... actually no" contains both; negation wins
	e, st := pendingSpelling(t)
	res, _, err := e.Resolve(st, "yes, actually no wait")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res != ResolutionRejected {
		t.Fatalf("expected rejection, got %v", res)
	}
}

func TestResolve_PrefilledKeepsSource(t *testing.T) {
	e, cat := newEngine(t)
	st := newState(cat, map[string]string{"Client_Name": "Jane Doe"})
	q, _ := cat.Question("Client_Name")

	if err := e.Begin(st, q, "Jane Doe", session.ConfirmYesNo); err != nil {
		t.Fatalf("begin: %v", err)
	}
	res, _, err := e.Resolve(st, "yes")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res != ResolutionCommitted {
		t.Fatalf("expected commit, got %v", res)
	}
	a := st.Answers[q.ID]
	if a.Source != session.SourcePrefilled || !a.Confirmed {
		t.Fatalf("expected confirmed prefilled answer, got %+v", a)
	}
}

func TestBegin_RejectsSecondPending(t *testing.T) {
	e, st := pendingSpelling(t)
	q, _ := e.cat.Question("Client_Phone")
	if err := e.Begin(st, q, "5551234567", session.ConfirmDigits); err == nil {
		t.Fatalf("expected error for second pending confirmation")
	}
}

func TestConfirmationFor(t *testing.T) {
	e, _ := pendingSpelling(t)
	name, _ := e.cat.Question("Client_Name")
	phone, _ := e.cat.Question("Client_Phone")
	status, _ := e.cat.Question("Employment_Status")

	if kind, need := ConfirmationFor(name, false); !need || kind != session.ConfirmSpelling {
		t.Fatalf("expected spelling confirmation, got %v %v", kind, need)
	}
	if kind, need := ConfirmationFor(phone, false); !need || kind != session.ConfirmDigits {
		t.Fatalf("expected digits confirmation, got %v %v", kind, need)
	}
	if _, need := ConfirmationFor(status, false); need {
		t.Fatalf("plain picklist needs no confirmation")
	}
	if kind, need := ConfirmationFor(status, true); !need || kind != session.ConfirmYesNo {
		t.Fatalf("prefilled always needs yes-no, got %v %v", kind, need)
	}
}
