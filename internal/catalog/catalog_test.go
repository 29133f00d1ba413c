package catalog

import (
	"strings"
	"testing"
)

const sample = `
sections:
  - name: Contact
    questions:
      - id: Client_Name
        label: Full name
        confirm: spelling
      - id: Client_Phone
        label: Phone number
        kind: phone
        confirm: digits
  - name: Employment
    questions:
      - id: Employment_Status
        label: Employment status
        kind: picklist
        picklist: [Employed, Terminated]
      - id: Uses_Own_Vehicle
        label: Do you use your own vehicle for work
        kind: picklist
        picklist: ["Yes", "No"]
      - id: Vehicle_Details
        label: Vehicle details
rules:
  - id: own-vehicle
    question: Uses_Own_Vehicle
    value: "Yes"
    dependents: [Vehicle_Details]
`

func mustParse(t *testing.T, src string) *Catalog {
	t.Helper()
	c, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return c
}

func TestParse_ResolvesRulesAndSections(t *testing.T) {
	c := mustParse(t, sample)

	if got := len(c.Sections()); got != 2 {
		t.Fatalf("expected 2 sections, got %d", got)
	}
	q, ok := c.Question("Vehicle_Details")
	if !ok {
		t.Fatalf("missing question")
	}
	if q.RuleID != "own-vehicle" {
		t.Fatalf("dependent not bound to rule: %q", q.RuleID)
	}
	if q.Section != "Employment" {
		t.Fatalf("section not resolved: %q", q.Section)
	}
	rules := c.RulesFor("Uses_Own_Vehicle")
	if len(rules) != 1 || rules[0].ID != "own-vehicle" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
	if kind := c.sections[0].Questions[0].Kind; kind != KindText {
		t.Fatalf("expected default text kind, got %q", kind)
	}
}

func TestParse_IntegrityErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"no_sections", `rules: []`, "no sections"},
		{"duplicate_question", `
sections:
  - name: A
    questions:
      - {id: Q1, label: One}
      - {id: Q1, label: One again}
`, "duplicate question"},
		{"duplicate_section", `
sections:
  - name: A
    questions: [{id: Q1, label: One}]
  - name: A
    questions: [{id: Q2, label: Two}]
`, "duplicate section"},
		{"picklist_empty", `
sections:
  - name: A
    questions: [{id: Q1, label: One, kind: picklist}]
`, "no values"},
		{"rule_unknown_trigger", `
sections:
  - name: A
    questions: [{id: Q1, label: One}]
rules:
  - {id: r1, question: Missing, value: x, dependents: [Q1]}
`, "unknown trigger"},
		{"rule_unknown_dependent", `
sections:
  - name: A
    questions: [{id: Q1, label: One}]
rules:
  - {id: r1, question: Q1, value: x, dependents: [Missing]}
`, "unknown dependent"},
		{"dependent_in_earlier_section", `
sections:
  - name: A
    questions: [{id: Q1, label: One}]
  - name: B
    questions: [{id: Q2, label: Two}]
rules:
  - {id: r1, question: Q2, value: x, dependents: [Q1]}
`, "earlier than trigger"},
		{"dependent_of_two_rules", `
sections:
  - name: A
    questions:
      - {id: Q1, label: One}
      - {id: Q2, label: Two}
      - {id: Q3, label: Three}
rules:
  - {id: r1, question: Q1, value: x, dependents: [Q3]}
  - {id: r2, question: Q2, value: y, dependents: [Q3]}
`, "dependent of both"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestEligible_FiltersConfirmedAndConditional(t *testing.T) {
	c := mustParse(t, sample)
	sec := c.Sections()[1]

	// no flags: conditional question hidden
	got := c.Eligible(sec, nil, nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 eligible, got %d", len(got))
	}

	// flag fired and one answer confirmed
	got = c.Eligible(sec, map[string]bool{"Employment_Status": true}, map[string]bool{"own-vehicle": true})
	if len(got) != 2 {
		t.Fatalf("expected 2 eligible, got %d", len(got))
	}
	if got[0].ID != "Uses_Own_Vehicle" || got[1].ID != "Vehicle_Details" {
		t.Fatalf("unexpected eligible order: %v, %v", got[0].ID, got[1].ID)
	}
}

func TestValidate_PicklistCanonicalizes(t *testing.T) {
	c := mustParse(t, sample)
	q, _ := c.Question("Employment_Status")

	v, err := c.Validate(q, "  terminated ")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v != "Terminated" {
		t.Fatalf("expected canonical value, got %q", v)
	}

	_, err = c.Validate(q, "self-employed")
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Allowed) != 2 || !strings.Contains(verr.Reason, "choose from") {
		t.Fatalf("unexpected validation error: %+v", verr)
	}
}

func TestValidate_PhoneAndEmail(t *testing.T) {
	c := mustParse(t, sample)
	phone, _ := c.Question("Client_Phone")

	v, err := c.Validate(phone, "(555) 123-4567")
	if err != nil || v != "5551234567" {
		t.Fatalf("phone: got %q, %v", v, err)
	}
	if _, err := c.Validate(phone, "555 12"); err == nil {
		t.Fatalf("expected short phone to fail")
	}

	email := &Question{ID: "E", Label: "Email", Kind: KindEmail}
	v, err = c.Validate(email, "jane dot doe at example dot com")
	if err != nil || v != "jane.doe@example.com" {
		t.Fatalf("email: got %q, %v", v, err)
	}
	if _, err := c.Validate(email, "not an address"); err == nil {
		t.Fatalf("expected email without at-sign to fail")
	}
}

func TestValidate_NumericAndEmpty(t *testing.T) {
	c := mustParse(t, sample)
	num := &Question{ID: "N", Label: "Hours", Kind: KindNumeric}

	v, err := c.Validate(num, "1,250.5")
	if err != nil || v != "1250.5" {
		t.Fatalf("numeric: got %q, %v", v, err)
	}
	if _, err := c.Validate(num, "about forty"); err == nil {
		t.Fatalf("expected non-numeric to fail")
	}
	text, _ := c.Question("Client_Name")
	if _, err := c.Validate(text, "   "); err == nil {
		t.Fatalf("expected blank answer to fail")
	}
}
