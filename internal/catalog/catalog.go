package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kind describes how an answer to a question is interpreted and validated.
type Kind string

const (
	KindText     Kind = "text"
	KindPicklist Kind = "picklist"
	KindNumeric  Kind = "numeric"
	KindPhone    Kind = "phone"
	KindEmail    Kind = "email"
	KindDate     Kind = "date"
)

// ConfirmKind selects the read-back style for sensitive fields.
type ConfirmKind string

const (
	ConfirmNone     ConfirmKind = ""
	ConfirmSpelling ConfirmKind = "spelling"
	ConfirmDigits   ConfirmKind = "digits"
)

// Question is a single intake question. Immutable after Load.
type Question struct {
	ID       string      `yaml:"id"`
	Label    string      `yaml:"label"`
	Kind     Kind        `yaml:"kind"`
	Picklist []string    `yaml:"picklist,omitempty"`
	Help     string      `yaml:"help,omitempty"`
	Confirm  ConfirmKind `yaml:"confirm,omitempty"`

	// RuleID is set at load time when a conditional rule lists this
	// question as a dependent. Empty means always eligible.
	RuleID string `yaml:"-"`

	// Section the question belongs to, resolved at load time.
	Section string `yaml:"-"`
}

// Section is an ordered, named group of questions.
type Section struct {
	Name      string     `yaml:"name"`
	Questions []Question `yaml:"questions"`
}

// Rule activates its dependent questions when the trigger question is
// answered with the trigger value (case-insensitive).
type Rule struct {
	ID         string   `yaml:"id"`
	Question   string   `yaml:"question"`
	Value      string   `yaml:"value"`
	Dependents []string `yaml:"dependents"`
}

// Catalog is the process-wide, read-only intake definition.
type Catalog struct {
	sections []Section
	rules    []Rule

	byID           map[string]*Question
	rulesByTrigger map[string][]*Rule
	sectionIndex   map[string]int
}

type fileFormat struct {
	Sections []Section `yaml:"sections"`
	Rules    []Rule    `yaml:"rules"`
}

// Load reads and verifies a catalog definition from a YAML file. A catalog
// that fails integrity checks must prevent process start, so all problems
// are returned as errors rather than logged.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw YAML.
func Parse(data []byte) (*Catalog, error) {
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}
	if len(ff.Sections) == 0 {
		return nil, fmt.Errorf("catalog: no sections defined")
	}

	c := &Catalog{
		sections:       ff.Sections,
		rules:          ff.Rules,
		byID:           make(map[string]*Question),
		rulesByTrigger: make(map[string][]*Rule),
		sectionIndex:   make(map[string]int),
	}

	for si := range c.sections {
		sec := &c.sections[si]
		if sec.Name == "" {
			return nil, fmt.Errorf("catalog: section %d has no name", si)
		}
		if _, dup := c.sectionIndex[sec.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate section %q", sec.Name)
		}
		c.sectionIndex[sec.Name] = si
		for qi := range sec.Questions {
			q := &sec.Questions[qi]
			if q.ID == "" {
				return nil, fmt.Errorf("catalog: section %q question %d has no id", sec.Name, qi)
			}
			if _, dup := c.byID[q.ID]; dup {
				return nil, fmt.Errorf("catalog: duplicate question id %q", q.ID)
			}
			if q.Kind == "" {
				q.Kind = KindText
			}
			if q.Kind == KindPicklist && len(q.Picklist) == 0 {
				return nil, fmt.Errorf("catalog: picklist question %q has no values", q.ID)
			}
			q.Section = sec.Name
			c.byID[q.ID] = q
		}
	}

	for ri := range c.rules {
		r := &c.rules[ri]
		if r.ID == "" {
			return nil, fmt.Errorf("catalog: rule %d has no id", ri)
		}
		trigger, ok := c.byID[r.Question]
		if !ok {
			return nil, fmt.Errorf("catalog: rule %q references unknown trigger question %q", r.ID, r.Question)
		}
		triggerSec := c.sectionIndex[trigger.Section]
		for _, dep := range r.Dependents {
			dq, ok := c.byID[dep]
			if !ok {
				return nil, fmt.Errorf("catalog: rule %q references unknown dependent question %q", r.ID, dep)
			}
			if c.sectionIndex[dq.Section] < triggerSec {
				return nil, fmt.Errorf("catalog: rule %q dependent %q is in section %q, earlier than trigger section %q",
					r.ID, dep, dq.Section, trigger.Section)
			}
			if dq.RuleID != "" && dq.RuleID != r.ID {
				return nil, fmt.Errorf("catalog: question %q is a dependent of both %q and %q", dep, dq.RuleID, r.ID)
			}
			dq.RuleID = r.ID
		}
		c.rulesByTrigger[r.Question] = append(c.rulesByTrigger[r.Question], r)
	}

	return c, nil
}

// Sections returns the fixed section order.
func (c *Catalog) Sections() []Section { return c.sections }

// Question looks up a question by id.
func (c *Catalog) Question(id string) (*Question, bool) {
	q, ok := c.byID[id]
	return q, ok
}

// RulesFor returns the conditional rules triggered by the given question,
// in catalog declaration order.
func (c *Catalog) RulesFor(questionID string) []*Rule {
	return c.rulesByTrigger[questionID]
}

// Eligible returns the section's questions filtered down to those that may
// currently be asked: confirmed answers are done, and a conditional question
// requires its rule's flag to have fired.
func (c *Catalog) Eligible(sec Section, confirmed map[string]bool, flags map[string]bool) []Question {
	out := make([]Question, 0, len(sec.Questions))
	for _, q := range sec.Questions {
		if confirmed[q.ID] {
			continue
		}
		if q.RuleID != "" && !flags[q.RuleID] {
			continue
		}
		out = append(out, q)
	}
	return out
}
