package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationError is caller-correctable: the orchestrator re-prompts with
// Reason (and Allowed for picklists) instead of failing the call.
type ValidationError struct {
	QuestionID string
	Reason     string
	Allowed    []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid answer for %s: %s", e.QuestionID, e.Reason)
}

// Validate checks a raw spoken answer against the question's constraints and
// returns the normalized value to store. Picklist matching is
// case-insensitive and returns the canonical catalog value.
func (c *Catalog) Validate(q *Question, raw string) (string, error) {
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return "", &ValidationError{QuestionID: q.ID, Reason: "I didn't catch that"}
	}

	switch q.Kind {
	case KindPicklist:
		for _, v := range q.Picklist {
			if strings.EqualFold(v, answer) {
				return v, nil
			}
		}
		return "", &ValidationError{
			QuestionID: q.ID,
			Reason:     "please choose from: " + strings.Join(q.Picklist, ", "),
			Allowed:    append([]string(nil), q.Picklist...),
		}
	case KindNumeric:
		cleaned := strings.ReplaceAll(answer, ",", "")
		if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
			return "", &ValidationError{QuestionID: q.ID, Reason: "please give a number"}
		}
		return cleaned, nil
	case KindPhone:
		digits := digitsOnly(answer)
		if len(digits) < 10 {
			return "", &ValidationError{QuestionID: q.ID, Reason: "please provide a valid phone number"}
		}
		return digits, nil
	case KindEmail:
		compact := strings.ReplaceAll(strings.ToLower(answer), " at ", "@")
		compact = strings.ReplaceAll(compact, " dot ", ".")
		compact = strings.ReplaceAll(compact, " ", "")
		if !strings.Contains(compact, "@") {
			return "", &ValidationError{QuestionID: q.ID, Reason: "please provide a valid email address"}
		}
		return compact, nil
	default:
		return answer, nil
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
