// Package prompt renders everything the agent says: question phrasing,
// confirmation read-backs, validation re-prompts, and the context block
// handed to the decision provider. All output is deterministic template
// text; the decision provider may re-phrase it but never replaces it.
package prompt

import (
	"fmt"
	"strings"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/catalog"
)

// Greeting opens every call.
const Greeting = "Hello, thank you for calling Legal Corner Law Office. " +
	"I'm here to gather some information about your employment situation. " +
	"Everything you share is confidential. Let's start with some basic contact information."

// Closing ends a completed intake.
const Closing = "That's everything I needed. Thank you for your time. " +
	"Our legal team will review your information and follow up with next steps. Goodbye."

// Failure is spoken when a provider outage ends the call early.
const Failure = "I'm sorry, we're having technical difficulties. " +
	"Please call back later. Goodbye."

// phonetic is the fixed alphabet used for spelling read-backs.
var phonetic = map[rune]string{
	'a': "Alpha", 'b': "Bravo", 'c': "Charlie", 'd': "Delta", 'e': "Echo",
	'f': "Foxtrot", 'g': "Golf", 'h': "Hotel", 'i': "India", 'j': "Juliet",
	'k': "Kilo", 'l': "Lima", 'm': "Mike", 'n': "November", 'o': "Oscar",
	'p': "Papa", 'q': "Quebec", 'r': "Romeo", 's': "Sierra", 't': "Tango",
	'u': "Uniform", 'v': "Victor", 'w': "Whiskey", 'x': "X-ray",
	'y': "Yankee", 'z': "Zulu",
}

// Question phrases a catalog question conversationally. Help text wins when
// present; otherwise the label is turned into a question based on its kind.
func Question(q *catalog.Question) string {
	if q.Help != "" {
		return q.Help
	}
	label := q.Label
	if strings.Contains(label, "?") {
		return label
	}
	lower := strings.ToLower(label)
	switch q.Kind {
	case catalog.KindDate:
		return fmt.Sprintf("Can you tell me the %s?", lower)
	case catalog.KindPhone:
		return fmt.Sprintf("What's the %s?", lower)
	case catalog.KindEmail:
		return fmt.Sprintf("What's the %s?", lower)
	case catalog.KindPicklist:
		return fmt.Sprintf("%s?", strings.ToUpper(lower[:1])+lower[1:])
	case catalog.KindNumeric:
		return fmt.Sprintf("What is the %s?", lower)
	default:
		if strings.Contains(lower, "name") {
			return fmt.Sprintf("What is the %s?", lower)
		}
		return fmt.Sprintf("Can you tell me the %s?", lower)
	}
}

// PrefilledConfirm is the lighter yes/no confirmation used when a value was
// supplied before the call.
func PrefilledConfirm(q *catalog.Question, value string) string {
	return fmt.Sprintf("I have your %s as %s. Is that correct?", strings.ToLower(q.Label), value)
}

// SpellingConfirm reads a tentative value back letter by letter using the
// phonetic alphabet, with a period between segments.
func SpellingConfirm(value string) string {
	return fmt.Sprintf("Let me confirm. That's %s. Is that correct?", SpellOut(value))
}

// DigitsConfirm reads digits back in grouped triplets with pauses.
func DigitsConfirm(value string) string {
	return fmt.Sprintf("Let me confirm: %s. Is that correct?", GroupDigits(value))
}

// SpellOut converts a value into spoken phonetic segments. Letters use the
// phonetic alphabet, digits are spoken plainly, and email punctuation is
// spoken as words ("at", "dot").
func SpellOut(value string) string {
	var segs []string
	for _, r := range strings.ToLower(value) {
		switch {
		case r >= 'a' && r <= 'z':
			segs = append(segs, fmt.Sprintf("%c as in %s", r-'a'+'A', phonetic[r]))
		case r >= '0' && r <= '9':
			segs = append(segs, string(r))
		case r == '@':
			segs = append(segs, "at")
		case r == '.':
			segs = append(segs, "dot")
		case r == '-':
			segs = append(segs, "dash")
		case r == '_':
			segs = append(segs, "underscore")
		case r == ' ':
			// word boundary, spoken as a short pause
			if len(segs) > 0 {
				segs[len(segs)-1] += "."
			}
		}
	}
	return strings.Join(segs, ". ")
}

// GroupDigits formats a digit string as spoken triplets: "5, 5, 5. 1, 2, 3.
// 4, 5, 6, 7". A trailing group of four is kept together, phone style.
func GroupDigits(value string) string {
	var digits []rune
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	var groups []string
	for len(digits) > 0 {
		n := 3
		if len(digits) == 4 || len(digits) < 3 {
			n = len(digits)
		}
		part := make([]string, n)
		for i := 0; i < n; i++ {
			part[i] = string(digits[i])
		}
		groups = append(groups, strings.Join(part, ", "))
		digits = digits[n:]
	}
	return strings.Join(groups, ". ")
}

// ValidationReprompt combines the validation failure reason with the base
// question so the caller hears what went wrong and what is needed.
func ValidationReprompt(q *catalog.Question, reason string) string {
	return fmt.Sprintf("Sorry, %s. %s", reason, Question(q))
}

// ConfirmReprompt repeats a confirmation after a response that was neither
// clearly yes nor no.
func ConfirmReprompt(confirmPrompt string) string {
	return "Sorry, I need a yes or no. " + confirmPrompt
}

// SectionIntro briefly announces a section transition.
func SectionIntro(name string) string {
	return fmt.Sprintf("Next, I have a few questions about %s.", strings.ToLower(name))
}

// Context builds the prompt-context block handed to the decision provider
// along with recent history, so it can re-phrase the scripted prompt
// naturally without changing its meaning.
func Context(section string, collected []string, scripted string) string {
	var b strings.Builder
	b.WriteString("You are an intake specialist conducting an employment law consultation over the phone. ")
	b.WriteString("Keep responses concise, professional, and empathetic. Ask exactly one question.\n")
	b.WriteString("Current section: ")
	b.WriteString(section)
	b.WriteString("\nAlready collected: ")
	if len(collected) == 0 {
		b.WriteString("nothing yet")
	} else {
		b.WriteString(strings.Join(collected, ", "))
	}
	b.WriteString("\nSay this, in your own words but preserving every detail exactly: ")
	b.WriteString(scripted)
	return b.String()
}
