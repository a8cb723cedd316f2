package actor

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ScriptedPolicy is a deterministic keyword-driven DecisionPolicy. It maps a
// prompt to at most one tool call, then composes a short in-character reply
// from the observations on the next iteration. It exists so simulations run
// without any model backend and so tests get reproducible behavior.
type ScriptedPolicy struct{}

// NewScriptedPolicy returns the deterministic policy.
func NewScriptedPolicy() *ScriptedPolicy {
	return &ScriptedPolicy{}
}

// Decide implements DecisionPolicy.
func (p *ScriptedPolicy) Decide(_ context.Context, req DecisionRequest) (Decision, error) {
	// Observations present means the tool round already ran: wrap up.
	if len(req.Observations) > 0 {
		return Decision{Reply: composeReply(req.Persona, req.Observations)}, nil
	}

	prompt := strings.ToLower(req.Prompt)

	switch {
	case containsAny(prompt, "stats", "how many", "statistics", "overview"):
		return call(CapStats, nil), nil

	case containsAny(prompt, "add a book", "add the book", "new arrival", "catalog a", "add ") &&
		req.Persona.Allows(CapAddBook):
		title, author := extractBook(req.Prompt)
		return call(CapAddBook, map[string]string{
			"title":  title,
			"author": author,
			"isbn":   isbnFor(title),
		}), nil

	case containsAny(prompt, "register", "sign up", "new member") && req.Persona.Allows(CapRegisterMember):
		return call(CapRegisterMember, map[string]string{
			"name":  extractTopic(req.Prompt),
			"email": emailFor(extractTopic(req.Prompt)),
		}), nil

	case containsAny(prompt, "borrowed books", "checked out", "history", "on loan to"):
		return call(CapHistory, map[string]string{"member": ""}), nil

	case containsAny(prompt, "return", "bring back", "give back", "overdue"):
		return call(CapReturnBook, map[string]string{"title": extractTopic(req.Prompt)}), nil

	case containsAny(prompt, "borrow", "check out", "take out", "take home"):
		return call(CapBorrowBook, map[string]string{"title": extractTopic(req.Prompt)}), nil

	default:
		return call(CapSearchBooks, map[string]string{"query": extractTopic(req.Prompt)}), nil
	}
}

func call(c Capability, args map[string]string) Decision {
	if args == nil {
		args = map[string]string{}
	}
	return Decision{Calls: []ToolCall{{Capability: c, Args: args}}}
}

// composeReply turns tool observations into a one-line in-character answer.
func composeReply(p Persona, observations []string) string {
	body := strings.Join(observations, " ")
	switch p.Kind {
	case KindLibrarian:
		return fmt.Sprintf("Of course. %s", body)
	case KindLateReturner:
		return fmt.Sprintf("So sorry for the delay! %s", body)
	default:
		return body
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// extractTopic pulls the subject out of a prompt: a quoted phrase wins,
// otherwise the trailing words after common verbs, otherwise the whole
// prompt trimmed of punctuation.
func extractTopic(prompt string) string {
	if q := quoted(prompt); q != "" {
		return q
	}

	lower := strings.ToLower(prompt)
	markers := []string{" about ", " on ", " for ", " called ", " borrow ", " return ", " find "}
	for _, m := range markers {
		if i := strings.Index(lower, m); i >= 0 {
			return trimTopic(prompt[i+len(m):])
		}
	}
	return trimTopic(prompt)
}

// extractBook splits a prompt like `add "Title" by Author` into its parts.
func extractBook(prompt string) (title, author string) {
	title = quoted(prompt)
	if title == "" {
		title = extractTopic(prompt)
	}

	lower := strings.ToLower(prompt)
	if i := strings.LastIndex(lower, " by "); i >= 0 {
		author = trimTopic(prompt[i+4:])
	}
	if author == "" {
		author = "Unknown"
	}
	return title, author
}

func quoted(s string) string {
	for _, pair := range [][2]string{{`"`, `"`}, {"'", "'"}} {
		start := strings.Index(s, pair[0])
		if start < 0 {
			continue
		}
		rest := s[start+len(pair[0]):]
		end := strings.Index(rest, pair[1])
		if end > 0 {
			return rest[:end]
		}
	}
	return ""
}

func trimTopic(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".!?,")
	if len(s) > 60 {
		// Cut on a rune boundary so multi-byte titles stay valid UTF-8.
		cut := 60
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return strings.TrimSpace(s)
}

// isbnFor derives a stable pseudo-isbn from a title so scripted add_book
// calls are idempotent per title within a run.
func isbnFor(title string) string {
	var h uint32
	for _, r := range strings.ToLower(title) {
		h = h*31 + uint32(r)
	}
	return fmt.Sprintf("978-0-%05d-%03d-0", h%100000, h%1000)
}

func emailFor(name string) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "."))
	if slug == "" {
		slug = "patron"
	}
	return slug + "_sim@library.ai"
}
