package chat

import (
	"fmt"
	"strings"
)

// greetings is the fixed whitelist of phrases that short-circuit retrieval
// and generation. Matching is exact after trimming and case-folding; anything
// longer is treated as a real question.
var greetings = map[string]struct{}{
	"hi":             {},
	"hello":          {},
	"hey":            {},
	"yo":             {},
	"hi there":       {},
	"hello there":    {},
	"good morning":   {},
	"good afternoon": {},
	"good evening":   {},
}

// isGreeting reports whether question is a bare greeting.
func isGreeting(question string) bool {
	normalized := strings.ToLower(strings.TrimSpace(question))
	normalized = strings.TrimRight(normalized, "!.")
	_, ok := greetings[normalized]
	return ok
}

// greetingAnswer is the canned reply for a greeting, personalized with the
// session owner's name.
func greetingAnswer(username string) string {
	return fmt.Sprintf("Hi %s! I'm your support assistant. "+
		"Ask me anything about the product and I'll answer from the documentation.", username)
}
