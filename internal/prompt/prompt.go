// Package prompt turns raw Slack mention text into generation prompts.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultAge is used when the prompt mentions no age.
const DefaultAge = "5"

var agePattern = regexp.MustCompile(`(\d+)[-\s]?years?[-\s]?old`)

// Extract removes every mention of botUserID (<@U123>) from text and
// collapses whitespace. An empty result means no prompt was supplied.
func Extract(text, botUserID string) string {
	if botUserID != "" {
		text = strings.ReplaceAll(text, "<@"+botUserID+">", "")
	}
	return strings.Join(strings.Fields(text), " ")
}

// DeriveAge returns the N of the first "N year old" / "N-year-old" /
// "N years old" phrase in text, or fallback.
func DeriveAge(text, fallback string) string {
	m := agePattern.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return fallback
	}
	return m[1]
}

// Enhance wraps the user's prompt with the trigger word and photo styling.
func Enhance(triggerWord, age, userPrompt string) string {
	return fmt.Sprintf(
		"A vintage photograph of %s as a %s-year-old child, %s, realistic childhood photo, natural lighting, candid moment, high quality",
		triggerWord, age, userPrompt,
	)
}

// Usage is posted when a mention carries no prompt.
const Usage = "👋 Hi! Please describe the childhood photo you'd like to generate.\n\n" +
	"Examples:\n" +
	"• `@MemoryBot my 2-year-old self in a backyard`\n" +
	"• `@MemoryBot my 5-year-old self on a beach`\n" +
	"• `@MemoryBot my 10-year-old self in a classroom`"
