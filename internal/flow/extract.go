package flow

import (
	"regexp"
	"strings"

	"github.com/prim-health/prim-backend/internal/phone"
)

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	// phoneRegex tolerates punctuation, spaces and an optional country code
	// around a 10-digit number embedded in prose.
	phoneRegex = regexp.MustCompile(`\+?1?[\s.\-(]*\d{3}[\s.\-)]*\d{3}[\s.\-]*\d{4}`)
)

// diversionKeywords trigger the rogue persona. Matching is case-insensitive
// substring search, covering common misspellings and the accented variant.
var diversionKeywords = []string{
	"pineapple",
	"pinapple",
	"pineaple",
	"piña",
}

// ExtractEmail returns the first email address found in free text, or "".
func ExtractEmail(text string) string {
	return emailRegex.FindString(text)
}

// ExtractPhone returns the first phone number found in free text, normalized
// to bare digits, or "". Only numbers that normalize to a valid 10-digit US
// number are accepted, so stray digit runs in prose are not mistaken for one.
func ExtractPhone(text string) string {
	for _, match := range phoneRegex.FindAllString(text, -1) {
		normalized := phone.Normalize(match)
		if phone.IsValidUS(normalized) {
			return normalized
		}
	}
	return ""
}

// HasDiversionTrigger reports whether the text contains a rogue-persona
// trigger keyword.
func HasDiversionTrigger(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range diversionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// firstName returns the first token of a full name, or "there" when empty.
func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}
