// Package phone canonicalizes phone numbers arriving in heterogeneous formats.
//
// Numbers reach us channel-prefixed ("whatsapp:+15551234567"), in E.164
// ("+15551234567"), punctuated ("(555) 123-4567"), or bare. Normalize collapses
// all of these into one comparable digit string, which is the join key for
// every user lookup.
package phone

import "regexp"

var nonDigitRegex = regexp.MustCompile(`\D`)

// Normalize strips all non-digit characters from raw and drops a leading US
// country code. An 11-digit number starting with 1 becomes its 10-digit form;
// anything else passes through digit-only, so non-US numbers are preserved.
// Normalize is idempotent.
func Normalize(raw string) string {
	digits := nonDigitRegex.ReplaceAllString(raw, "")
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// Equal reports whether two raw phone strings refer to the same number once
// normalized. Empty strings never match anything.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na != "" && na == nb
}

// IsValidUS reports whether raw normalizes to a 10-digit US number.
func IsValidUS(raw string) bool {
	return len(Normalize(raw)) == 10
}
