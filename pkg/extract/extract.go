// Package extract pulls normalized phone numbers out of free-form chat text.
package extract

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Region is the default phone region used by the primary recognizer.
const Region = "TN"

// bareNumberPattern catches an unformatted run of exactly 8 digits. It can
// match non-phone substrings (timestamps, IDs); see candidatePattern for the
// stricter path.
var bareNumberPattern = regexp.MustCompile(`\b\d{8}\b`)

// candidatePattern grabs phone-shaped substrings for the libphonenumber pass.
// It is deliberately loose; invalid candidates are rejected by the parser.
var candidatePattern = regexp.MustCompile(`\+?\d[\d\s().-]{5,18}\d`)

// Numbers extracts the set of normalized 8-digit numbers found in text.
// It never fails: parser errors on individual candidates are discarded and
// the bare-digit fallback always runs.
func Numbers(text string) map[string]struct{} {
	found := make(map[string]struct{})
	if text == "" {
		return found
	}

	for _, candidate := range candidatePattern.FindAllString(text, -1) {
		num, err := phonenumbers.Parse(candidate, Region)
		if err != nil {
			continue
		}
		if !phonenumbers.IsValidNumber(num) {
			continue
		}
		digits := digitsOnly(phonenumbers.Format(num, phonenumbers.NATIONAL))
		if len(digits) == 8 {
			found[digits] = struct{}{}
		}
	}

	for _, m := range bareNumberPattern.FindAllString(text, -1) {
		found[m] = struct{}{}
	}

	return found
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
