// Package phone normalizes Indian mobile numbers to ten national digits.
package phone

import "strings"

const (
	countryCode    = "91"
	nationalDigits = 10
)

// Normalize strips formatting and the +91 / 0 prefixes. It reports false
// when the result is not ten digits.
func Normalize(raw string) (string, bool) {
	var b strings.Builder
	for _, c := range raw {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == nationalDigits+len(countryCode) && strings.HasPrefix(digits, countryCode):
		digits = digits[len(countryCode):]
	case len(digits) == nationalDigits+1 && digits[0] == '0':
		digits = digits[1:]
	case len(digits) == nationalDigits+len(countryCode)+2 && strings.HasPrefix(digits, "00"+countryCode):
		digits = digits[2+len(countryCode):]
	}
	if len(digits) != nationalDigits {
		return "", false
	}
	return digits, true
}

// Dial re-prefixes a national number for outbound dialing.
func Dial(national string) string {
	if national == "" {
		return ""
	}
	return "+" + countryCode + national
}
