package services

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reLetters = regexp.MustCompile(`[A-Za-z]`)
	// Only allow digits, spaces, dots, +, -, (, )
	reAllowed = regexp.MustCompile(`^[0-9+\-\s\(\)\.]+$`)
	// E.164-ish: + followed by 8..15 digits (no leading 0 after +)
	reE164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
)

// NormPhone normalizes phone numbers to the +E.164 form stored on registrations.
// Rules: strip separators; 00.. -> +..; 10 digits -> +1..; 1 + 10 digits -> +1..;
// anything else must already carry a country code. Returns "" when invalid.
func NormPhone(p string) string {
	s := strings.TrimSpace(p)

	if s == "" {
		return ""
	}
	if reLetters.MatchString(s) {
		return ""
	}
	if !reAllowed.MatchString(s) {
		return ""
	}

	plus := strings.HasPrefix(s, "+")
	s = digitsOnly(s)

	switch {
	case plus:
		s = "+" + s
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case len(s) == 10:
		// US/Canada local
		s = "+1" + s
	case len(s) == 11 && s[0] == '1':
		s = "+" + s
	default:
		s = "+" + s
	}
	if !reE164.MatchString(s) {
		return ""
	}
	return s
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// altPhones lists the formats a number may have been stored in.
func altPhones(p string) []string {
	out := []string{}
	n := NormPhone(p)
	raw := strings.TrimSpace(p)

	if n != "" {
		out = append(out, n)
	}
	if raw != n && raw != "" {
		out = append(out, raw)
	}
	if strings.HasPrefix(n, "+1") && len(n) == 12 {
		out = append(out, n[2:]) // 5551234567
		out = append(out, n[1:]) // 15551234567
	}
	return out
}
