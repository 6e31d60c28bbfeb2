package services

import (
	"net/mail"
	"strings"
)

// NormEmail lowercases and checks an address. Empty is reported as invalid
// since the confirmation is sent there.
func NormEmail(s string) (string, bool) {
	e := strings.TrimSpace(strings.ToLower(s))
	if e == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(e)
	if err != nil {
		return e, false
	}
	return addr.Address, true
}
