package util

import (
	"net/mail"
	"strings"
)

const MinPasswordLength = 8

func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

func IsValidPassword(s string) bool {
	return len(s) >= MinPasswordLength
}
