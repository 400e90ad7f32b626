package providers

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	e164      = regexp.MustCompile(`^\+[1-9]\d{9,14}$`)
	nonDigits = regexp.MustCompile(`\D`)
)

// FormatE164 prefixes local Egyptian mobile numbers (01...) with +2 and
// anything else lacking a plus with +.
func FormatE164(phone string) string {
	phone = strings.TrimSpace(phone)
	switch {
	case strings.HasPrefix(phone, "+"):
		return phone
	case strings.HasPrefix(phone, "01"):
		return "+2" + phone
	default:
		return "+" + phone
	}
}

// ValidE164 reports whether phone is a plus-prefixed international number.
func ValidE164(phone string) bool {
	return e164.MatchString(phone)
}

// FormatWhatsAppID returns the digits-only recipient id the Cloud API
// expects, assuming Egypt for local numbers.
func FormatWhatsAppID(phone string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	if strings.HasPrefix(digits, "0") {
		digits = "2" + digits
	}
	if !strings.HasPrefix(digits, "2") && len(digits) == 10 {
		digits = "20" + digits
	}
	return digits
}

func validWhatsAppID(id string) bool {
	return len(id) >= 10 && len(id) <= 15
}

func validLength(msg string, max int) bool {
	n := utf8.RuneCountInString(msg)
	return n > 0 && n <= max
}
