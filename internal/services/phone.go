package services

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reLetters = regexp.MustCompile(`[A-Za-z]`)
	// Only allow digits, spaces, +, -, (, ), .
	reAllowed = regexp.MustCompile(`^[0-9+\-\s\(\)\.]+$`)
	// E.164: + followed by 8..15 digits (no leading 0 after +)
	reE164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
)

// NormPhone normalizes phone numbers to E.164, defaulting to Portugal.
// Rules: strip separators; 00.. -> +..; 351.. -> +351..; 9-digit national
// numbers (mobile 9.., landline 2..) -> +351..; ensure leading +.
// Returns "" for input that cannot be a phone number.
func NormPhone(p string) string {
	s := strings.TrimSpace(p)
	if s == "" || reLetters.MatchString(s) || !reAllowed.MatchString(s) {
		return ""
	}

	repl := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "\n", "", "\r", "", "\t", "")
	s = repl.Replace(s)

	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if strings.HasPrefix(s, "351") && len(s) == 12 {
		s = "+" + s
	}
	if len(s) == 9 && (s[0] == '9' || s[0] == '2') {
		s = "+351" + s
	}
	if !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	if !reE164.MatchString(s) {
		return ""
	}
	return s
}

// WaIDFromPhone strips the plus; WhatsApp ids are bare international digits.
func WaIDFromPhone(p string) string {
	return strings.TrimPrefix(NormPhone(p), "+")
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

// altPhones lists the stored forms a number may have been saved under.
func altPhones(p string) []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	n := NormPhone(p)
	add(n)
	add(strings.TrimSpace(p))
	if strings.HasPrefix(n, "+351") && len(n) > 4 {
		add(n[4:])         // 912345678
		add("351" + n[4:]) // 351912345678
	}
	if strings.HasPrefix(n, "+") {
		add(n[1:])
	}
	return out
}
