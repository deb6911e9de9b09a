package webhook

import (
	"strings"
)

// NormalizePhone canonicalizes an upstream phone into "+<digits>" (or
// bare digits when no country prefix is present). Returns "" when the
// input has no usable number, which downstream treats as "no phone".
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	// Strip URI-style prefixes some carts emit.
	lower := strings.ToLower(s)
	for _, prefix := range []string{"tel:", "sms:", "callto:", "phone:"} {
		if strings.HasPrefix(lower, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimSpace(s)

	plus := strings.HasPrefix(s, "+")
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() < 5 {
		return ""
	}
	if plus {
		return "+" + digits.String()
	}
	return digits.String()
}
