package logging

import (
	"net/url"
	"regexp"
	"strings"
)

// secretParams are query parameters and fields whose values never reach a
// log line in clear.
var secretParams = []string{"token", "authkey", "password", "secret"}

var secretPattern = regexp.MustCompile(`(?i)\b(token|authkey|password|secret|bearer)([=:\s]+)["']?([^\s"'&]+)`)

// MaskSecret keeps at most the first and last four characters of value.
func MaskSecret(value string) string {
	switch n := len(value); {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return value[:2] + strings.Repeat("*", n-2)
	default:
		return value[:4] + strings.Repeat("*", n-8) + value[n-4:]
	}
}

// RedactURL masks secret query parameters of raw. Unparseable input is
// passed through Redact instead.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Redact(raw)
	}
	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if v := q.Get(p); v != "" {
			q.Set(p, MaskSecret(v))
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Redact masks key=value, key: value and "Bearer x" secrets found in free
// text such as error messages.
func Redact(s string) string {
	return secretPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := secretPattern.FindStringSubmatch(match)
		return parts[1] + parts[2] + MaskSecret(parts[3])
	})
}
