package flows

import (
	"strings"

	"github.com/pensionportal/recovery/internal"
)

const (
	identifierMinDigits = 8
	identifierMaxDigits = 12
)

// NormalizeIdentifier trims surrounding whitespace, strips one optional
// case-insensitive prefix from prefixes and checks the rest is 8-12 ASCII
// digits. The returned form is the upper-case prefix followed by the digits.
func NormalizeIdentifier(raw string, prefixes []string) (string, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == "" {
		return "", false
	}

	prefix := ""
	for _, p := range prefixes {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" && strings.HasPrefix(v, p) && len(p) > len(prefix) {
			prefix = p
		}
	}

	digits := v[len(prefix):]
	if len(digits) < identifierMinDigits || len(digits) > identifierMaxDigits {
		return "", false
	}
	if !internal.IsNumeric(digits) {
		return "", false
	}
	return prefix + digits, true
}
