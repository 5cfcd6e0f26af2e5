package password

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule names one password requirement. The string form is stable and is
// returned to clients.
type Rule string

const (
	RuleMinLength Rule = "min_length"
	RuleMaxLength Rule = "max_length"
	RuleUppercase Rule = "uppercase"
	RuleLowercase Rule = "lowercase"
	RuleDigit     Rule = "digit"
	RuleSymbol    Rule = "symbol"
)

// DefaultSymbols is the punctuation set accepted for RuleSymbol.
const DefaultSymbols = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?`~"

// Policy is a pure password composition check.
type Policy struct {
	MinLength int
	// MaxLength is in bytes so it lines up with the hasher limits.
	MaxLength int
	Symbols   string
}

func DefaultPolicy() Policy {
	return Policy{
		MinLength: 8,
		MaxLength: bcryptMaxPasswordBytes,
		Symbols:   DefaultSymbols,
	}
}

// Check returns every unmet rule in a fixed order, or nil when pw passes.
// Length counts runes.
func (p Policy) Check(pw string) []Rule {
	var (
		upper, lower, digit, symbol bool
		failed                      []Rule
	)

	symbols := p.Symbols
	if symbols == "" {
		symbols = DefaultSymbols
	}

	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(symbols, r):
			symbol = true
		}
	}

	if utf8.RuneCountInString(pw) < p.MinLength {
		failed = append(failed, RuleMinLength)
	}
	if p.MaxLength > 0 && len(pw) > p.MaxLength {
		failed = append(failed, RuleMaxLength)
	}
	if !upper {
		failed = append(failed, RuleUppercase)
	}
	if !lower {
		failed = append(failed, RuleLowercase)
	}
	if !digit {
		failed = append(failed, RuleDigit)
	}
	if !symbol {
		failed = append(failed, RuleSymbol)
	}
	return failed
}

// Describe returns a short human-readable sentence for r.
func (p Policy) Describe(r Rule) string {
	switch r {
	case RuleMinLength:
		return "must be at least " + strconv.Itoa(p.MinLength) + " characters"
	case RuleMaxLength:
		return "must be at most " + strconv.Itoa(p.MaxLength) + " bytes"
	case RuleUppercase:
		return "must contain an uppercase letter"
	case RuleLowercase:
		return "must contain a lowercase letter"
	case RuleDigit:
		return "must contain a digit"
	case RuleSymbol:
		return "must contain a symbol"
	default:
		return string(r)
	}
}
