package config

import (
	"strings"
	"unicode"
)

// SplitQuotedFields is like strings.Fields but ignores spaces inside areas
// surrounded by the specified quote character. A pair of quotes with nothing
// between them produces an empty field.
// To specify a quote character inside a quoted area escape it with a
// backslash: '\''
func SplitQuotedFields(in string, quote rune) []string {
	var (
		r       = []string{}
		cur     strings.Builder
		inField bool
		quoted  bool
		escaped bool
	)

	flush := func() {
		if inField {
			r = append(r, cur.String())
			cur.Reset()
			inField = false
		}
	}

	for _, ch := range in {
		switch {
		case escaped:
			cur.WriteRune(ch)
			escaped = false
		case quoted && ch == '\\':
			escaped = true
		case ch == quote:
			quoted = !quoted
			inField = true
		case quoted:
			cur.WriteRune(ch)
		case unicode.IsSpace(ch):
			flush()
		default:
			cur.WriteRune(ch)
			inField = true
		}
	}
	flush()

	return r
}
