package value

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Fields splits s around whitespace. Double-quoted strings and parenthesized
// groups are kept intact, so `@Print("a b")` and `"x y"` are single fields.
func Fields(s string) []string {
	var (
		out     []string
		cur     strings.Builder
		depth   int
		inQuote bool
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, r := range s {
		switch {
		case r == StringQuote:
			inQuote = !inQuote
			cur.WriteRune(r)
		case inQuote:
			cur.WriteRune(r)
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case depth == 0 && unicode.IsSpace(r):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// Split splits s on sep wherever sep is outside quotes and parentheses.
// Each part is trimmed. An empty or blank s yields no parts.
func Split(s string, sep rune) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var (
		out     []string
		start   int
		depth   int
		inQuote bool
	)
	for i, r := range s {
		switch {
		case r == StringQuote:
			inQuote = !inQuote
		case inQuote:
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case r == sep && depth == 0:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + utf8.RuneLen(sep)
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

// HasTopLevel reports whether sep occurs in s outside quotes and parentheses.
func HasTopLevel(s string, sep rune) bool {
	return len(Split(s, sep)) > 1
}

// MatchParen returns the index of the parenthesis closing the one at open,
// skipping quoted text and nested groups. It returns -1 when s[open] is not
// '(' or the group is never closed.
func MatchParen(s string, open int) int {
	if open < 0 || open >= len(s) || s[open] != '(' {
		return -1
	}
	depth := 0
	inQuote := false
	for i := open; i < len(s); i++ {
		switch c := s[i]; {
		case c == StringQuote:
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// IndexOpen returns the index of the first '(' outside quotes, or -1.
func IndexOpen(s string, from int) int {
	inQuote := false
	for i := from; i < len(s); i++ {
		switch s[i] {
		case StringQuote:
			inQuote = !inQuote
		case '(':
			if !inQuote {
				return i
			}
		}
	}
	return -1
}

// SplitCall splits a call string of the form name(args) into the name and
// the text between the outermost parentheses. A call without parentheses has
// empty args.
func SplitCall(call string) (name, args string) {
	call = strings.TrimSpace(call)
	open := IndexOpen(call, 0)
	if open < 0 {
		return call, ""
	}
	name = strings.TrimSpace(call[:open])
	if end := MatchParen(call, open); end >= 0 {
		return name, call[open+1 : end]
	}
	return name, call[open+1:]
}
