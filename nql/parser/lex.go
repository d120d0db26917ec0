package parser

import (
	"strconv"
	"strings"
)

// isBoundary reports whether b can delimit a keyword per spec §4.2:
// "boundary = space, '(', ')', ',', or end of input."
func isBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '(', ')', ',':
		return true
	default:
		return false
	}
}

func matchKeywordAt(s string, i int, kw string) bool {
	if i+len(kw) > len(s) {
		return false
	}
	if !strings.EqualFold(s[i:i+len(kw)], kw) {
		return false
	}
	if i > 0 && !isBoundary(s[i-1]) {
		return false
	}
	if i+len(kw) < len(s) && !isBoundary(s[i+len(kw)]) {
		return false
	}
	return true
}

// findKeywordExtent scans s for the first occurrence of any of keywords
// that sits at paren depth zero, outside quoted strings, and on a word
// boundary. It honors nested parens and single/double quoted strings
// with backslash escapes, per spec §4.2's FILTER extent-finding rule.
func findKeywordExtent(s string, keywords []string) (idx int, kw string, found bool) {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
			continue
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth == 0 {
			for _, k := range keywords {
				if matchKeywordAt(s, i, k) {
					return i, k, true
				}
			}
		}
	}
	return -1, "", false
}

// extentUntilKeywords splits s at the first top-level keyword match,
// returning the text before it (trimmed), the matched keyword, and the
// remainder starting AT the keyword (not consumed). If no keyword is
// found, the whole of s (trimmed) is returned with an empty remainder.
func extentUntilKeywords(s string, keywords []string) (before, kw, rest string) {
	idx, k, found := findKeywordExtent(s, keywords)
	if !found {
		return strings.TrimSpace(s), "", ""
	}
	return strings.TrimSpace(s[:idx]), k, s[idx:]
}

// findOuterClose finds the index, within s, of the ')' that closes the
// paren implicitly opened before s started — honoring quotes and any
// nested parens inside s.
func findOuterClose(s string) (int, bool) {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return i, true
			}
			depth--
		}
	}
	return -1, false
}

// splitTopLevel splits s at every occurrence of sep that sits at paren
// depth zero and outside quoted strings.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// splitFirstWord returns the leading run of letters and the unmodified
// remainder (including any leading delimiter, e.g. a space or '(').
func splitFirstWord(s string) (word, rest string) {
	i := 0
	for i < len(s) && isLetter(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func splitFieldList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDurationMs parses a DURATION token: an unsigned integer followed
// by one of ms|s|m|h, normalized to milliseconds per spec §4.2.
func parseDurationMs(s string) (int64, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, &strconv.NumError{Func: "parseDurationMs", Num: s, Err: strconv.ErrSyntax}
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(strings.TrimSpace(s[i:])) {
	case "ms":
		return n, nil
	case "s":
		return n * 1000, nil
	case "m":
		return n * 60 * 1000, nil
	case "h":
		return n * 3600 * 1000, nil
	default:
		return 0, &strconv.NumError{Func: "parseDurationMs", Num: s, Err: strconv.ErrSyntax}
	}
}
