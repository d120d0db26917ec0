package parsers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wbrown/janus-nql/nql"
)

// Logfmt parses a "key=value key2=\"quoted value\" key3" line into a
// payload tree. No logfmt decoder appears anywhere in the corpus (see
// DESIGN.md), so this is a hand-rolled scanner: bare keys become
// boolean true per the convention tools like heroku/logfmt use, quoted
// values support backslash escapes, and unquoted values are coerced to
// int/float/bool where they parse cleanly and left as strings otherwise.
func Logfmt(line []byte) (nql.Value, error) {
	s := string(line)
	fields := make(map[string]nql.Value)

	i := 0
	for i < len(s) {
		for i < len(s) && s[i] == ' ' {
			i++
		}
		if i >= len(s) {
			break
		}

		keyStart := i
		for i < len(s) && s[i] != '=' && s[i] != ' ' {
			i++
		}
		key := s[keyStart:i]
		if key == "" {
			return nql.Null, fmt.Errorf("logfmt: unexpected '=' at byte %d", i)
		}

		if i >= len(s) || s[i] != '=' {
			fields[key] = nql.NewBool(true)
			continue
		}
		i++ // consume '='

		var value string
		if i < len(s) && s[i] == '"' {
			i++
			var sb strings.Builder
			for i < len(s) && s[i] != '"' {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				sb.WriteByte(s[i])
				i++
			}
			if i >= len(s) {
				return nql.Null, fmt.Errorf("logfmt: unterminated quoted value for key %q", key)
			}
			i++ // consume closing quote
			fields[key] = nql.NewString(sb.String())
			continue
		} else {
			valStart := i
			for i < len(s) && s[i] != ' ' {
				i++
			}
			value = s[valStart:i]
		}

		fields[key] = coerceLogfmtValue(value)
	}

	return nql.NewObject(fields), nil
}

func coerceLogfmtValue(s string) nql.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return nql.NewInt(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return nql.NewFloat(f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return nql.NewBool(b)
	}
	return nql.NewString(s)
}
