// Package parser compiles QL pipeline text into an ast.Node tree, per
// spec §4.2. Grounded on the teacher's datalog/parser/parser.go in
// structure (top-down recursive descent over a pre-scanned grammar)
// though QL's keyword-boundary FILTER extraction has no analog there —
// it is original to this grammar's "FILTER runs until the next
// reserved word" design.
package parser

import (
	"strconv"
	"strings"

	"github.com/wbrown/janus-nql/nql/ast"
	"github.com/wbrown/janus-nql/nql/filter"
)

// Compile parses a QL query and returns its AST. A single-stage
// pipeline is elided to its lone stage per spec §4.2's equivalence
// rule.
func Compile(query string) (ast.Node, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, syntaxErr(query, "empty query")
	}

	stageTexts := splitTopLevel(trimmed, '|')
	stages := make([]ast.Node, 0, len(stageTexts))
	for _, raw := range stageTexts {
		text := strings.TrimSpace(raw)
		if text == "" {
			return nil, syntaxErr(query, "empty stage in pipeline")
		}
		node, err := parseStage(query, text)
		if err != nil {
			return nil, err
		}
		stages = append(stages, node)
	}

	if len(stages) == 1 {
		return stages[0], nil
	}
	return &ast.PipelineNode{Stages: stages}, nil
}

func parseStage(query, text string) (ast.Node, error) {
	word, rest := splitFirstWord(text)
	switch strings.ToLower(word) {
	case "correlate":
		return parseCorrelate(query, rest)
	case "aggregate":
		return parseAggregate(query, rest)
	case "show":
		return parseShow(query, rest)
	}

	if strings.HasPrefix(text, "*") {
		return parseSelectAll(query, text)
	}

	compiled, err := filter.Compile(text)
	if err != nil {
		return nil, wrapSyntaxErr(query, "invalid filter stage", err)
	}
	return &ast.FilterNode{Predicate: compiled}, nil
}

func parseSelectAll(query, text string) (ast.Node, error) {
	afterStar := strings.TrimSpace(text[1:])
	compiled, err := parseOptionalWhereClause(query, afterStar)
	if err != nil {
		return nil, err
	}
	return &ast.ShowNode{SelectAll: true, Filter: compiled}, nil
}

func parseShow(query, rest string) (ast.Node, error) {
	trimmed := strings.TrimSpace(rest)
	if trimmed == "" {
		return nil, syntaxErr(query, "expected '*' or field list after 'show'")
	}
	if strings.HasPrefix(trimmed, "*") {
		return parseSelectAll(query, trimmed)
	}

	fieldsText, kw, afterFields := extentUntilKeywords(trimmed, []string{"where"})
	fields := splitFieldList(fieldsText)
	if len(fields) == 0 {
		return nil, syntaxErr(query, "expected field list after 'show'")
	}

	var compiled *filter.Compiled
	if kw != "" {
		var err error
		compiled, err = parseOptionalWhereClause(query, afterFields)
		if err != nil {
			return nil, err
		}
	}
	return &ast.ShowNode{Fields: fields, Filter: compiled}, nil
}

func parseOptionalWhereClause(query, s string) (*filter.Compiled, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	word, rest := splitFirstWord(s)
	if !strings.EqualFold(word, "where") {
		return nil, syntaxErr(query, "unexpected trailing text %q", s)
	}
	filterText := strings.TrimSpace(rest)
	if filterText == "" {
		return nil, syntaxErr(query, "expected filter expression after 'where'")
	}
	compiled, err := filter.Compile(filterText)
	if err != nil {
		return nil, wrapSyntaxErr(query, "invalid where clause", err)
	}
	return compiled, nil
}

func parseCorrelate(query, rest string) (ast.Node, error) {
	leftText, kw, afterLeft := extentUntilKeywords(rest, []string{"with"})
	if kw == "" {
		return nil, syntaxErr(query, "expected 'with' after correlate filter")
	}
	if strings.TrimSpace(leftText) == "" {
		return nil, syntaxErr(query, "expected filter expression before 'with'")
	}
	leftCompiled, err := filter.Compile(leftText)
	if err != nil {
		return nil, wrapSyntaxErr(query, "invalid correlate left filter", err)
	}

	_, afterWith := splitFirstWord(strings.TrimSpace(afterLeft))

	rightText, kw2, afterRight := extentUntilKeywords(afterWith, []string{"within"})
	if strings.TrimSpace(rightText) == "" {
		return nil, syntaxErr(query, "expected filter expression after 'with'")
	}
	rightCompiled, err := filter.Compile(rightText)
	if err != nil {
		return nil, wrapSyntaxErr(query, "invalid correlate right filter", err)
	}

	withinMs := int64(100)
	if kw2 != "" {
		_, afterWithin := splitFirstWord(strings.TrimSpace(afterRight))
		durText := strings.TrimSpace(afterWithin)
		if durText == "" {
			return nil, syntaxErr(query, "expected duration after 'within'")
		}
		ms, err := parseDurationMs(durText)
		if err != nil {
			return nil, wrapSyntaxErr(query, "invalid duration after 'within'", err)
		}
		withinMs = ms
	}

	return &ast.CorrelateNode{Left: leftCompiled, Right: rightCompiled, WithinMs: withinMs}, nil
}

func parseAggregate(query, rest string) (ast.Node, error) {
	trimmed := strings.TrimSpace(rest)
	if trimmed == "" {
		return nil, syntaxErr(query, "expected aggregation function list after 'aggregate'")
	}

	var listText, afterList string
	if strings.HasPrefix(trimmed, "(") {
		inner := trimmed[1:]
		idx, found := findOuterClose(inner)
		if !found {
			return nil, syntaxErr(query, "expected ')' after aggregate function list")
		}
		listText = inner[:idx]
		afterList = inner[idx+1:]
	} else {
		listText, _, afterList = extentUntilKeywords(trimmed, []string{"by", "where", "window"})
	}

	var funcs []ast.AggFunc
	for _, raw := range splitTopLevel(listText, ',') {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		fn, err := parseAggFunc(query, text)
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, fn)
	}
	if len(funcs) == 0 {
		return nil, syntaxErr(query, "expected at least one aggregation function")
	}

	groupBy, filterCompiled, window, err := parseAggregateClauses(query, afterList)
	if err != nil {
		return nil, err
	}

	return &ast.AggregateNode{Filter: filterCompiled, GroupBy: groupBy, Funcs: funcs, Window: window}, nil
}

func parseAggregateClauses(query, s string) ([]string, *filter.Compiled, ast.Window, error) {
	window := ast.Window{Kind: ast.WindowNone}
	var groupBy []string
	var filterCompiled *filter.Compiled

	s = strings.TrimSpace(s)

	if s != "" {
		word, rest := splitFirstWord(s)
		if strings.EqualFold(word, "by") {
			listText, _, afterBy := extentUntilKeywords(strings.TrimSpace(rest), []string{"where", "window"})
			groupBy = splitFieldList(listText)
			if len(groupBy) == 0 {
				return nil, nil, window, syntaxErr(query, "expected field list after 'by'")
			}
			s = strings.TrimSpace(afterBy)
		}
	}

	if s != "" {
		word, rest := splitFirstWord(s)
		if strings.EqualFold(word, "where") {
			filterText, _, afterWhere := extentUntilKeywords(strings.TrimSpace(rest), []string{"window"})
			if strings.TrimSpace(filterText) == "" {
				return nil, nil, window, syntaxErr(query, "expected filter expression after 'where'")
			}
			compiled, err := filter.Compile(filterText)
			if err != nil {
				return nil, nil, window, wrapSyntaxErr(query, "invalid where clause", err)
			}
			filterCompiled = compiled
			s = strings.TrimSpace(afterWhere)
		}
	}

	if s != "" {
		word, rest := splitFirstWord(s)
		if strings.EqualFold(word, "window") {
			w, err := parseWindowSpec(query, strings.TrimSpace(rest))
			if err != nil {
				return nil, nil, window, err
			}
			window = w
			s = ""
		}
	}

	if s != "" {
		return nil, nil, window, syntaxErr(query, "unexpected trailing text %q in aggregate clause", s)
	}
	return groupBy, filterCompiled, window, nil
}

func parseAggFunc(query, text string) (ast.AggFunc, error) {
	word, rest := splitFirstWord(text)
	lw := strings.ToLower(word)
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "(") {
		return ast.AggFunc{}, syntaxErr(query, "expected '(' after aggregation function %q", word)
	}
	inner := rest[1:]
	idx, found := findOuterClose(inner)
	if !found {
		return ast.AggFunc{}, syntaxErr(query, "expected ')' after aggregation function %q", word)
	}
	if strings.TrimSpace(inner[idx+1:]) != "" {
		return ast.AggFunc{}, syntaxErr(query, "unexpected trailing text after %q(...)", word)
	}
	argsText := strings.TrimSpace(inner[:idx])

	switch lw {
	case "count":
		if argsText != "" {
			return ast.AggFunc{}, syntaxErr(query, "count() takes no arguments")
		}
		return ast.AggFunc{Name: "count"}, nil
	case "percentile":
		parts := splitTopLevel(argsText, ',')
		if len(parts) != 2 {
			return ast.AggFunc{}, syntaxErr(query, "expected 'percentile(field, p)'")
		}
		field := strings.TrimSpace(parts[0])
		if field == "" {
			return ast.AggFunc{}, syntaxErr(query, "percentile requires a field")
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return ast.AggFunc{}, wrapSyntaxErr(query, "invalid percentile value", err)
		}
		return ast.AggFunc{Name: "percentile", Field: field, Percentile: p}, nil
	case "sum", "avg", "min", "max", "distinct":
		if argsText == "" {
			return ast.AggFunc{}, syntaxErr(query, "%s() requires a field", lw)
		}
		return ast.AggFunc{Name: lw, Field: argsText}, nil
	default:
		return ast.AggFunc{}, syntaxErr(query, "unknown aggregation function %q", word)
	}
}

func parseWindowSpec(query, s string) (ast.Window, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ast.Window{}, syntaxErr(query, "expected window specification after 'window'")
	}

	word, rest := splitFirstWord(s)
	lw := strings.ToLower(word)
	rest = strings.TrimSpace(rest)

	switch lw {
	case "tumbling":
		if !strings.HasPrefix(rest, "(") {
			return ast.Window{}, syntaxErr(query, "expected '(' after 'tumbling'")
		}
		idx, found := findOuterClose(rest[1:])
		if !found {
			return ast.Window{}, syntaxErr(query, "expected ')' after tumbling window")
		}
		ms, err := parseDurationMs(rest[1 : 1+idx])
		if err != nil {
			return ast.Window{}, wrapSyntaxErr(query, "invalid tumbling window duration", err)
		}
		return ast.Window{Kind: ast.WindowTumbling, SizeMs: ms}, nil

	case "sliding":
		if !strings.HasPrefix(rest, "(") {
			return ast.Window{}, syntaxErr(query, "expected '(' after 'sliding'")
		}
		idx, found := findOuterClose(rest[1:])
		if !found {
			return ast.Window{}, syntaxErr(query, "expected ')' after sliding window")
		}
		parts := splitTopLevel(rest[1:1+idx], ',')
		if len(parts) != 2 {
			return ast.Window{}, syntaxErr(query, "expected 'sliding(size, slide)'")
		}
		sizeMs, err := parseDurationMs(parts[0])
		if err != nil {
			return ast.Window{}, wrapSyntaxErr(query, "invalid sliding window size", err)
		}
		slideMs, err := parseDurationMs(parts[1])
		if err != nil {
			return ast.Window{}, wrapSyntaxErr(query, "invalid sliding window slide", err)
		}
		return ast.Window{Kind: ast.WindowSliding, SizeMs: sizeMs, SlideMs: slideMs}, nil

	case "session":
		if !strings.HasPrefix(rest, "(") {
			return ast.Window{}, syntaxErr(query, "expected '(' after 'session'")
		}
		idx, found := findOuterClose(rest[1:])
		if !found {
			return ast.Window{}, syntaxErr(query, "expected ')' after session window")
		}
		ms, err := parseDurationMs(rest[1 : 1+idx])
		if err != nil {
			return ast.Window{}, wrapSyntaxErr(query, "invalid session window timeout", err)
		}
		return ast.Window{Kind: ast.WindowSession, TimeoutMs: ms}, nil

	default:
		ms, err := parseDurationMs(s)
		if err != nil {
			return ast.Window{}, wrapSyntaxErr(query, "expected window specification", err)
		}
		return ast.Window{Kind: ast.WindowTumbling, SizeMs: ms}, nil
	}
}
