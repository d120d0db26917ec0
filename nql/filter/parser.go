package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coregx/coregex/meta"
	"github.com/wbrown/janus-nql/nql"
)

// Compile parses a filter expression per spec §4.1's grammar:
//
//	expr  := or_expr
//	or_expr  := and_expr (OR and_expr)*
//	and_expr := unary (AND unary)*
//	unary    := NOT unary | atom | '(' expr ')'
//	atom     := PATH OP literal | PATH IN '(' literal (',' literal)* ')'
//
// and returns a *Compiled ready for repeated, side-effect-free Eval
// calls. A nil/empty/all-whitespace expr compiles to an always-true
// predicate, matching the teacher's "absent predicate" convention in
// datalog/query/predicate.go.
func Compile(expr string) (*Compiled, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return &Compiled{Text: expr, Root: nil}, nil
	}

	toks, err := newLexer(trimmed).lexAll()
	if err != nil {
		return nil, newCompileError(expr, "lex error", err)
	}

	p := &exprParser{toks: toks, expr: expr}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, newCompileError(expr, fmt.Sprintf("unexpected trailing token %q", p.peek().text), nil)
	}
	return &Compiled{Text: expr, Root: root}, nil
}

type exprParser struct {
	toks []token
	pos  int
	expr string
}

func (p *exprParser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *exprParser) advance() token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *exprParser) parseOr() (Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (Predicate, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (Predicate, error) {
	if p.peek().kind == tokNot {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	if p.peek().kind == tokLParen {
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, newCompileError(p.expr, "expected closing ')'", nil)
		}
		p.advance()
		return inner, nil
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (Predicate, error) {
	pathTok := p.advance()
	if pathTok.kind != tokIdent {
		return nil, newCompileError(p.expr, fmt.Sprintf("expected field path, got %q", pathTok.text), nil)
	}

	opTok := p.advance()
	switch opTok.kind {
	case tokOp:
		return p.parseComparisonAtom(pathTok.text, Op(opTok.text))
	case tokIn:
		return p.parseInAtom(pathTok.text)
	default:
		return nil, newCompileError(p.expr, fmt.Sprintf("expected operator after %q, got %q", pathTok.text, opTok.text), nil)
	}
}

func (p *exprParser) parseComparisonAtom(path string, op Op) (Predicate, error) {
	litTok := p.advance()
	lit, err := literalValue(litTok)
	if err != nil {
		return nil, newCompileError(p.expr, "invalid literal", err)
	}

	raw := fmt.Sprintf("%s %s %s", path, op, litTok.text)
	if litTok.caseInsensitive {
		raw += "i"
	}
	node := &atomNode{path: path, op: op, literal: lit, raw: raw}

	if op == OpMatch || op == OpNMatch {
		pattern, ok := lit.AsString()
		if !ok {
			return nil, newCompileError(p.expr, "regex operand must be a string", nil)
		}
		if litTok.caseInsensitive {
			pattern = "(?i)" + pattern
		}
		engine, err := meta.Compile(pattern)
		if err != nil {
			return nil, newCompileError(p.expr, fmt.Sprintf("invalid regex %q", pattern), err)
		}
		node.regex = engine
	}
	return node, nil
}

func (p *exprParser) parseInAtom(path string) (Predicate, error) {
	if p.peek().kind != tokLParen {
		return nil, newCompileError(p.expr, "expected '(' after IN", nil)
	}
	p.advance()

	var items []nql.Value
	var raws []string
	for {
		if p.peek().kind == tokRParen {
			break
		}
		litTok := p.advance()
		lit, err := literalValue(litTok)
		if err != nil {
			return nil, newCompileError(p.expr, "invalid IN-list literal", err)
		}
		items = append(items, lit)
		raws = append(raws, litTok.text)
		if p.peek().kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	if p.peek().kind != tokRParen {
		return nil, newCompileError(p.expr, "expected closing ')' in IN list", nil)
	}
	p.advance()

	return &atomNode{
		path: path,
		op:   OpIn,
		list: items,
		raw:  fmt.Sprintf("%s IN (%s)", path, strings.Join(raws, ", ")),
	}, nil
}

func literalValue(t token) (nql.Value, error) {
	switch t.kind {
	case tokString:
		return nql.NewString(t.text), nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nql.Null, err
		}
		return nql.NewFloat(f), nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return nql.NewBool(true), nil
		case "false":
			return nql.NewBool(false), nil
		case "null", "nil":
			return nql.Null, nil
		default:
			return nql.NewString(t.text), nil
		}
	default:
		return nql.Null, fmt.Errorf("expected literal, got %q", t.text)
	}
}
