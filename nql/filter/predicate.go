package filter

import (
	"fmt"

	"github.com/coregx/coregex/meta"
	"github.com/wbrown/janus-nql/nql"
)

// Op is a filter comparison operator, per spec §4.1.
type Op string

const (
	OpEQ     Op = "=="
	OpNE     Op = "!="
	OpLT     Op = "<"
	OpLTE    Op = "<="
	OpGT     Op = ">"
	OpGTE    Op = ">="
	OpMatch  Op = "=~"
	OpNMatch Op = "!~"
	OpIn     Op = "IN"
)

// Predicate is a compiled, stateless, referentially transparent filter
// expression. It may be shared by reference across queries and buckets
// per spec §3.
type Predicate interface {
	Eval(payload nql.Value) bool
	String() string
}

// Compiled is the result of compiling a filter expression: a root
// Predicate plus the original text it was compiled from.
type Compiled struct {
	Text string
	Root Predicate
}

func (c *Compiled) Eval(payload nql.Value) bool {
	if c == nil || c.Root == nil {
		return true
	}
	return c.Root.Eval(payload)
}

func (c *Compiled) String() string { return c.Text }

// andNode/orNode/notNode implement the boolean combinators.
type andNode struct{ left, right Predicate }

func (n andNode) Eval(p nql.Value) bool { return n.left.Eval(p) && n.right.Eval(p) }
func (n andNode) String() string        { return fmt.Sprintf("(%s AND %s)", n.left, n.right) }

type orNode struct{ left, right Predicate }

func (n orNode) Eval(p nql.Value) bool { return n.left.Eval(p) || n.right.Eval(p) }
func (n orNode) String() string        { return fmt.Sprintf("(%s OR %s)", n.left, n.right) }

type notNode struct{ inner Predicate }

func (n notNode) Eval(p nql.Value) bool { return !n.inner.Eval(p) }
func (n notNode) String() string        { return fmt.Sprintf("NOT %s", n.inner) }

// atomNode is a single `path OP literal` comparison.
type atomNode struct {
	path    string
	op      Op
	literal nql.Value
	list    []nql.Value // populated for OpIn
	regex   *meta.Engine
	raw     string // original source text, for String()
}

func (n *atomNode) Eval(payload nql.Value) bool {
	field, present := payload.Lookup(n.path)

	switch n.op {
	case OpEQ:
		if !present {
			return false
		}
		return nql.DeepEqual(field, n.literal)
	case OpNE:
		if !present {
			return true
		}
		return !nql.DeepEqual(field, n.literal)
	case OpLT, OpLTE, OpGT, OpGTE:
		if !present {
			return false
		}
		cmp := nql.CompareValues(field, n.literal)
		switch n.op {
		case OpLT:
			return cmp < 0
		case OpLTE:
			return cmp <= 0
		case OpGT:
			return cmp > 0
		default:
			return cmp >= 0
		}
	case OpMatch, OpNMatch:
		matched := false
		if present {
			if s, ok := field.AsString(); ok && n.regex != nil {
				matched = n.regex.Find([]byte(s)) != nil
			}
		}
		if n.op == OpMatch {
			return matched
		}
		return !matched
	case OpIn:
		if !present {
			return false
		}
		for _, item := range n.list {
			if nql.DeepEqual(field, item) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (n *atomNode) String() string { return n.raw }
