// Package ast defines the QL pipeline syntax tree, per spec §4.2: a
// query compiles to a linear pipeline of stages, each one of filter,
// show, aggregate, or correlate.
package ast

import (
	"fmt"
	"time"

	"github.com/wbrown/janus-nql/nql/filter"
)

// AggFunc names an aggregation function and, for percentile, its
// parameter. Grounded on the teacher's string-keyed function dispatch
// in datalog/executor/aggregation.go's AggregateState, generalized from
// the four SQL-style functions to the window-aware set spec §4.4 names.
type AggFunc struct {
	Name       string // count | sum | avg | min | max | percentile | distinct
	Field      string // field path the function is applied to; empty for count
	Percentile float64
}

func (f AggFunc) String() string {
	if f.Name == "percentile" {
		return fmt.Sprintf("percentile(%s, %g)", f.Field, f.Percentile)
	}
	if f.Field == "" {
		return f.Name + "()"
	}
	return fmt.Sprintf("%s(%s)", f.Name, f.Field)
}

// WindowKind tags which of the four window shapes spec §3/§4.4 define.
type WindowKind int

const (
	WindowNone WindowKind = iota
	WindowTumbling
	WindowSliding
	WindowSession
)

// Window describes the windowing applied to an aggregate stage. Size/Slide/Timeout are already normalized to
// milliseconds by the parser's DURATION handling.
type Window struct {
	Kind    WindowKind
	SizeMs  int64
	SlideMs int64
	TimeoutMs int64
}

func (w Window) String() string {
	switch w.Kind {
	case WindowTumbling:
		return fmt.Sprintf("window(%s)", time.Duration(w.SizeMs)*time.Millisecond)
	case WindowSliding:
		return fmt.Sprintf("window(%s, %s)", time.Duration(w.SizeMs)*time.Millisecond, time.Duration(w.SlideMs)*time.Millisecond)
	case WindowSession:
		return fmt.Sprintf("window session(%s)", time.Duration(w.TimeoutMs)*time.Millisecond)
	default:
		return "window(none)"
	}
}

// Node is a single stage in a QL pipeline.
type Node interface {
	stage()
	String() string
}

// FilterNode evaluates a compiled predicate against incoming events and
// passes them through unchanged when it matches.
type FilterNode struct {
	Predicate *filter.Compiled
}

func (*FilterNode) stage() {}
func (n *FilterNode) String() string {
	return fmt.Sprintf("FILTER(%s)", n.Predicate.Text)
}

// ShowNode evaluates an optional predicate and, if it passes (or is
// absent), signals the event through; it never projects on its own —
// Fields is carried only for the downstream output adapter to use when
// rendering, per spec §4.3.2 / §9.
type ShowNode struct {
	// SelectAll is true for the bare `*` query shorthand.
	SelectAll bool
	Fields    []string
	Filter    *filter.Compiled // optional WHERE clause; nil means "always passes"
}

func (*ShowNode) stage() {}
func (n *ShowNode) String() string {
	head := "SHOW"
	if n.SelectAll {
		head = "*"
	} else if len(n.Fields) > 0 {
		head = fmt.Sprintf("SHOW %v", n.Fields)
	}
	if n.Filter != nil {
		return fmt.Sprintf("%s WHERE %s", head, n.Filter.Text)
	}
	return head
}

// AggregateNode groups matching events by GroupBy field paths (empty
// for a single global group) and maintains windowed running state per
// spec §4.4.
type AggregateNode struct {
	Filter  *filter.Compiled // optional WHERE clause narrowing input
	GroupBy []string
	Funcs   []AggFunc
	Window  Window
}

func (*AggregateNode) stage() {}
func (n *AggregateNode) String() string {
	return fmt.Sprintf("AGGREGATE(by=%v, funcs=%v, %s)", n.GroupBy, n.Funcs, n.Window)
}

// CorrelateNode matches events between a left and right predicate
// within a duration, per spec §4.5.
type CorrelateNode struct {
	Left     *filter.Compiled
	Right    *filter.Compiled
	WithinMs int64
}

func (*CorrelateNode) stage() {}
func (n *CorrelateNode) String() string {
	return fmt.Sprintf("CORRELATE(left=%s, right=%s, within=%dms)", n.Left.Text, n.Right.Text, n.WithinMs)
}

// PipelineNode chains stages left to right: each stage's surviving
// events feed the next. A single-stage pipeline is elided to its lone
// stage by the parser (spec §4.2's equivalence rule) so PipelineNode
// always has at least two stages.
type PipelineNode struct {
	Stages []Node
}

func (*PipelineNode) stage() {}
func (n *PipelineNode) String() string {
	s := ""
	for i, st := range n.Stages {
		if i > 0 {
			s += " | "
		}
		s += st.String()
	}
	return s
}
