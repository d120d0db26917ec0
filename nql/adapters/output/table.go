package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wbrown/janus-nql/nql"
	"github.com/wbrown/janus-nql/nql/ast"
)

// Table renders `show` results as a markdown table, grounded on the
// teacher's TableFormatter (datalog/executor/table_formatter.go):
// buffer rows, then render once on Flush so columns stay aligned.
type Table struct {
	w      io.Writer
	fields []string
	rows   [][]string
}

// NewTable builds a Table sink for a show stage. A nil or select-all
// node takes its columns from the sorted field names of the first
// handled event; fields that only later events carry are not shown.
func NewTable(w io.Writer, node *ast.ShowNode) *Table {
	var fields []string
	if node != nil {
		fields = node.Fields
	}
	return &Table{w: w, fields: fields}
}

func (t *Table) Handle(event *nql.Event) {
	fields := t.fields
	if len(fields) == 0 {
		fields = sortedFields(event.Payload)
	}
	row := make([]string, len(fields))
	for i, f := range fields {
		val, ok := event.Payload.Lookup(f)
		if !ok {
			row[i] = "nil"
			continue
		}
		row[i] = formatValue(val)
	}
	if len(t.fields) == 0 {
		t.fields = fields
	}
	t.rows = append(t.rows, row)
}

// Flush renders all buffered rows as one markdown table.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		fmt.Fprintln(t.w, "_No rows_")
		return
	}

	alignment := make([]tw.Align, len(t.fields))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(t.w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(t.fields)
	for _, row := range t.rows {
		table.Append(row)
	}
	table.Render()
	fmt.Fprintf(t.w, "\n_%d rows_\n", len(t.rows))
}

func sortedFields(v nql.Value) []string {
	fields := v.Fields()
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func formatValue(v nql.Value) string {
	switch v.Kind() {
	case nql.KindString:
		s, _ := v.AsString()
		return s
	case nql.KindInt, nql.KindFloat:
		s, _ := v.AsString()
		return s
	case nql.KindBool:
		s, _ := v.AsString()
		return s
	case nql.KindNull:
		return "nil"
	default:
		var sb strings.Builder
		fmt.Fprintf(&sb, "%v", v.ToInterface())
		return sb.String()
	}
}
