// Package output implements the concrete output sinks named in
// SPEC_FULL.md §4.10: stdout, table, file, HTTP POST, and Prometheus
// metrics. Each is a thin adapter over an established library; none of
// them touch core executor state.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/wbrown/janus-nql/nql"
)

// Stdout writes each event as a JSON line, colorized by kind the same
// way datalog/executor/relation.go and datalog/annotations/output.go
// colorize terminal output: errors red, correlations magenta,
// aggregates cyan.
type Stdout struct {
	w io.Writer
}

func NewStdout(w io.Writer) *Stdout {
	return &Stdout{w: w}
}

func (s *Stdout) Handle(event *nql.Event) {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		fmt.Fprintln(s.w, color.RedString("nql: marshal error: %v", err))
		return
	}

	switch event.Kind {
	case nql.KindError:
		fmt.Fprintln(s.w, color.RedString(string(data)))
	case nql.KindCorrelation:
		fmt.Fprintln(s.w, color.MagentaString(string(data)))
	case nql.KindDerived:
		fmt.Fprintln(s.w, color.CyanString(string(data)))
	default:
		fmt.Fprintln(s.w, string(data))
	}
}
