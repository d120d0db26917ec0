// Package parsers implements the per-format line/payload parsers named
// in SPEC_FULL.md §4.9, each producing an nql.Value payload tree for
// an input adapter to wrap in an Event.
package parsers

import "github.com/wbrown/janus-nql/nql"

// JSONLog parses a single JSON log line into a payload tree.
func JSONLog(line []byte) (nql.Value, error) {
	return nql.ParsePayload(line)
}
