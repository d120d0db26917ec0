// Command nql runs the streaming correlation and aggregation query
// engine against a log file, a network interface, or both.
package main

import (
	"os"

	"github.com/wbrown/janus-nql/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
