package parsers

import (
	"bufio"
	"bytes"
	"strconv"

	"github.com/wbrown/janus-nql/nql"
)

// HTTP scans a TCP payload for an HTTP/1.1 request or response line
// and summarizes it into an L7 payload tree. It does not attempt full
// message parsing (no body, no chunked-transfer handling) — just
// enough to correlate network flows against HTTP-level fields like
// method, path, and status. Returns ok=false if the payload doesn't
// open with a recognizable request/status line.
func HTTP(tcpPayload []byte) (nql.Value, bool) {
	reader := bufio.NewReader(bytes.NewReader(tcpPayload))
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nql.Null, false
	}
	line = trimCRLF(line)

	if fields, ok := parseRequestLine(line); ok {
		return nql.NewObject(fields), true
	}
	if fields, ok := parseStatusLine(line); ok {
		return nql.NewObject(fields), true
	}
	return nql.Null, false
}

func parseRequestLine(line string) (map[string]nql.Value, bool) {
	parts := splitN(line, ' ', 3)
	if len(parts) != 3 {
		return nil, false
	}
	method, path, version := parts[0], parts[1], parts[2]
	if !isHTTPMethod(method) || len(version) < 5 || version[:5] != "HTTP/" {
		return nil, false
	}
	return map[string]nql.Value{
		"http_method":  nql.NewString(method),
		"http_path":    nql.NewString(path),
		"http_version": nql.NewString(version),
	}, true
}

func parseStatusLine(line string) (map[string]nql.Value, bool) {
	parts := splitN(line, ' ', 3)
	if len(parts) < 2 || len(parts[0]) < 5 || parts[0][:5] != "HTTP/" {
		return nil, false
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, false
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	return map[string]nql.Value{
		"http_version": nql.NewString(parts[0]),
		"http_status":  nql.NewInt(int64(status)),
		"http_reason":  nql.NewString(reason),
	}, true
}

func isHTTPMethod(s string) bool {
	switch s {
	case "GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "PATCH", "CONNECT", "TRACE":
		return true
	default:
		return false
	}
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func splitN(s string, sep byte, n int) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s) && len(parts) < n-1; i++ {
		if s[i] == sep {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
