package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTP_RequestLine(t *testing.T) {
	v, ok := HTTP([]byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	require.True(t, ok)
	method, _ := v.Get("http_method")
	s, _ := method.AsString()
	assert.Equal(t, "GET", s)
	path, _ := v.Get("http_path")
	s, _ = path.AsString()
	assert.Equal(t, "/index.html", s)
}

func TestHTTP_StatusLine(t *testing.T) {
	v, ok := HTTP([]byte("HTTP/1.1 404 Not Found\r\n\r\n"))
	require.True(t, ok)
	status, _ := v.Get("http_status")
	n, _ := status.AsNumber()
	assert.Equal(t, 404.0, n)
	reason, _ := v.Get("http_reason")
	s, _ := reason.AsString()
	assert.Equal(t, "Not Found", s)
}

func TestHTTP_NotHTTPReturnsFalse(t *testing.T) {
	_, ok := HTTP([]byte("not an http line at all"))
	assert.False(t, ok)
}

func TestHTTP_EmptyPayloadReturnsFalse(t *testing.T) {
	_, ok := HTTP([]byte(""))
	assert.False(t, ok)
}
