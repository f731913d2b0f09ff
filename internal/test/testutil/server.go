// Package testutil provides shared helpers for package tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestHTTPServer represents a test HTTP server
type TestHTTPServer struct {
	t      *testing.T
	Server *httptest.Server
}

// NewTestHTTPServer creates a new test HTTP server
func NewTestHTTPServer(t *testing.T, handler http.Handler) *TestHTTPServer {
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
	})
	return &TestHTTPServer{
		t:      t,
		Server: server,
	}
}

// URL returns the server URL
func (s *TestHTTPServer) URL() string {
	return s.Server.URL
}

// Client returns an HTTP client configured for the test server
func (s *TestHTTPServer) Client() *http.Client {
	return s.Server.Client()
}

// DialWebSocket opens a websocket connection to the given path on the test
// server.
func (s *TestHTTPServer) DialWebSocket(path string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.Server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(s.t, err)
	s.t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

// WithTestHTTPServer runs a test with an HTTP server
func WithTestHTTPServer(t *testing.T, handler http.Handler, fn func(*TestHTTPServer)) {
	server := NewTestHTTPServer(t, handler)
	fn(server)
}
