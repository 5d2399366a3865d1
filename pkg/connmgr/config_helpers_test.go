package connmgr

import "testing"

func TestTransportNarrowing(t *testing.T) {
	t.Parallel()

	stdio := &StdioServerConfig{Command: "true"}
	httpCfg := &HTTPServerConfig{Endpoint: "https://example.com/mcp"}

	if got := TransportOf(stdio); got != TransportStdio {
		t.Fatalf("TransportOf(stdio) = %q", got)
	}
	if got := TransportOf(httpCfg); got != TransportHTTP {
		t.Fatalf("TransportOf(http) = %q", got)
	}
	if got := TransportOf(&unknownConfig{}); got != "" {
		t.Fatalf("TransportOf(unknown) = %q, expected empty", got)
	}

	if !IsStdio(stdio) || IsStdio(httpCfg) {
		t.Fatalf("IsStdio misclassified configs")
	}
	if !IsHTTP(httpCfg) || IsHTTP(stdio) {
		t.Fatalf("IsHTTP misclassified configs")
	}

	if narrowed, ok := AsStdio(stdio); !ok || narrowed != stdio {
		t.Fatalf("AsStdio failed to narrow")
	}
	if _, ok := AsStdio(httpCfg); ok {
		t.Fatalf("AsStdio narrowed an HTTP config")
	}
	if narrowed, ok := AsHTTP(httpCfg); !ok || narrowed != httpCfg {
		t.Fatalf("AsHTTP failed to narrow")
	}
	if _, ok := AsHTTP(stdio); ok {
		t.Fatalf("AsHTTP narrowed a stdio config")
	}
}
