package connmgr

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// TransportFactory produces a fresh transport for one connection attempt.
// Building a transport performs no I/O; the session's Initialize is what
// actually opens it.
type TransportFactory func() (mcp.Transport, error)

// transportFactoryFor binds a config variant to its transport constructor.
// The default arm guards ServerConfig implementations defined outside this
// package, which the closed variant set does not admit.
func transportFactoryFor(name string, cfg ServerConfig) TransportFactory {
	return func() (mcp.Transport, error) {
		switch c := cfg.(type) {
		case *StdioServerConfig:
			return stdioTransport(name, c)
		case *HTTPServerConfig:
			return httpTransport(name, c)
		default:
			return nil, fmt.Errorf("%w: %T for %q", ErrUnsupportedTransport, cfg, name)
		}
	}
}

func stdioTransport(name string, cfg *StdioServerConfig) (mcp.Transport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("connmgr: command missing for %q", name)
	}
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

func httpTransport(name string, cfg *HTTPServerConfig) (mcp.Transport, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("connmgr: endpoint missing for %q", name)
	}
	client := decorateHTTPClient(cfg.HTTPClient, cfg.Headers, cfg.Auth)
	if preferSSE(cfg) {
		return &mcp.SSEClientTransport{Endpoint: cfg.Endpoint, HTTPClient: client}, nil
	}
	return &mcp.StreamableClientTransport{Endpoint: cfg.Endpoint, HTTPClient: client}, nil
}

func preferSSE(cfg *HTTPServerConfig) bool {
	if cfg.PreferSSE != nil {
		return *cfg.PreferSSE
	}
	return strings.HasSuffix(strings.TrimSpace(cfg.Endpoint), "/sse")
}

// decorateHTTPClient returns a shallow clone of base whose transport
// injects the static headers and auth material. The base client is never
// mutated.
func decorateHTTPClient(base *http.Client, headers http.Header, auth *AuthConfig) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	if len(headers) == 0 && auth == nil {
		return base
	}
	clone := *base
	clone.Transport = &headerDecorator{
		next:    defaultRoundTripper(base.Transport),
		headers: cloneHeader(headers),
		auth:    auth,
	}
	return &clone
}

type headerDecorator struct {
	next    http.RoundTripper
	headers http.Header
	auth    *AuthConfig
}

func (d *headerDecorator) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for k, values := range d.headers {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if d.auth != nil {
		for k, v := range d.auth.Headers {
			req.Header.Set(k, v)
		}
		if d.auth.APIKey != "" && req.Header.Get("Authorization") == "" {
			req.Header.Set("Authorization", "Bearer "+d.auth.APIKey)
		}
	}
	return d.next.RoundTrip(req)
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}

func cloneHeader(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	clone := make(http.Header, len(h))
	for k, values := range h {
		clone[k] = append([]string(nil), values...)
	}
	return clone
}
