package connmgr

import (
	"net/http"
	"time"
)

// AuthConfig carries optional credentials for a server. The manager applies
// them to HTTP transports and passes them to init hooks; it never mutates
// or logs them.
type AuthConfig struct {
	// APIKey is sent as "Authorization: Bearer <key>" on HTTP transports
	// unless the request already carries an Authorization header.
	APIKey string
	// Headers are additional static headers attached to every request.
	Headers map[string]string
}

// BaseServerConfig captures settings shared by all transport variants.
type BaseServerConfig struct {
	// ReadTimeout bounds individual session requests such as pings and
	// tool calls. It never bounds the initialize handshake; a hung
	// handshake is the surrounding scope's concern.
	ReadTimeout time.Duration
	// Auth is optional credential material for this server.
	Auth *AuthConfig
}

// StdioServerConfig describes a server launched as a child process and
// spoken to over stdio.
type StdioServerConfig struct {
	BaseServerConfig
	Command string
	Args    []string
	// Env entries are merged over the parent process environment.
	Env map[string]string
}

func (c *StdioServerConfig) base() *BaseServerConfig { return &c.BaseServerConfig }

// HTTPServerConfig describes a server reachable over a streaming HTTP
// transport.
type HTTPServerConfig struct {
	BaseServerConfig
	Endpoint   string
	HTTPClient *http.Client
	// Headers are attached to every outbound request.
	Headers http.Header
	// PreferSSE forces the legacy SSE transport. When nil, endpoints
	// ending in "/sse" default to SSE and everything else to Streamable.
	PreferSSE *bool
}

func (c *HTTPServerConfig) base() *BaseServerConfig { return &c.BaseServerConfig }

// ServerConfig is implemented by all transport-specific configurations.
// The variant set is closed: the manager dispatches on the concrete type
// and rejects anything else with ErrUnsupportedTransport.
type ServerConfig interface {
	base() *BaseServerConfig
}
