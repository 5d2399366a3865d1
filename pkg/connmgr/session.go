package connmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Session is the manager's view of a protocol session: handshake once,
// close once. Everything else about the session object is opaque to the
// lifecycle machinery.
type Session interface {
	// Initialize performs the protocol handshake. A session is unusable
	// until Initialize returns nil.
	Initialize(ctx context.Context) error
	// Close releases the session and its transport.
	Close() error
}

// SessionFactory builds an un-initialized Session over the given transport.
// timeout is the server's configured read timeout, zero for none.
type SessionFactory func(transport mcp.Transport, timeout time.Duration) (Session, error)

// InitHook runs once per connection immediately after a successful
// handshake, before the connection is marked ready. A hook error fails the
// launch.
type InitHook func(ctx context.Context, session Session, auth *AuthConfig) error

// ClientSession is the default Session implementation, backed by a
// modelcontextprotocol go-sdk client.
type ClientSession struct {
	client    *mcp.Client
	transport mcp.Transport
	timeout   time.Duration

	mu      sync.Mutex
	session *mcp.ClientSession
}

// NewSessionFactory returns a SessionFactory producing ClientSession values
// that advertise the given implementation metadata during the handshake.
func NewSessionFactory(impl *mcp.Implementation, opts *mcp.ClientOptions) SessionFactory {
	if impl == nil {
		impl = &mcp.Implementation{Name: "fast-agent", Version: "1.0.0"}
	}
	return func(transport mcp.Transport, timeout time.Duration) (Session, error) {
		return &ClientSession{
			client:    mcp.NewClient(impl, opts),
			transport: transport,
			timeout:   timeout,
		}, nil
	}
}

// Initialize connects the client over the transport and runs the protocol
// handshake. The read timeout deliberately does not bound this step; a
// handshake deadline, if wanted, belongs to the caller's scope.
func (s *ClientSession) Initialize(ctx context.Context) error {
	sess, err := s.client.Connect(ctx, s.transport, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	return nil
}

// Close closes the underlying SDK session, which also releases the
// transport. Safe to call before Initialize and more than once.
func (s *ClientSession) Close() error {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Close()
}

// Unwrap exposes the underlying SDK session for advanced callers. It is nil
// until Initialize succeeds.
func (s *ClientSession) Unwrap() *mcp.ClientSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Ping sends a protocol-level ping, bounded by the configured read timeout.
func (s *ClientSession) Ping(ctx context.Context, params *mcp.PingParams) error {
	sess, err := s.ready()
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return sess.Ping(ctx, params)
}

// ListTools retrieves the server's tools, bounded by the configured read
// timeout.
func (s *ClientSession) ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	sess, err := s.ready()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return sess.ListTools(ctx, params)
}

// CallTool invokes a tool, bounded by the configured read timeout.
func (s *ClientSession) CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	sess, err := s.ready()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return sess.CallTool(ctx, params)
}

func (s *ClientSession) ready() (*mcp.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, fmt.Errorf("connmgr: session not initialized")
	}
	return s.session, nil
}

func (s *ClientSession) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
