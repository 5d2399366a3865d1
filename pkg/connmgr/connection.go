package connmgr

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ConnectionState tracks where a ServerConnection is in its lifecycle.
type ConnectionState int

const (
	// StateLaunching means the lifecycle task has not finished the
	// handshake yet.
	StateLaunching ConnectionState = iota
	// StateReady means the handshake and init hook completed and the
	// session is usable.
	StateReady
	// StateFailed means the launch failed; the connection carries an error
	// instead of a session.
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// ServerConnection is the record of one named, long-lived server
// connection: the protocol session plus the transport it runs over. It is
// created by the ConnectionManager and populated exclusively by its own
// lifecycle task. A connection is single-use: once shut down it is removed
// from the manager's table and a fresh launch builds a new value.
type ServerConnection struct {
	name   string
	config ServerConfig

	transportFactory TransportFactory
	sessionFactory   SessionFactory
	initHook         InitHook

	mu           sync.Mutex
	sessionBuilt bool
	session      Session
	state        ConnectionState
	err          error

	readyOnce sync.Once
	ready     chan struct{}

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

func newServerConnection(name string, cfg ServerConfig, tf TransportFactory, sf SessionFactory, hook InitHook) *ServerConnection {
	return &ServerConnection{
		name:             name,
		config:           cfg,
		transportFactory: tf,
		sessionFactory:   sf,
		initHook:         hook,
		state:            StateLaunching,
		ready:            make(chan struct{}),
		shutdown:         make(chan struct{}),
	}
}

// Name returns the registry name this connection was launched under.
func (c *ServerConnection) Name() string { return c.name }

// Config returns the configuration used to build this connection.
func (c *ServerConnection) Config() ServerConfig { return c.config }

// RequestShutdown signals the lifecycle task to unwind. It is idempotent,
// non-blocking, and safe to call from any goroutine.
func (c *ServerConnection) RequestShutdown() {
	c.shutdownOnce.Do(func() { close(c.shutdown) })
}

// ShutdownRequested reports whether shutdown has been signaled.
func (c *ServerConnection) ShutdownRequested() bool {
	select {
	case <-c.shutdown:
		return true
	default:
		return false
	}
}

// waitShutdown blocks the lifecycle task until shutdown is requested or
// the shared scope is cancelled.
func (c *ServerConnection) waitShutdown(ctx context.Context) {
	select {
	case <-c.shutdown:
	case <-ctx.Done():
	}
}

// WaitReady blocks until the connection has been marked ready, whether the
// launch succeeded or failed. Every launched connection is eventually
// marked, so waiters cannot hang; ctx cancellation releases the caller
// early. Any number of goroutines may wait concurrently.
func (c *ServerConnection) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the connection's lifecycle state.
func (c *ServerConnection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the protocol session, or nil while launching and after a
// failed launch.
func (c *ServerConnection) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return nil
	}
	return c.session
}

// ClientSession narrows the session to the default SDK-backed
// implementation.
func (c *ServerConnection) ClientSession() (*ClientSession, bool) {
	s, ok := c.Session().(*ClientSession)
	return s, ok
}

// Err returns the launch error for a failed connection, nil otherwise.
func (c *ServerConnection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// markReady transitions the connection to StateReady and releases every
// WaitReady caller. Called once by the lifecycle task after the handshake
// and init hook complete.
func (c *ServerConnection) markReady() {
	c.mu.Lock()
	c.state = StateReady
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })
}

// fail records the launch error, discards any partially built session, and
// releases every WaitReady caller so nobody hangs on a dead launch.
func (c *ServerConnection) fail(err error) {
	c.mu.Lock()
	c.state = StateFailed
	c.err = err
	c.session = nil
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })
}

// buildSession constructs the session via the configured factory, applying
// the configured read timeout, and stores it. It must be called at most
// once, by the owning lifecycle task, before the connection is marked
// ready.
func (c *ServerConnection) buildSession(transport mcp.Transport) (Session, error) {
	c.mu.Lock()
	if c.sessionBuilt {
		c.mu.Unlock()
		return nil, fmt.Errorf("connmgr: session already built for %q", c.name)
	}
	c.sessionBuilt = true
	c.mu.Unlock()

	sess, err := c.sessionFactory(transport, c.config.base().ReadTimeout)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
	return sess, nil
}
