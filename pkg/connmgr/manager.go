package connmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noy2024/fast-agent/pkg/progress"
)

// Registry resolves server names to launch configuration. Implementations
// must be safe for concurrent use; the manager looks a name up once per
// launch and never mutates the result.
type Registry interface {
	Lookup(name string) (ServerConfig, bool)
	InitHookFor(name string) (InitHook, bool)
}

// ManagerOptions configure a ConnectionManager.
type ManagerOptions struct {
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// OnProgress, when set, receives lifecycle progress events.
	OnProgress func(progress.Event)
	// Implementation identifies this client to servers during the
	// handshake. Used by the default session factory.
	Implementation *mcp.Implementation
	// ClientOptions are passed to the default session factory's clients.
	ClientOptions *mcp.ClientOptions
}

func (o *ManagerOptions) normalized() ManagerOptions {
	if o == nil {
		return ManagerOptions{}
	}
	return *o
}

// ConnectionManager supervises the lifecycle of every named server
// connection. One manager serves many concurrent callers: each name is
// launched at most once, readiness is awaited without holding the table
// mutex, and shutdown is cooperative.
type ConnectionManager struct {
	registry       Registry
	appCtx         *AppContext
	logger         *slog.Logger
	onProgress     func(progress.Event)
	defaultFactory SessionFactory

	mu      sync.Mutex
	entered bool
	token   uint64
	scope   *taskScope
	running map[string]*ServerConnection
}

var entryTokens atomic.Uint64

// NewConnectionManager builds a manager over the given registry. appCtx may
// be shared across managers so their lifecycle tasks run under one scope;
// nil gets a private context.
func NewConnectionManager(reg Registry, appCtx *AppContext, opts *ManagerOptions) *ConnectionManager {
	o := opts.normalized()
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if appCtx == nil {
		appCtx = NewAppContext()
	}
	return &ConnectionManager{
		registry:       reg,
		appCtx:         appCtx,
		logger:         o.Logger,
		onProgress:     o.OnProgress,
		defaultFactory: NewSessionFactory(o.Implementation, o.ClientOptions),
		running:        make(map[string]*ServerConnection),
	}
}

// Start binds the manager to the application context's shared task scope,
// creating the scope when this is the first Start against it. The creating
// Start becomes the scope's owner; only the owner's Close tears the scope
// down, so re-entrant use never cancels an outer manager's tasks. Start is
// idempotent.
func (m *ConnectionManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entered {
		return nil
	}
	token := entryTokens.Add(1)
	scope, owned := m.appCtx.acquireScope(token)
	m.scope = scope
	m.token = token
	m.entered = true
	if owned {
		m.logger.Debug("created shared task scope")
	}
	return nil
}

// Close requests shutdown of every connection this manager launched and,
// when this manager's Start created the shared scope, waits for all
// lifecycle tasks to finish unwinding. Shutdown-path errors are aggregated
// and logged, never raised: teardown of one connection must not prevent
// the rest from closing.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	if !m.entered {
		m.mu.Unlock()
		return
	}
	m.entered = false
	token := m.token
	m.mu.Unlock()

	m.DisconnectAll()

	if err := m.appCtx.releaseScope(token); err != nil {
		m.logger.Error("errors during connection shutdown", "error", err)
	}
}

// Launch registers a connection for name and schedules its lifecycle task
// on the shared scope. When name is already running its existing connection
// is returned unchanged; registering the entry and scheduling its task are
// atomic under the table mutex, so concurrent launches cannot double-spawn.
// Launch does not wait for readiness.
func (m *ConnectionManager) Launch(name string, factory SessionFactory, hook InitHook) (*ServerConnection, error) {
	m.mu.Lock()
	entered := m.entered
	m.mu.Unlock()
	if !entered {
		return nil, ErrNotEntered
	}

	cfg, ok := m.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrConfigNotFound, name)
	}
	if hook == nil {
		hook, _ = m.registry.InitHookFor(name)
	}
	if factory == nil {
		factory = m.defaultFactory
	}
	conn := newServerConnection(name, cfg, transportFactoryFor(name, cfg), factory, hook)

	m.mu.Lock()
	if !m.entered {
		m.mu.Unlock()
		return nil, ErrNotEntered
	}
	if existing, ok := m.running[name]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.running[name] = conn
	m.scope.Go(func(ctx context.Context) error {
		return m.runLifecycle(ctx, conn)
	})
	m.mu.Unlock()

	m.logger.Info("connection launched", "server", name, "transport", TransportOf(cfg))
	return conn, nil
}

// GetServer returns a ready connection for name, launching it first when
// absent. Concurrent callers for the same name share a single launch and
// all observe the same connection. When the lifecycle task failed before
// the connection became usable, GetServer reports ErrInitializationFailed
// instead of handing back a dead connection.
func (m *ConnectionManager) GetServer(ctx context.Context, name string, factory SessionFactory, hook InitHook) (*ServerConnection, error) {
	m.mu.Lock()
	conn, ok := m.running[name]
	m.mu.Unlock()

	if !ok {
		var err error
		conn, err = m.Launch(name, factory, hook)
		if err != nil {
			return nil, err
		}
	}

	if err := conn.WaitReady(ctx); err != nil {
		return nil, err
	}
	if conn.State() != StateReady || conn.Session() == nil {
		if cause := conn.Err(); cause != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInitializationFailed, name, cause)
		}
		return nil, fmt.Errorf("%w: %q", ErrInitializationFailed, name)
	}
	return conn, nil
}

// Disconnect removes name from the table and signals its lifecycle task to
// unwind. The signal is sent outside the table mutex. Disconnect does not
// wait for teardown; an unknown name is a logged no-op.
func (m *ConnectionManager) Disconnect(name string) {
	m.mu.Lock()
	conn, ok := m.running[name]
	if ok {
		delete(m.running, name)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("no running connection to disconnect", "server", name)
		return
	}
	conn.RequestShutdown()
	m.logger.Info("disconnect requested", "server", name)
}

// DisconnectAll signals shutdown on every running connection and clears
// the table in one step. Lifecycle tasks finish unwinding under the shared
// scope, not here.
func (m *ConnectionManager) DisconnectAll() {
	m.mu.Lock()
	n := len(m.running)
	for _, conn := range m.running {
		conn.RequestShutdown()
	}
	m.running = make(map[string]*ServerConnection)
	m.mu.Unlock()

	if n > 0 {
		m.logger.Info("disconnect requested for all servers", "count", n)
	}
}

// ListServers returns the names of currently tracked connections, sorted.
func (m *ConnectionManager) ListServers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.running))
	for name := range m.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasServer reports whether name currently has a tracked connection.
func (m *ConnectionManager) HasServer(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[name]
	return ok
}

// Status returns the lifecycle state for name's connection, if tracked.
func (m *ConnectionManager) Status(name string) (ConnectionState, bool) {
	m.mu.Lock()
	conn, ok := m.running[name]
	m.mu.Unlock()
	if !ok {
		return 0, false
	}
	return conn.State(), true
}

func (m *ConnectionManager) emitProgress(action progress.Action, target, details string) {
	if m.onProgress == nil {
		return
	}
	m.onProgress(progress.Event{Action: action, Target: target, Details: details})
}
