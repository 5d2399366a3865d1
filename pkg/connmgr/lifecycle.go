package connmgr

import (
	"context"
	"fmt"

	"github.com/noy2024/fast-agent/pkg/progress"
)

// runLifecycle drives one connection from transport acquisition to
// teardown. It is the only writer of the connection's session field and
// owns the transport and session for the connection's whole life.
//
// Shutdown does not interrupt an in-flight handshake: a late
// RequestShutdown is observed once the task reaches its steady-state wait,
// so the transport and session are never left half-closed.
func (m *ConnectionManager) runLifecycle(ctx context.Context, conn *ServerConnection) error {
	name := conn.Name()
	m.emitProgress(progress.ActionStarting, name, "")

	transport, err := conn.transportFactory()
	if err != nil {
		return m.failLifecycle(conn, err)
	}
	sess, err := conn.buildSession(transport)
	if err != nil {
		return m.failLifecycle(conn, err)
	}
	if err := sess.Initialize(ctx); err != nil {
		m.closeSession(name, sess)
		return m.failLifecycle(conn, err)
	}
	m.emitProgress(progress.ActionInitialized, name, "")

	if hook := conn.initHook; hook != nil {
		m.logger.Info("running init hook", "server", name)
		if err := hook(ctx, sess, conn.config.base().Auth); err != nil {
			m.closeSession(name, sess)
			return m.failLifecycle(conn, fmt.Errorf("init hook: %w", err))
		}
	}

	conn.markReady()
	m.logger.Info("server ready", "server", name, "transport", TransportOf(conn.config))
	m.emitProgress(progress.ActionReady, name, "")

	conn.waitShutdown(ctx)

	m.closeSession(name, sess)
	m.logger.Info("server shut down", "server", name)
	m.emitProgress(progress.ActionShutdown, name, "")
	return nil
}

// failLifecycle marks the connection failed, which also releases every
// readiness waiter, and hands the error back to the shared scope's
// aggregation. No retry happens here or anywhere else in this package.
func (m *ConnectionManager) failLifecycle(conn *ServerConnection, err error) error {
	conn.fail(err)
	m.logger.Error("lifecycle task failed", "server", conn.Name(), "error", err)
	m.emitProgress(progress.ActionError, conn.Name(), err.Error())
	return fmt.Errorf("%s: %w", conn.Name(), err)
}

// closeSession releases the session and transport. Teardown errors are
// logged and swallowed so one misbehaving connection cannot block the
// others from shutting down.
func (m *ConnectionManager) closeSession(name string, sess Session) {
	if err := sess.Close(); err != nil {
		m.logger.Warn("session close error", "server", name, "error", err)
	}
}
