// Package connmgr manages the lifecycle of multiple long-lived Model
// Context Protocol (MCP) server connections on behalf of a calling
// application. Each named connection is launched at most once, driven by a
// background lifecycle task that opens the transport, performs the protocol
// handshake, runs an optional init hook, and then holds the connection open
// until shutdown is requested.
//
// # Core entry points
//
//   - ConnectionManager is the long-lived orchestration type. Construct it
//     with NewConnectionManager, call Start, then use GetServer to obtain a
//     ready connection and Disconnect / DisconnectAll to tear them down.
//   - ServerConfig (with the StdioServerConfig / HTTPServerConfig variants)
//     declares how each server is launched or contacted. Configs are
//     resolved through a Registry collaborator.
//   - AppContext carries the shared task scope all lifecycle tasks run
//     under. Managers entered against the same AppContext share that scope;
//     only the manager whose Start created it tears it down, so nested use
//     never cancels an outer manager's connections.
//
// Concurrent callers requesting the same name share one launch: the table
// is guarded by a single mutex, readiness is a one-shot broadcast signal,
// and a launch failure releases every waiter with an error rather than a
// dead connection. Launch failures are never retried by this package.
package connmgr
