package connmgr

import "errors"

var (
	// ErrConfigNotFound is returned when a server name has no entry in the
	// registry.
	ErrConfigNotFound = errors.New("connmgr: server not found in registry")

	// ErrUnsupportedTransport is returned when a ServerConfig does not map
	// to a known transport variant.
	ErrUnsupportedTransport = errors.New("connmgr: unsupported transport")

	// ErrInitializationFailed is returned by GetServer when the lifecycle
	// task failed before the connection became usable. The launch failure
	// is attached as a wrapped cause.
	ErrInitializationFailed = errors.New("connmgr: server failed to initialize")

	// ErrNotEntered is returned when manager operations are used before
	// Start (or after Close).
	ErrNotEntered = errors.New("connmgr: manager not started")
)
