// Package progress models display-oriented progress events emitted by the
// connection layer, plus a small fan-out helper for routing them to
// listeners such as a status line or log sink.
package progress

import (
	"fmt"
	"sync"
)

// Action identifies what a progress event reports.
type Action string

const (
	ActionStarting    Action = "Starting"
	ActionLoaded      Action = "Loaded"
	ActionInitialized Action = "Initialized"
	ActionReady       Action = "Ready"
	ActionCallingTool Action = "Calling Tool"
	ActionFinished    Action = "Finished"
	ActionShutdown    Action = "Shutdown"
	ActionError       Action = "Error"
)

// Event represents one progress update.
type Event struct {
	Action  Action
	Target  string
	Details string
	// AgentName, when set, attributes the event to a named agent rather
	// than the connection layer itself.
	AgentName string
}

// String renders the event in a fixed-width, scannable form:
//
//	Starting   . fetch - npx server-fetch
func (e Event) String() string {
	base := fmt.Sprintf("%-11s. %s", string(e.Action), e.Target)
	if e.Details != "" {
		base += " - " + e.Details
	}
	if e.AgentName != "" {
		base = "[" + e.AgentName + "] " + base
	}
	return base
}

// Broadcaster fans events out to subscribed listeners. It is safe for
// concurrent use; listeners run synchronously on the emitting goroutine,
// in subscription order.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners []func(Event)
}

// Subscribe registers a listener for every subsequent event. Nil listeners
// are ignored.
func (b *Broadcaster) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// Emit delivers e to every subscribed listener.
func (b *Broadcaster) Emit(e Event) {
	b.mu.RLock()
	listeners := append(([]func(Event))(nil), b.listeners...)
	b.mu.RUnlock()
	for _, fn := range listeners {
		fn(e)
	}
}
