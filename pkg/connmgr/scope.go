package connmgr

import (
	"context"
	"errors"
	"sync"
)

// taskScope is the shared concurrency scope every lifecycle task runs
// under. Task failures are collected, not fanned out: one connection's
// launch failure never cancels its siblings. The scope context is
// cancelled only when the owning manager closes the scope, which also
// waits for every task to unwind.
type taskScope struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

func newTaskScope() *taskScope {
	ctx, cancel := context.WithCancel(context.Background())
	return &taskScope{ctx: ctx, cancel: cancel}
}

// Go schedules fn on the scope. Scheduling is synchronous; completion is
// observed by Close.
func (s *taskScope) Go(fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(s.ctx); err != nil {
			s.mu.Lock()
			s.errs = append(s.errs, err)
			s.mu.Unlock()
		}
	}()
}

// Close cancels the scope, waits for every task to unwind, and returns the
// aggregated task errors.
func (s *taskScope) Close() error {
	s.cancel()
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

// AppContext holds process-wide state shared across ConnectionManager
// instances. The first Start against an AppContext creates the shared task
// scope and records that Start as its owner; re-entrant or nested managers
// reuse the scope and leave teardown to the owner. Ownership is an
// explicit token comparison, not reference counting.
type AppContext struct {
	mu      sync.Mutex
	scope   *taskScope
	ownerID uint64
}

// NewAppContext returns an empty application context. One per process is
// typical.
func NewAppContext() *AppContext { return &AppContext{} }

// acquireScope returns the shared scope, creating it when absent. The
// returned bool reports whether token became the recorded owner.
func (a *AppContext) acquireScope(token uint64) (*taskScope, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scope == nil {
		a.scope = newTaskScope()
		a.ownerID = token
		return a.scope, true
	}
	return a.scope, false
}

// releaseScope tears the scope down only when token matches the recorded
// owner. Non-owning callers leave the scope running for the true owner and
// get a nil error.
func (a *AppContext) releaseScope(token uint64) error {
	a.mu.Lock()
	if a.scope == nil || a.ownerID != token {
		a.mu.Unlock()
		return nil
	}
	scope := a.scope
	a.scope = nil
	a.ownerID = 0
	a.mu.Unlock()
	return scope.Close()
}
