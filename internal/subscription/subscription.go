// Package subscription provides the small piece of the dynamic-subscriber
// lifecycle that doesn't belong inside internal/receiver or internal/dispatch:
// a per-subscription trace identity for log correlation.
//
// The watchdog state machine itself (ping/pong/6-miss timeout) lives on
// receiver.ViewClient, since it needs direct access to the fan-out engine it
// is a part of; the subscribe/unsubscribe command handling, and the lock
// around the subscription registry (what
// original_source/src/osc_kreuz/osccomcenter.py calls the connection
// semaphore), live in internal/dispatch, since it is the settings control
// plane's job to parse those commands off the wire. This package only hands
// out trace IDs.
package subscription

import (
	"sync"

	"github.com/google/uuid"
)

// Guard hands out a trace ID per subscriber, logged with the subscribe call,
// and drops it on unsubscribe or watchdog timeout. Its mutex guards only the
// trace-ID map; the subscription registry itself is guarded by
// dispatch.Dispatcher's own subMu.
type Guard struct {
	mu      sync.Mutex
	traceID map[string]string
}

// NewGuard returns a ready Guard.
func NewGuard() *Guard {
	return &Guard{traceID: make(map[string]string)}
}

// Register assigns a new trace ID to alias, replacing any previous one (a
// resubscribe after a clean unsubscribe gets a fresh identity).
func (g *Guard) Register(alias string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := uuid.New().String()
	g.traceID[alias] = id
	return id
}

// TraceID returns the current trace ID for alias, or "" if unknown.
func (g *Guard) TraceID(alias string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.traceID[alias]
}

// Forget drops the trace ID for alias on unsubscribe or watchdog timeout.
func (g *Guard) Forget(alias string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.traceID, alias)
}
