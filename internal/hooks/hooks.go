// Package hooks lets callers observe the stages of a triage. Handlers run
// synchronously in registration order so a hook on after_triage finishes
// before the process exits.
package hooks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/triage/internal/logging"
)

// Triage lifecycle events.
const (
	EventBeforeTriage  = "before_triage"
	EventAgentsCreated = "agents_created"
	EventRunFinished   = "run_finished"
	EventCleanupFailed = "cleanup_failed"
	EventAfterTriage   = "after_triage"
)

// AllEvents lists the events in the order a triage emits them.
var AllEvents = []string{
	EventBeforeTriage,
	EventAgentsCreated,
	EventRunFinished,
	EventCleanupFailed,
	EventAfterTriage,
}

// Payload is what a handler receives. Command hooks get it as JSON on stdin.
type Payload struct {
	Event string         `json:"event"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. A returned error is logged and never reaches
// the triage.
type Handler func(ctx context.Context, p Payload) error

// Registration names one handler bound to an event.
type Registration struct {
	Event string
	Name  string
}

// Manager dispatches events to handlers. A nil *Manager ignores every Emit.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates an empty manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On binds handler to event under name. Unknown events are rejected.
func (m *Manager) On(event, name string, handler Handler) error {
	if !slices.Contains(AllEvents, event) {
		return fmt.Errorf("hooks: unknown event %q", event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
	return nil
}

// Emit runs every handler for event. A failing or panicking handler is logged
// and the rest still run.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	m.mu.RLock()
	handlers := slices.Clone(m.handlers[event])
	m.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	p := Payload{Event: event, At: time.Now().UTC(), Data: data}
	for _, h := range handlers {
		start := time.Now()
		err := m.call(ctx, h, p)
		ev := m.log.Debug()
		if err != nil {
			ev = m.log.Warn().Err(err)
		}
		ev.Str("event", event).Str("handler", h.name).Dur("elapsed", time.Since(start)).Msg("hook ran")
	}
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return h.handler(ctx, p)
}

// Registered lists the bound handlers, grouped by event in emit order.
func (m *Manager) Registered() []Registration {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Registration
	for _, event := range AllEvents {
		for _, h := range m.handlers[event] {
			out = append(out, Registration{Event: event, Name: h.name})
		}
	}
	return out
}
