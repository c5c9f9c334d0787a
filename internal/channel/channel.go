// Package channel is the tool surface the host runs on: named tools with a
// JSON-schema parameter block, invoked with caller session context. The host
// registers every command here and the agent drives them through a transport
// (in-process for tests, NATS request/reply in the daemon).
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Session identifies one caller. ProjectRoot anchors all persisted state.
type Session struct {
	ID          string `json:"id,omitempty"`
	ProjectRoot string `json:"projectRoot"`
}

// Invocation bundles what a tool execution receives beyond its context.
type Invocation struct {
	Args    map[string]any
	Session Session
	Log     *slog.Logger
}

type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Execute     func(ctx context.Context, inv Invocation) (any, error)
}

type Channel interface {
	Register(t Tool) error
	Invoke(ctx context.Context, name string, args map[string]any, sess Session) (any, error)
}

// Local is the in-process channel implementation.
type Local struct {
	log   *slog.Logger
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewLocal(log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{log: log, tools: make(map[string]Tool)}
}

func (l *Local) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if t.Execute == nil {
		return fmt.Errorf("register tool %s: nil execute", t.Name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tools[t.Name]; ok {
		return fmt.Errorf("register tool %s: already registered", t.Name)
	}
	l.tools[t.Name] = t
	return nil
}

func (l *Local) Lookup(name string) (Tool, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tools[name]
	return t, ok
}

func (l *Local) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.tools))
	for name := range l.tools {
		names = append(names, name)
	}
	return names
}

func (l *Local) Invoke(ctx context.Context, name string, args map[string]any, sess Session) (any, error) {
	t, ok := l.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("invoke: unknown tool %s", name)
	}
	inv := Invocation{
		Args:    args,
		Session: sess,
		Log:     l.log.With("tool", name),
	}
	return t.Execute(ctx, inv)
}
