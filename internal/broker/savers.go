package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mtzanidakis/taskmaster/internal/channel"
)

// SaverInput is everything a post-processor needs: the agent's payload, the
// original call verbatim, and the directive it came from.
type SaverInput struct {
	InteractionID string
	Output        any
	OriginalArgs  map[string]any
	Details       DelegatedCallDetails
	TagInfo       *TagInfo
	Session       channel.Session
	Log           *slog.Logger
}

// Saver turns an agent payload into a persistence side effect. Savers must
// validate shape, must honor completed-item protection, and must not touch
// the interaction registry.
type Saver func(ctx context.Context, in SaverInput) error

// SaverRegistry is the static table from originalToolName to saver. Aliased
// commands resolve through the directive's originalCommand as a fallback.
type SaverRegistry struct {
	mu     sync.RWMutex
	savers map[string]Saver
}

func NewSaverRegistry() *SaverRegistry {
	return &SaverRegistry{savers: make(map[string]Saver)}
}

func (r *SaverRegistry) Register(command string, s Saver) error {
	if command == "" || s == nil {
		return fmt.Errorf("register saver: empty command or nil saver")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.savers[command]; ok {
		return fmt.Errorf("register saver %s: already registered", command)
	}
	r.savers[command] = s
	return nil
}

func (r *SaverRegistry) Resolve(toolName, originalCommand string) (Saver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.savers[toolName]; ok {
		return s, true
	}
	s, ok := r.savers[originalCommand]
	return s, ok
}
