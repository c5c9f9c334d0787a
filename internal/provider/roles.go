package provider

import (
	"fmt"

	"github.com/mtzanidakis/taskmaster/internal/config"
)

// Role names used by command cores.
const (
	RoleMain     = "main"
	RoleResearch = "research"
	RoleFallback = "fallback"
)

type roleEntry struct {
	provider Provider
	cfg      config.RoleConfig
}

// Roles resolves a semantic role to a provider plus request defaults. Cores
// go through BuildRequest so the configured model id and limits end up in the
// delegation directive.
type Roles struct {
	entries map[string]roleEntry
}

func NewRoles(cfg config.RolesConfig, p Provider) *Roles {
	return &Roles{entries: map[string]roleEntry{
		RoleMain:     {provider: p, cfg: cfg.Main},
		RoleResearch: {provider: p, cfg: cfg.Research},
		RoleFallback: {provider: p, cfg: cfg.Fallback},
	}}
}

func (r *Roles) Provider(role string) (Provider, error) {
	e, ok := r.entries[role]
	if !ok {
		return nil, fmt.Errorf("unknown llm role: %s", role)
	}
	return e.provider, nil
}

// BuildRequest fills role defaults around the messages.
func (r *Roles) BuildRequest(role string, messages []Message) (Request, error) {
	e, ok := r.entries[role]
	if !ok {
		return Request{}, fmt.Errorf("unknown llm role: %s", role)
	}
	return Request{
		Model:       e.cfg.Model,
		Messages:    messages,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}, nil
}
