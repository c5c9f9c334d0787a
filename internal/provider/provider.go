// Package provider defines the polymorphic LLM surface the command cores call.
// A result is a tagged variant: either a completion or a delegation handed off
// to the external agent. Cores check the tag, never the concrete type.
package provider

import "context"

// Service types carried in delegation directives.
const (
	ServiceGenerateText   = "generate_text"
	ServiceStreamText     = "stream_text"
	ServiceGenerateObject = "generate_object"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the full set of inputs one LLM operation would receive.
type Request struct {
	Model       string         `json:"modelId"`
	Messages    []Message      `json:"messages"`
	MaxTokens   int            `json:"maxTokens,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
	ObjectName  string         `json:"objectName,omitempty"`
}

// Delegation is the token a non-calling provider returns in place of a
// completion. Request holds the would-be LLM inputs; ServiceType names the
// operation.
type Delegation struct {
	InteractionID string  `json:"interactionId"`
	ServiceType   string  `json:"serviceType"`
	Request       Request `json:"requestParameters"`
}

// Result carries exactly one of Text, Object, or Delegation.
type Result struct {
	Text       string
	Object     any
	Delegation *Delegation
}

// Delegated reports whether the operation was handed off instead of executed.
func (r *Result) Delegated() bool {
	return r != nil && r.Delegation != nil
}

type Provider interface {
	// Name identifies the provider in logs.
	Name() string
	// GenerateText runs a plain text completion.
	GenerateText(ctx context.Context, req Request) (*Result, error)
	// StreamText is accepted for parity with direct providers; a delegating
	// provider answers it exactly like GenerateText since the agent protocol
	// has no streaming form.
	StreamText(ctx context.Context, req Request) (*Result, error)
	// GenerateObject runs a structured completion against req.Schema.
	GenerateObject(ctx context.Context, req Request) (*Result, error)
	// ValidateAuth checks credentials. Delegating providers need none.
	ValidateAuth(ctx context.Context) error
}
