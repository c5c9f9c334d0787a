package provider

import (
	"context"

	"github.com/google/uuid"
)

// Delegating is the provider that never calls out. Every operation mints a
// fresh interaction id and returns a delegation token carrying the would-be
// request. Side-effect free; the broker layer turns the token into a
// directive for the agent.
type Delegating struct{}

func NewDelegating() *Delegating {
	return &Delegating{}
}

func (d *Delegating) Name() string { return "agent-delegated" }

func (d *Delegating) GenerateText(_ context.Context, req Request) (*Result, error) {
	return delegate(ServiceGenerateText, req), nil
}

func (d *Delegating) StreamText(_ context.Context, req Request) (*Result, error) {
	// The agent protocol is one request, one response. Stream requests
	// degrade to a single completion.
	return delegate(ServiceGenerateText, req), nil
}

func (d *Delegating) GenerateObject(_ context.Context, req Request) (*Result, error) {
	return delegate(ServiceGenerateObject, req), nil
}

func (d *Delegating) ValidateAuth(context.Context) error { return nil }

func delegate(serviceType string, req Request) *Result {
	return &Result{
		Delegation: &Delegation{
			InteractionID: uuid.NewString(),
			ServiceType:   serviceType,
			Request:       req,
		},
	}
}
