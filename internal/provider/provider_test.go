package provider

import (
	"context"
	"testing"

	"github.com/mtzanidakis/taskmaster/internal/config"
)

func TestDelegatingReturnsDelegation(t *testing.T) {
	p := NewDelegating()
	req := Request{Model: "claude-sonnet-4-5", Messages: []Message{{Role: "user", Content: "hi"}}}

	res, err := p.GenerateText(context.Background(), req)
	if err != nil {
		t.Fatalf("generate text: %v", err)
	}
	if !res.Delegated() {
		t.Fatal("expected a delegation result")
	}
	if res.Delegation.InteractionID == "" {
		t.Error("expected a generated interaction id")
	}
	if res.Delegation.ServiceType != ServiceGenerateText {
		t.Errorf("expected service %s, got %s", ServiceGenerateText, res.Delegation.ServiceType)
	}
	if res.Delegation.Request.Model != "claude-sonnet-4-5" {
		t.Errorf("request not carried through: %+v", res.Delegation.Request)
	}
}

func TestDelegatingStreamDegradesToText(t *testing.T) {
	p := NewDelegating()
	res, err := p.StreamText(context.Background(), Request{})
	if err != nil {
		t.Fatalf("stream text: %v", err)
	}
	if res.Delegation.ServiceType != ServiceGenerateText {
		t.Errorf("stream must delegate as %s, got %s", ServiceGenerateText, res.Delegation.ServiceType)
	}
}

func TestDelegatingUniqueIDs(t *testing.T) {
	p := NewDelegating()
	a, _ := p.GenerateObject(context.Background(), Request{})
	b, _ := p.GenerateObject(context.Background(), Request{})
	if a.Delegation.InteractionID == b.Delegation.InteractionID {
		t.Error("interaction ids must be unique per operation")
	}
}

func TestDelegatingValidateAuth(t *testing.T) {
	if err := NewDelegating().ValidateAuth(context.Background()); err != nil {
		t.Errorf("delegating provider requires no auth, got %v", err)
	}
}

func TestRolesBuildRequest(t *testing.T) {
	temp := 0.2
	roles := NewRoles(config.RolesConfig{
		Main:     config.RoleConfig{Model: "m-main", MaxTokens: 1000, Temperature: &temp},
		Research: config.RoleConfig{Model: "m-research"},
	}, NewDelegating())

	req, err := roles.BuildRequest(RoleMain, []Message{{Role: "user", Content: "x"}})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if req.Model != "m-main" || req.MaxTokens != 1000 || req.Temperature == nil {
		t.Errorf("role defaults not applied: %+v", req)
	}

	if _, err := roles.BuildRequest("nope", nil); err == nil {
		t.Error("expected error for unknown role")
	}
}
