package broker

import (
	"context"
	"log/slog"
	"testing"

	"github.com/mtzanidakis/taskmaster/internal/channel"
)

func invoke(t *testing.T, args map[string]any) (any, error) {
	t.Helper()
	tool := Tool()
	return tool.Execute(context.Background(), channel.Invocation{
		Args:    args,
		Session: channel.Session{ProjectRoot: "/p"},
		Log:     slog.Default(),
	})
}

func TestBrokerToolHostForm(t *testing.T) {
	result, err := invoke(t, map[string]any{
		"interactionId": "i1",
		"delegatedCallDetails": map[string]any{
			"originalCommand": "parse-prd",
			"role":            "main",
			"serviceType":     "generate_object",
			"requestParameters": map[string]any{
				"modelId":  "claude-sonnet-4-5",
				"numTasks": float64(3),
			},
		},
		"projectRoot": "/p",
	})
	if err != nil {
		t.Fatalf("host form: %v", err)
	}

	env, ok := result.(*DirectiveEnvelope)
	if !ok {
		t.Fatalf("expected directive envelope, got %T", result)
	}
	if env.ToolResponseSource != SourceHostToAgent || env.Status != StatusPendingAgentAction {
		t.Errorf("wrong envelope header: %+v", env)
	}
	if env.InteractionID != "i1" {
		t.Errorf("interaction id not carried: %q", env.InteractionID)
	}
	if env.LLMRequestForAgent["numTasks"] != float64(3) {
		t.Errorf("request parameters not forwarded: %v", env.LLMRequestForAgent)
	}
	if env.PendingSignal.InteractionID != "i1" || env.PendingSignal.Instructions == "" {
		t.Errorf("pending signal incomplete: %+v", env.PendingSignal)
	}
}

func TestBrokerToolHostFormGeneratesID(t *testing.T) {
	result, err := invoke(t, map[string]any{
		"delegatedCallDetails": map[string]any{"originalCommand": "research"},
	})
	if err != nil {
		t.Fatalf("host form: %v", err)
	}
	if result.(*DirectiveEnvelope).InteractionID == "" {
		t.Error("missing interaction id should be generated")
	}
}

func TestBrokerToolAgentFormSuccess(t *testing.T) {
	result, err := invoke(t, map[string]any{
		"interactionId": "i2",
		"agentLLMResponse": map[string]any{
			"status": "success",
			"data":   map[string]any{"tasks": []any{}},
		},
	})
	if err != nil {
		t.Fatalf("agent form: %v", err)
	}

	env := result.(*CompletionEnvelope)
	if env.Status != StatusResponseCompleted || env.ToolResponseSource != SourceAgentToHost {
		t.Errorf("wrong envelope: %+v", env)
	}
	if env.FinalLLMOutput == nil {
		t.Error("data must be forwarded as finalLLMOutput")
	}
}

func TestBrokerToolAgentFormError(t *testing.T) {
	result, err := invoke(t, map[string]any{
		"interactionId": "i3",
		"agentLLMResponse": map[string]any{
			"status":       "error",
			"errorDetails": map[string]any{"message": "model refused"},
		},
	})
	if err != nil {
		t.Fatalf("agent form: %v", err)
	}

	env := result.(*CompletionEnvelope)
	if env.Status != StatusResponseError {
		t.Errorf("expected error status, got %s", env.Status)
	}
	if env.Err["message"] != "model refused" {
		t.Errorf("error details lost: %v", env.Err)
	}
}

func TestBrokerToolSuccessWithoutDataIsError(t *testing.T) {
	result, err := invoke(t, map[string]any{
		"interactionId":    "i4",
		"agentLLMResponse": map[string]any{"status": "success"},
	})
	if err != nil {
		t.Fatalf("agent form: %v", err)
	}
	if result.(*CompletionEnvelope).Status != StatusResponseError {
		t.Error("success without data must be treated as error")
	}
}

func TestBrokerToolProtocolErrors(t *testing.T) {
	cases := []struct {
		name string
		args map[string]any
		code string
	}{
		{"neither form", map[string]any{"projectRoot": "/p"}, CodeInvalidBrokerArgs},
		{"both forms", map[string]any{
			"delegatedCallDetails": map[string]any{},
			"agentLLMResponse":     map[string]any{},
		}, CodeAmbiguousBrokerArgs},
		{"agent form without id", map[string]any{
			"agentLLMResponse": map[string]any{"status": "success", "data": "x"},
		}, CodeMissingInteractionID},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := invoke(t, tc.args)
			be := AsError(err)
			if be == nil || be.Code != tc.code {
				t.Errorf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestDetectDelegationSignalObjectForm(t *testing.T) {
	sig := &DelegationSignal{
		NeedsAgentDelegation: true,
		PendingInteraction:   NewPendingInteraction("i9", DelegatedCallDetails{OriginalCommand: "add-task"}),
	}

	pending, ok := DetectDelegationSignal(sig)
	if !ok || pending.InteractionID != "i9" {
		t.Fatalf("object form not detected: %+v %v", pending, ok)
	}

	// Same payload after a trip through JSON-ish maps.
	asMap := map[string]any{
		"needsAgentDelegation": true,
		"pendingInteraction": map[string]any{
			"type":          "agent_llm",
			"interactionId": "i9",
			"delegatedCallDetails": map[string]any{
				"originalCommand": "add-task",
			},
		},
	}
	pending, ok = DetectDelegationSignal(asMap)
	if !ok || pending.DelegatedCallDetails.OriginalCommand != "add-task" {
		t.Fatalf("map form not detected: %+v %v", pending, ok)
	}
}

func TestDetectDelegationSignalResourceForm(t *testing.T) {
	body := `{"isAgentLLMPendingInteraction":true,"details":{"type":"agent_llm","interactionId":"r1","delegatedCallDetails":{"originalCommand":"research"}}}`
	resource := map[string]any{
		"resource": map[string]any{
			"uri":  PendingInteractionURI,
			"text": body,
		},
	}

	pending, ok := DetectDelegationSignal(resource)
	if !ok || pending.InteractionID != "r1" {
		t.Fatalf("resource form not detected: %+v %v", pending, ok)
	}

	// The bare resource object is accepted too.
	pending, ok = DetectDelegationSignal(map[string]any{
		"uri":  PendingInteractionURI,
		"text": body,
	})
	if !ok || pending.DelegatedCallDetails.OriginalCommand != "research" {
		t.Fatalf("bare resource form not detected: %+v %v", pending, ok)
	}
}

func TestDetectDelegationSignalNegative(t *testing.T) {
	for _, v := range []any{
		nil,
		"text",
		map[string]any{"needsAgentDelegation": false},
		map[string]any{"uri": "file://other", "text": "{}"},
		map[string]any{"uri": PendingInteractionURI, "text": `{"isAgentLLMPendingInteraction":false}`},
		map[string]any{"uri": PendingInteractionURI, "text": "not json"},
	} {
		if _, ok := DetectDelegationSignal(v); ok {
			t.Errorf("value %v should not be a signal", v)
		}
	}
}
