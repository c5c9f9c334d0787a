package broker

import (
	"encoding/json"
	"fmt"
)

// Wire constants shared by both directions of the broker tool.
const (
	ToolName = "delegate_llm"

	SourceHostToAgent = "taskmaster_to_agent"
	SourceAgentToHost = "agent_to_taskmaster"

	StatusPendingAgentAction = "pending_agent_llm_action"
	StatusResponseCompleted  = "llm_response_completed"
	StatusResponseError      = "llm_response_error"
	StatusResponseProcessed  = "agent_response_processed_by_taskmaster"

	// Sentinel URI of the embedded-resource form of the delegation signal.
	PendingInteractionURI = "agent-llm://pending-interaction"

	pendingInteractionType = "agent_llm"
	agentSignalType        = "agent_must_respond_via_agent_llm"
)

// DelegatedCallDetails describes the LLM call the agent must perform.
// RequestParameters is the provider request merged with command-specific
// hints; the hints are opaque to the agent and recovered verbatim by the
// saver on resumption.
type DelegatedCallDetails struct {
	OriginalCommand   string         `json:"originalCommand"`
	Role              string         `json:"role"`
	ServiceType       string         `json:"serviceType"`
	RequestParameters map[string]any `json:"requestParameters"`
}

// PendingInteraction is the payload of a delegation signal.
type PendingInteraction struct {
	Type                 string               `json:"type"`
	InteractionID        string               `json:"interactionId"`
	DelegatedCallDetails DelegatedCallDetails `json:"delegatedCallDetails"`
}

func NewPendingInteraction(interactionID string, details DelegatedCallDetails) PendingInteraction {
	return PendingInteraction{
		Type:                 pendingInteractionType,
		InteractionID:        interactionID,
		DelegatedCallDetails: details,
	}
}

// DelegationSignal is the canonical shape a command core returns when its
// provider handed the call off. The wrapper also accepts the embedded
// resource form produced by older tools.
type DelegationSignal struct {
	NeedsAgentDelegation bool               `json:"needsAgentDelegation"`
	PendingInteraction   PendingInteraction `json:"pendingInteraction"`
}

// AgentLLMResponse is the agent's half of the completion envelope.
type AgentLLMResponse struct {
	Status       string         `json:"status"`
	Data         any            `json:"data,omitempty"`
	ErrorDetails map[string]any `json:"errorDetails,omitempty"`
}

// DirectiveEnvelope is the broker tool response for the host-to-agent form.
type DirectiveEnvelope struct {
	ToolResponseSource string         `json:"toolResponseSource"`
	Status             string         `json:"status"`
	Message            string         `json:"message"`
	LLMRequestForAgent map[string]any `json:"llmRequestForAgent"`
	InteractionID      string         `json:"interactionId"`
	PendingSignal      AgentSignal    `json:"pendingInteractionSignalToAgent"`
}

type AgentSignal struct {
	Type          string `json:"type"`
	InteractionID string `json:"interactionId"`
	Instructions  string `json:"instructions"`
}

// CompletionEnvelope is the broker tool response for the agent-to-host form.
type CompletionEnvelope struct {
	ToolResponseSource string         `json:"toolResponseSource"`
	Status             string         `json:"status"`
	FinalLLMOutput     any            `json:"finalLLMOutput,omitempty"`
	Err                map[string]any `json:"error,omitempty"`
	InteractionID      string         `json:"interactionId"`
}

// AckEnvelope closes the loop back to the agent after resolution.
type AckEnvelope struct {
	Status        string `json:"status"`
	InteractionID string `json:"interactionId"`
}

// TagInfo names the store slice a delegated command targets. It rides in
// requestParameters and falls back to the store default on recovery.
type TagInfo struct {
	Tag string `json:"tag"`
}

// ResolvedResult is what the original caller's resolver receives on success.
type ResolvedResult struct {
	MainResult    any      `json:"mainResult"`
	TelemetryData any      `json:"telemetryData"`
	TagInfo       *TagInfo `json:"tagInfo,omitempty"`
}

// RecoverTagInfo pulls tagInfo out of request parameters, defaulting when the
// directive carried none.
func RecoverTagInfo(params map[string]any, defaultTag string) *TagInfo {
	if raw, ok := params["tagInfo"]; ok {
		var ti TagInfo
		if err := remarshal(raw, &ti); err == nil && ti.Tag != "" {
			return &ti
		}
	}
	return &TagInfo{Tag: defaultTag}
}

// remarshal converts between map-shaped and struct-shaped values through
// JSON. Tool results cross the channel as generic maps, so this shows up on
// every decode path.
func remarshal(from any, to any) error {
	data, err := json.Marshal(from)
	if err != nil {
		return fmt.Errorf("remarshal: %w", err)
	}
	if err := json.Unmarshal(data, to); err != nil {
		return fmt.Errorf("remarshal: %w", err)
	}
	return nil
}
