package broker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mtzanidakis/taskmaster/internal/channel"
)

const agentInstructions = "Perform the LLM call described in llmRequestForAgent, then call " +
	ToolName + " again with this interactionId and agentLLMResponse: " +
	`{status: "success", data: <llm output>} or {status: "error", errorDetails: {message: ...}}.`

// Tool returns the bidirectional broker tool. It is pure protocol: it
// validates the discriminated union and builds response envelopes. The
// interaction registry is the wrapper's business, never this tool's.
func Tool() channel.Tool {
	return channel.Tool{
		Name: ToolName,
		Description: "Bridge for delegated LLM calls. The host invokes it with delegatedCallDetails " +
			"to hand a call to the agent; the agent invokes it with agentLLMResponse to return the result.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"interactionId": map[string]any{
					"type":        "string",
					"description": "Correlation id of one delegated interaction.",
				},
				"delegatedCallDetails": map[string]any{
					"type":        "object",
					"description": "Host-to-agent form: the LLM call to perform.",
				},
				"agentLLMResponse": map[string]any{
					"type":        "object",
					"description": "Agent-to-host form: the completed LLM result or error.",
				},
				"projectRoot": map[string]any{
					"type":        "string",
					"description": "Absolute project root path.",
				},
			},
		},
		Execute: execute,
	}
}

func execute(_ context.Context, inv channel.Invocation) (any, error) {
	interactionID, _ := inv.Args["interactionId"].(string)
	_, hasDetails := inv.Args["delegatedCallDetails"]
	_, hasResponse := inv.Args["agentLLMResponse"]

	switch {
	case hasDetails && hasResponse:
		return nil, Errorf(CodeAmbiguousBrokerArgs,
			"delegatedCallDetails and agentLLMResponse are mutually exclusive")
	case hasDetails:
		return executeHostForm(interactionID, inv.Args["delegatedCallDetails"], inv)
	case hasResponse:
		return executeAgentForm(interactionID, inv.Args["agentLLMResponse"], inv)
	default:
		return nil, Errorf(CodeInvalidBrokerArgs,
			"one of delegatedCallDetails or agentLLMResponse is required")
	}
}

func executeHostForm(interactionID string, raw any, inv channel.Invocation) (any, error) {
	var details DelegatedCallDetails
	if err := remarshal(raw, &details); err != nil {
		return nil, Errorf(CodeInvalidBrokerArgs, "malformed delegatedCallDetails: %v", err)
	}
	if interactionID == "" {
		interactionID = uuid.NewString()
	}

	inv.Log.Info("delegation directive issued",
		"interaction", interactionID,
		"command", details.OriginalCommand,
		"service", details.ServiceType)

	return &DirectiveEnvelope{
		ToolResponseSource: SourceHostToAgent,
		Status:             StatusPendingAgentAction,
		Message: fmt.Sprintf("LLM call for %s delegated to agent, awaiting response for interaction %s",
			details.OriginalCommand, interactionID),
		LLMRequestForAgent: details.RequestParameters,
		InteractionID:      interactionID,
		PendingSignal: AgentSignal{
			Type:          agentSignalType,
			InteractionID: interactionID,
			Instructions:  agentInstructions,
		},
	}, nil
}

func executeAgentForm(interactionID string, raw any, inv channel.Invocation) (any, error) {
	if interactionID == "" {
		return nil, Errorf(CodeMissingInteractionID,
			"agentLLMResponse requires an interactionId")
	}

	var resp AgentLLMResponse
	if err := remarshal(raw, &resp); err != nil {
		return nil, Errorf(CodeInvalidBrokerArgs, "malformed agentLLMResponse: %v", err)
	}

	// Success without data is treated as an error: the saver has nothing to
	// work with.
	if resp.Status == "success" && resp.Data != nil {
		inv.Log.Info("agent llm response received", "interaction", interactionID)
		return &CompletionEnvelope{
			ToolResponseSource: SourceAgentToHost,
			Status:             StatusResponseCompleted,
			FinalLLMOutput:     resp.Data,
			InteractionID:      interactionID,
		}, nil
	}

	errDetails := resp.ErrorDetails
	if errDetails == nil {
		errDetails = map[string]any{"message": "agent reported no data"}
	}
	inv.Log.Warn("agent llm response failed", "interaction", interactionID, "details", errDetails)
	return &CompletionEnvelope{
		ToolResponseSource: SourceAgentToHost,
		Status:             StatusResponseError,
		Err:                errDetails,
		InteractionID:      interactionID,
	}, nil
}
