package broker

import "encoding/json"

// embeddedSignal is the body of the embedded-resource form: a resource whose
// URI is PendingInteractionURI and whose text parses to this shape.
type embeddedSignal struct {
	IsAgentLLMPendingInteraction bool               `json:"isAgentLLMPendingInteraction"`
	Details                      PendingInteraction `json:"details"`
}

// DetectDelegationSignal recognizes both shapes of the delegation signal in a
// tool result: the canonical object form and the embedded-resource form.
// New code emits the object form; both are read.
func DetectDelegationSignal(result any) (PendingInteraction, bool) {
	switch v := result.(type) {
	case *DelegationSignal:
		if v != nil && v.NeedsAgentDelegation {
			return v.PendingInteraction, true
		}
		return PendingInteraction{}, false
	case DelegationSignal:
		if v.NeedsAgentDelegation {
			return v.PendingInteraction, true
		}
		return PendingInteraction{}, false
	case map[string]any:
		return detectMap(v)
	default:
		return PendingInteraction{}, false
	}
}

func detectMap(m map[string]any) (PendingInteraction, bool) {
	if needs, _ := m["needsAgentDelegation"].(bool); needs {
		var sig DelegationSignal
		if err := remarshal(m, &sig); err == nil {
			return sig.PendingInteraction, true
		}
		return PendingInteraction{}, false
	}

	// Embedded resource form: either the resource object itself or a result
	// wrapping one under "resource".
	res := m
	if inner, ok := m["resource"].(map[string]any); ok {
		res = inner
	}
	uri, _ := res["uri"].(string)
	if uri != PendingInteractionURI {
		return PendingInteraction{}, false
	}
	text, _ := res["text"].(string)
	if text == "" {
		return PendingInteraction{}, false
	}

	var body embeddedSignal
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		return PendingInteraction{}, false
	}
	if !body.IsAgentLLMPendingInteraction {
		return PendingInteraction{}, false
	}
	return body.Details, true
}
