package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// decodePayload unmarshals an agent payload into v. Payloads arrive either
// as already-decoded JSON values or as strings the agent produced, which may
// be fenced or slightly malformed; strict parse first, repair pass second.
func decodePayload(output any, v any) error {
	switch p := output.(type) {
	case string:
		text := stripFences(p)
		if err := json.Unmarshal([]byte(text), v); err == nil {
			return nil
		}
		repaired, err := jsonrepair.JSONRepair(text)
		if err != nil {
			return fmt.Errorf("unparseable agent payload: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), v); err != nil {
			return fmt.Errorf("parse repaired agent payload: %w", err)
		}
		return nil
	default:
		return remarshal(output, v)
	}
}

// textPayload renders an agent payload as plain text for append-style savers.
func textPayload(output any) string {
	if s, ok := output.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Sprint(output)
	}
	return string(data)
}

func stripFences(s string) string {
	text := strings.TrimSpace(s)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

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

// Tool arguments cross the channel as generic JSON values; these helpers
// normalize the usual variants (float64 numbers, numeric strings).

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argBool(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	default:
		return false
	}
}

func argInt(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func argIntSlice(args map[string]any, key string) []int {
	switch v := args[key].(type) {
	case []int:
		return v
	case []any:
		var out []int
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, int(n))
			case string:
				if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
					out = append(out, parsed)
				}
			}
		}
		return out
	case string:
		var out []int
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			if n, err := strconv.Atoi(part); err == nil {
				out = append(out, n)
			}
		}
		return out
	default:
		return nil
	}
}

// parseItemID splits "5" or "5.2" into task and optional subtask ids.
func parseItemID(s string) (taskID int, subtaskID int, hasSubtask bool, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 2)
	taskID, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid id %q", s)
	}
	if len(parts) == 1 {
		return taskID, 0, false, nil
	}
	subtaskID, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid subtask id %q", s)
	}
	return taskID, subtaskID, true, nil
}
