package taskstore

import "strconv"

// ProtectTask reconciles an agent-proposed replacement with the stored task.
// A finished task is returned unchanged. For an unfinished task the proposal
// wins, except that finished subtasks the proposal modified or dropped are
// restored verbatim. The id never changes.
func ProtectTask(existing, proposed Task) (Task, []string) {
	if IsCompleted(existing.Status) {
		return existing, []string{"task is completed, skipping update"}
	}

	var warnings []string
	final := proposed
	final.ID = existing.ID

	var merged []Subtask
	seen := make(map[int]bool)
	for _, st := range proposed.Subtasks {
		seen[st.ID] = true
		if prev := FindSubtask(&existing, st.ID); prev != nil && IsCompleted(prev.Status) {
			if !subtasksEqual(*prev, st) {
				warnings = append(warnings, "restored completed subtask "+strconv.Itoa(st.ID))
			}
			merged = append(merged, *prev)
			continue
		}
		merged = append(merged, st)
	}
	for _, prev := range existing.Subtasks {
		if !seen[prev.ID] && IsCompleted(prev.Status) {
			warnings = append(warnings, "restored removed completed subtask "+strconv.Itoa(prev.ID))
			merged = append(merged, prev)
		}
	}
	final.Subtasks = merged

	if final.Status == "" {
		final.Status = existing.Status
	}
	return final, warnings
}

func subtasksEqual(a, b Subtask) bool {
	if a.ID != b.ID || a.Title != b.Title || a.Description != b.Description ||
		a.Details != b.Details || a.Status != b.Status || a.TestStrategy != b.TestStrategy {
		return false
	}
	if len(a.Dependencies) != len(b.Dependencies) {
		return false
	}
	for i := range a.Dependencies {
		if a.Dependencies[i] != b.Dependencies[i] {
			return false
		}
	}
	return true
}
