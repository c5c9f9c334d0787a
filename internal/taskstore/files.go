package taskstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TaskFileName returns the derived text file name for a task id. Tag master
// keeps the bare name; other tags get a suffix.
func TaskFileName(id int, tag string) string {
	if tag == "" || tag == DefaultTag {
		return fmt.Sprintf("task_%03d.txt", id)
	}
	return fmt.Sprintf("task_%03d_%s.txt", id, tag)
}

func (s *Store) generateTaskFilesLocked(tag string, td *TagData) error {
	if err := os.MkdirAll(s.TasksDir(), 0o755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}

	live := make(map[string]bool, len(td.Tasks))
	for i := range td.Tasks {
		name := TaskFileName(td.Tasks[i].ID, tag)
		live[name] = true
		path := filepath.Join(s.TasksDir(), name)
		if err := os.WriteFile(path, []byte(renderTask(&td.Tasks[i])), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	// Drop derived files for tasks that no longer exist in this tag.
	entries, err := os.ReadDir(s.TasksDir())
	if err != nil {
		return fmt.Errorf("read tasks dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "task_") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		if !fileBelongsToTag(name, tag) || live[name] {
			continue
		}
		if err := os.Remove(filepath.Join(s.TasksDir(), name)); err != nil {
			return fmt.Errorf("remove stale %s: %w", name, err)
		}
	}
	return nil
}

func fileBelongsToTag(name, tag string) bool {
	base := strings.TrimSuffix(strings.TrimPrefix(name, "task_"), ".txt")
	idx := strings.IndexByte(base, '_')
	if tag == "" || tag == DefaultTag {
		return idx < 0
	}
	return idx >= 0 && base[idx+1:] == tag
}

func renderTask(t *Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task ID: %d\n", t.ID)
	fmt.Fprintf(&b, "# Title: %s\n", t.Title)
	fmt.Fprintf(&b, "# Status: %s\n", t.Status)
	fmt.Fprintf(&b, "# Dependencies: %s\n", joinIDs(t.Dependencies))
	if t.Priority != "" {
		fmt.Fprintf(&b, "# Priority: %s\n", t.Priority)
	}
	fmt.Fprintf(&b, "# Description: %s\n", t.Description)
	if t.Details != "" {
		fmt.Fprintf(&b, "# Details:\n%s\n", t.Details)
	}
	if t.TestStrategy != "" {
		fmt.Fprintf(&b, "# Test Strategy:\n%s\n", t.TestStrategy)
	}
	if len(t.Subtasks) > 0 {
		b.WriteString("\n# Subtasks:\n")
		for i := range t.Subtasks {
			st := &t.Subtasks[i]
			fmt.Fprintf(&b, "## %d. %s [%s]\n", st.ID, st.Title, st.Status)
			if st.Description != "" {
				fmt.Fprintf(&b, "%s\n", st.Description)
			}
			if st.Details != "" {
				fmt.Fprintf(&b, "%s\n", st.Details)
			}
		}
	}
	return b.String()
}

func joinIDs(ids []int) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
