package commands

import (
	"context"
	"fmt"

	"github.com/mtzanidakis/taskmaster/internal/channel"
	"github.com/mtzanidakis/taskmaster/internal/taskstore"
)

// Query tools are pure store operations; they never delegate.

func (c *Commands) getTasksTool() channel.Tool {
	return channel.Tool{
		Name:        "get-tasks",
		Description: "List tasks in a tag, optionally filtered by status.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{"type": "string"},
				"tag":    map[string]any{"type": "string"},
			},
		},
		Execute: func(_ context.Context, inv channel.Invocation) (any, error) {
			store := c.stores.Get(inv.Session.ProjectRoot)
			tag := store.ResolveTag(argString(inv.Args, "tag"))

			td, err := store.ReadTag(tag)
			if err != nil {
				return nil, err
			}
			if td == nil {
				return map[string]any{"tag": tag, "tasks": []taskstore.Task{}}, nil
			}

			status := argString(inv.Args, "status")
			tasks := td.Tasks
			if status != "" {
				tasks = nil
				for _, t := range td.Tasks {
					if t.Status == status {
						tasks = append(tasks, t)
					}
				}
			}
			return map[string]any{"tag": tag, "tasks": tasks}, nil
		},
	}
}

func (c *Commands) getTaskTool() channel.Tool {
	return channel.Tool{
		Name:        "get-task",
		Description: "Show one task or subtask.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":  map[string]any{"type": "string", "description": "Task id or parent.sub."},
				"tag": map[string]any{"type": "string"},
			},
			"required": []string{"id"},
		},
		Execute: func(_ context.Context, inv channel.Invocation) (any, error) {
			taskID, subtaskID, hasSub, err := parseItemID(argString(inv.Args, "id"))
			if err != nil {
				return nil, err
			}

			store := c.stores.Get(inv.Session.ProjectRoot)
			tag := store.ResolveTag(argString(inv.Args, "tag"))
			td, err := store.ReadTag(tag)
			if err != nil {
				return nil, err
			}
			if td == nil {
				return nil, fmt.Errorf("tag %s has no tasks", tag)
			}
			task := taskstore.FindTask(td, taskID)
			if task == nil {
				return nil, fmt.Errorf("task %d not found in tag %s", taskID, tag)
			}
			if !hasSub {
				return task, nil
			}
			sub := taskstore.FindSubtask(task, subtaskID)
			if sub == nil {
				return nil, fmt.Errorf("subtask %d.%d not found", taskID, subtaskID)
			}
			return sub, nil
		},
	}
}

func (c *Commands) setTaskStatusTool() channel.Tool {
	return channel.Tool{
		Name:        "set-task-status",
		Description: "Set the status of a task or subtask.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":     map[string]any{"type": "string", "description": "Task id or parent.sub."},
				"status": map[string]any{"type": "string"},
				"tag":    map[string]any{"type": "string"},
			},
			"required": []string{"id", "status"},
		},
		Execute: func(_ context.Context, inv channel.Invocation) (any, error) {
			taskID, subtaskID, hasSub, err := parseItemID(argString(inv.Args, "id"))
			if err != nil {
				return nil, err
			}
			status := argString(inv.Args, "status")
			if status == "" {
				return nil, fmt.Errorf("status is required")
			}

			store := c.stores.Get(inv.Session.ProjectRoot)
			tag := store.ResolveTag(argString(inv.Args, "tag"))
			err = store.Mutate(tag, func(td *taskstore.TagData) error {
				task := taskstore.FindTask(td, taskID)
				if task == nil {
					return fmt.Errorf("task %d not found in tag %s", taskID, tag)
				}
				if hasSub {
					sub := taskstore.FindSubtask(task, subtaskID)
					if sub == nil {
						return fmt.Errorf("subtask %d.%d not found", taskID, subtaskID)
					}
					sub.Status = status
					return nil
				}
				task.Status = status
				return nil
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"id": argString(inv.Args, "id"), "status": status}, nil
		},
	}
}

// Tools returns every command tool in registration order.
func (c *Commands) Tools() []channel.Tool {
	return []channel.Tool{
		c.parseRequirementsTool(),
		c.expandTaskTool(),
		c.analyzeComplexityTool(),
		c.updateTaskTool(),
		c.updateSubtaskTool(),
		c.updateTool(),
		c.addTaskTool(),
		c.researchTool(),
		c.getTasksTool(),
		c.getTaskTool(),
		c.setTaskStatusTool(),
	}
}
