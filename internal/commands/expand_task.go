package commands

import (
	"context"
	"fmt"

	"github.com/mtzanidakis/taskmaster/internal/broker"
	"github.com/mtzanidakis/taskmaster/internal/channel"
	"github.com/mtzanidakis/taskmaster/internal/provider"
	"github.com/mtzanidakis/taskmaster/internal/taskstore"
)

const expandTaskSystem = `You are breaking a development task into subtasks.
Return a JSON array of subtask objects with title, description, details,
dependencies (ids of sibling subtasks) and status "pending". Do not number them;
ids are assigned by the caller.`

func (c *Commands) expandTaskTool() channel.Tool {
	return channel.Tool{
		Name:        "expand-task",
		Description: "Expand a task into subtasks.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":       map[string]any{"type": "integer", "description": "Task to expand."},
				"num":      map[string]any{"type": "integer", "description": "How many subtasks to add."},
				"prompt":   map[string]any{"type": "string", "description": "Extra context for the expansion."},
				"force":    map[string]any{"type": "boolean", "description": "Clear existing subtasks first."},
				"research": map[string]any{"type": "boolean"},
				"tag":      map[string]any{"type": "string"},
			},
			"required": []string{"id"},
		},
		Execute: func(ctx context.Context, inv channel.Invocation) (any, error) {
			id, ok := argInt(inv.Args, "id")
			if !ok {
				return nil, fmt.Errorf("task id is required")
			}
			num, ok := argInt(inv.Args, "num")
			if !ok || num <= 0 {
				num = 5
			}

			store := c.stores.Get(inv.Session.ProjectRoot)
			tag := store.ResolveTag(argString(inv.Args, "tag"))

			// Any force-clearing happens before delegation so the saver only
			// ever appends.
			var target taskstore.Task
			err := store.Mutate(tag, func(td *taskstore.TagData) error {
				t := taskstore.FindTask(td, id)
				if t == nil {
					return fmt.Errorf("task %d not found in tag %s", id, tag)
				}
				if taskstore.IsCompleted(t.Status) {
					return fmt.Errorf("task %d is %s and cannot be expanded", id, t.Status)
				}
				if argBool(inv.Args, "force") {
					t.Subtasks = nil
				}
				target = *t
				return nil
			})
			if err != nil {
				return nil, err
			}

			nextID := taskstore.NextSubtaskID(&target)

			role := c.role(argBool(inv.Args, "research"))
			user := fmt.Sprintf("Break this task into %d subtasks:\n\nTitle: %s\nDescription: %s\nDetails: %s",
				num, target.Title, target.Description, target.Details)
			if extra := argString(inv.Args, "prompt"); extra != "" {
				user += "\n\nAdditional context: " + extra
			}
			req, err := c.roles.BuildRequest(role, []provider.Message{
				{Role: "system", Content: expandTaskSystem},
				{Role: "user", Content: user},
			})
			if err != nil {
				return nil, err
			}
			req.ObjectName = "subtasks"

			p, err := c.roles.Provider(role)
			if err != nil {
				return nil, err
			}
			res, err := p.GenerateObject(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("generate subtasks: %w", err)
			}

			if res.Delegated() {
				return delegationSignal(res.Delegation, "expand-task", role, map[string]any{
					"taskId":              id,
					"nextSubtaskId":       nextID,
					"numSubtasksForAgent": num,
					"tagInfo":             broker.TagInfo{Tag: tag},
				})
			}

			return c.appendSubtasks(res.Object, id, nextID, tag, inv)
		},
	}
}

// saveExpandedSubtasks appends the agent's subtasks to the parent, numbering
// them from the nextSubtaskId hint so pre-existing subtasks keep their ids.
func (c *Commands) saveExpandedSubtasks(_ context.Context, in broker.SaverInput) error {
	taskID, ok := argInt(in.Details.RequestParameters, "taskId")
	if !ok {
		return fmt.Errorf("directive carries no taskId hint")
	}
	nextID, ok := argInt(in.Details.RequestParameters, "nextSubtaskId")
	if !ok {
		nextID = 1
	}

	_, err := c.appendSubtasks(in.Output, taskID, nextID, in.TagInfo.Tag, channel.Invocation{
		Args:    in.OriginalArgs,
		Session: in.Session,
		Log:     in.Log,
	})
	return err
}

func (c *Commands) appendSubtasks(payload any, taskID, nextID int, tag string, inv channel.Invocation) (any, error) {
	subtasks, err := decodeSubtasks(payload)
	if err != nil {
		return nil, err
	}
	if len(subtasks) == 0 {
		return nil, fmt.Errorf("subtasks payload is empty")
	}

	for i := range subtasks {
		subtasks[i].ID = nextID + i
		if subtasks[i].Status == "" {
			subtasks[i].Status = taskstore.StatusPending
		}
	}

	store := c.stores.Get(inv.Session.ProjectRoot)
	err = store.Mutate(tag, func(td *taskstore.TagData) error {
		t := taskstore.FindTask(td, taskID)
		if t == nil {
			return fmt.Errorf("task %d not found in tag %s", taskID, tag)
		}
		if taskstore.IsCompleted(t.Status) {
			inv.Log.Warn("task completed since delegation, skipping subtask append", "task", taskID)
			return nil
		}
		t.Subtasks = append(t.Subtasks, subtasks...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv.Log.Info("appended subtasks", "task", taskID, "count", len(subtasks), "firstId", nextID)
	return map[string]any{"task": taskID, "added": len(subtasks)}, nil
}

// decodeSubtasks accepts a bare array or an object wrapping one under
// "subtasks".
func decodeSubtasks(payload any) ([]taskstore.Subtask, error) {
	var subtasks []taskstore.Subtask
	if err := decodePayload(payload, &subtasks); err == nil {
		return subtasks, nil
	}

	var wrapped struct {
		Subtasks []taskstore.Subtask `json:"subtasks"`
	}
	if err := decodePayload(payload, &wrapped); err != nil {
		return nil, fmt.Errorf("subtasks payload: %w", err)
	}
	return wrapped.Subtasks, nil
}
