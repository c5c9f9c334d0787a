package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/mtzanidakis/taskmaster/internal/broker"
	"github.com/mtzanidakis/taskmaster/internal/channel"
	"github.com/mtzanidakis/taskmaster/internal/provider"
	"github.com/mtzanidakis/taskmaster/internal/taskstore"
)

const updateTaskSystem = `You are updating a development task from new information.
Return the complete updated task as a JSON object with the same id. Keep fields
you have no reason to change. Never change subtasks that are done.`

const appendTaskSystem = `You are adding an implementation note to a development task.
Return plain text only; it will be appended to the task's details.`

func (c *Commands) updateTaskTool() channel.Tool {
	return channel.Tool{
		Name:        "update-task",
		Description: "Update one task from a prompt, or append notes to it.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":       map[string]any{"type": "integer", "description": "Task to update."},
				"prompt":   map[string]any{"type": "string", "description": "What changed."},
				"append":   map[string]any{"type": "boolean", "description": "Append a note instead of rewriting the task."},
				"research": map[string]any{"type": "boolean"},
				"tag":      map[string]any{"type": "string"},
			},
			"required": []string{"id", "prompt"},
		},
		Execute: func(ctx context.Context, inv channel.Invocation) (any, error) {
			id, ok := argInt(inv.Args, "id")
			if !ok {
				return nil, fmt.Errorf("task id is required")
			}
			prompt := argString(inv.Args, "prompt")
			if prompt == "" {
				return nil, fmt.Errorf("prompt is required")
			}
			appendMode := argBool(inv.Args, "append")

			store := c.stores.Get(inv.Session.ProjectRoot)
			tag := store.ResolveTag(argString(inv.Args, "tag"))

			td, err := store.ReadTag(tag)
			if err != nil {
				return nil, err
			}
			if td == nil {
				return nil, fmt.Errorf("tag %s has no tasks", tag)
			}
			task := taskstore.FindTask(td, id)
			if task == nil {
				return nil, fmt.Errorf("task %d not found in tag %s", id, tag)
			}
			if taskstore.IsCompleted(task.Status) && !appendMode {
				return nil, fmt.Errorf("task %d is %s; only append mode may add notes", id, task.Status)
			}

			role := c.role(argBool(inv.Args, "research"))
			p, err := c.roles.Provider(role)
			if err != nil {
				return nil, err
			}

			var res *provider.Result
			if appendMode {
				req, berr := c.roles.BuildRequest(role, []provider.Message{
					{Role: "system", Content: appendTaskSystem},
					{Role: "user", Content: fmt.Sprintf("Task %d: %s\n\nNote request: %s", id, task.Title, prompt)},
				})
				if berr != nil {
					return nil, berr
				}
				res, err = p.GenerateText(ctx, req)
			} else {
				req, berr := c.roles.BuildRequest(role, []provider.Message{
					{Role: "system", Content: updateTaskSystem},
					{Role: "user", Content: fmt.Sprintf("Current task:\n%s\n\nUpdate request: %s", textPayload(task), prompt)},
				})
				if berr != nil {
					return nil, berr
				}
				req.ObjectName = "task"
				res, err = p.GenerateObject(ctx, req)
			}
			if err != nil {
				return nil, fmt.Errorf("update task: %w", err)
			}

			if res.Delegated() {
				return delegationSignal(res.Delegation, "update-task", role, map[string]any{
					"taskId":     id,
					"appendMode": appendMode,
					"userPrompt": prompt,
					"tagInfo":    broker.TagInfo{Tag: tag},
				})
			}

			output := any(res.Text)
			if !appendMode {
				output = res.Object
			}
			return c.applyTaskUpdate(output, id, appendMode, tag, inv)
		},
	}
}

// saveUpdatedTask distinguishes append mode (opaque text, timestamped block)
// from a full task replacement run through completion protection.
func (c *Commands) saveUpdatedTask(_ context.Context, in broker.SaverInput) error {
	id, ok := argInt(in.Details.RequestParameters, "taskId")
	if !ok {
		id, ok = argInt(in.OriginalArgs, "id")
		if !ok {
			return fmt.Errorf("no task id in directive or original args")
		}
	}
	appendMode := argBool(in.Details.RequestParameters, "appendMode") || argBool(in.OriginalArgs, "append")

	_, err := c.applyTaskUpdate(in.Output, id, appendMode, in.TagInfo.Tag, channel.Invocation{
		Args:    in.OriginalArgs,
		Session: in.Session,
		Log:     in.Log,
	})
	return err
}

func (c *Commands) applyTaskUpdate(payload any, id int, appendMode bool, tag string, inv channel.Invocation) (any, error) {
	store := c.stores.Get(inv.Session.ProjectRoot)

	if appendMode {
		note := textPayload(payload)
		if note == "" {
			return nil, fmt.Errorf("empty note payload")
		}
		err := store.Mutate(tag, func(td *taskstore.TagData) error {
			t := taskstore.FindTask(td, id)
			if t == nil {
				return fmt.Errorf("task %d not found in tag %s", id, tag)
			}
			t.Details = appendTimestamped(t.Details, note)
			return nil
		})
		if err != nil {
			return nil, err
		}
		inv.Log.Info("appended note to task", "task", id)
		return map[string]any{"task": id, "mode": "append"}, nil
	}

	var proposed taskstore.Task
	if err := decodePayload(payload, &proposed); err != nil {
		return nil, fmt.Errorf("task payload: %w", err)
	}
	if proposed.Title == "" {
		return nil, fmt.Errorf("task payload missing title")
	}

	var warnings []string
	err := store.Mutate(tag, func(td *taskstore.TagData) error {
		t := taskstore.FindTask(td, id)
		if t == nil {
			return fmt.Errorf("task %d not found in tag %s", id, tag)
		}
		final, w := taskstore.ProtectTask(*t, proposed)
		warnings = w
		*t = final
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, w := range warnings {
		inv.Log.Warn(w, "task", id)
	}
	inv.Log.Info("updated task", "task", id)
	return map[string]any{"task": id, "mode": "replace", "warnings": warnings}, nil
}

// appendTimestamped adds a delimited, dated block to existing details.
func appendTimestamped(details, note string) string {
	stamp := time.Now().UTC().Format(time.RFC3339)
	block := fmt.Sprintf("<info added on %s>\n%s\n</info added on %s>", stamp, note, stamp)
	if details == "" {
		return block
	}
	return details + "\n" + block
}
