package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/mtzanidakis/taskmaster/internal/broker"
	"github.com/mtzanidakis/taskmaster/internal/channel"
	"github.com/mtzanidakis/taskmaster/internal/provider"
	"github.com/mtzanidakis/taskmaster/internal/taskstore"
)

const updateTasksSystem = `You are revising several development tasks after a direction change.
Return a JSON array with the complete updated task objects, keeping their ids.
Never change subtasks that are done.`

// updateTool is the bulk revision command. The tool is registered as
// "update" but delegates under the command name "update-tasks"; the saver
// table resolves it through that alias.
func (c *Commands) updateTool() channel.Tool {
	return channel.Tool{
		Name:        "update",
		Description: "Update all tasks from a given id onward after a direction change.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"from":     map[string]any{"type": "integer", "description": "First task id to revise."},
				"prompt":   map[string]any{"type": "string", "description": "What changed."},
				"research": map[string]any{"type": "boolean"},
				"tag":      map[string]any{"type": "string"},
			},
			"required": []string{"from", "prompt"},
		},
		Execute: func(ctx context.Context, inv channel.Invocation) (any, error) {
			from, ok := argInt(inv.Args, "from")
			if !ok {
				return nil, fmt.Errorf("from id is required")
			}
			prompt := argString(inv.Args, "prompt")
			if prompt == "" {
				return nil, fmt.Errorf("prompt is required")
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

			var affected []taskstore.Task
			for _, t := range td.Tasks {
				if t.ID >= from && !taskstore.IsCompleted(t.Status) {
					affected = append(affected, t)
				}
			}
			if len(affected) == 0 {
				return nil, fmt.Errorf("no updatable tasks from id %d in tag %s", from, tag)
			}

			var sb strings.Builder
			for _, t := range affected {
				sb.WriteString(textPayload(t))
				sb.WriteByte('\n')
			}

			role := c.role(argBool(inv.Args, "research"))
			req, err := c.roles.BuildRequest(role, []provider.Message{
				{Role: "system", Content: updateTasksSystem},
				{Role: "user", Content: fmt.Sprintf("Change: %s\n\nTasks to revise:\n%s", prompt, sb.String())},
			})
			if err != nil {
				return nil, err
			}
			req.ObjectName = "tasks"

			p, err := c.roles.Provider(role)
			if err != nil {
				return nil, err
			}
			res, err := p.GenerateObject(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("update tasks: %w", err)
			}

			if res.Delegated() {
				return delegationSignal(res.Delegation, "update-tasks", role, map[string]any{
					"fromId":  from,
					"tagInfo": broker.TagInfo{Tag: tag},
				})
			}

			return c.applyBulkUpdate(res.Object, tag, inv)
		},
	}
}

// saveBulkUpdate applies the single-task protection rules to every task in
// the payload. Ids missing from the store are reported, not fatal.
func (c *Commands) saveBulkUpdate(_ context.Context, in broker.SaverInput) error {
	_, err := c.applyBulkUpdate(in.Output, in.TagInfo.Tag, channel.Invocation{
		Args:    in.OriginalArgs,
		Session: in.Session,
		Log:     in.Log,
	})
	return err
}

func (c *Commands) applyBulkUpdate(payload any, tag string, inv channel.Invocation) (any, error) {
	var proposed []taskstore.Task
	if err := decodePayload(payload, &proposed); err != nil {
		var wrapped struct {
			Tasks []taskstore.Task `json:"tasks"`
		}
		if werr := decodePayload(payload, &wrapped); werr != nil {
			return nil, fmt.Errorf("bulk update payload: %w", err)
		}
		proposed = wrapped.Tasks
	}
	if len(proposed) == 0 {
		return nil, fmt.Errorf("bulk update payload contains no tasks")
	}

	store := c.stores.Get(inv.Session.ProjectRoot)
	var updated, missing []int
	var warnings []string
	err := store.Mutate(tag, func(td *taskstore.TagData) error {
		for _, p := range proposed {
			t := taskstore.FindTask(td, p.ID)
			if t == nil {
				missing = append(missing, p.ID)
				continue
			}
			final, w := taskstore.ProtectTask(*t, p)
			warnings = append(warnings, w...)
			*t = final
			updated = append(updated, p.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, w := range warnings {
		inv.Log.Warn(w)
	}
	if len(missing) > 0 {
		inv.Log.Warn("bulk update skipped unknown task ids", "ids", missing)
	}
	inv.Log.Info("bulk update applied", "updated", len(updated), "missing", len(missing))
	return map[string]any{"updated": updated, "missing": missing}, nil
}
