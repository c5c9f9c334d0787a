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

const updateSubtaskSystem = `You are logging implementation progress on a subtask.
Return plain text only; it will be appended to the subtask's details.`

// shortPromptLimit: prompts at or under this length also stamp the subtask
// description so the one-liner view reflects the update.
const shortPromptLimit = 100

func (c *Commands) updateSubtaskTool() channel.Tool {
	return channel.Tool{
		Name:        "update-subtask",
		Description: "Append timestamped notes to a subtask.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":       map[string]any{"type": "string", "description": "Subtask id as parent.sub, e.g. 5.2."},
				"prompt":   map[string]any{"type": "string", "description": "What to log."},
				"research": map[string]any{"type": "boolean"},
				"tag":      map[string]any{"type": "string"},
			},
			"required": []string{"id", "prompt"},
		},
		Execute: func(ctx context.Context, inv channel.Invocation) (any, error) {
			taskID, subtaskID, hasSub, err := parseItemID(argString(inv.Args, "id"))
			if err != nil {
				return nil, err
			}
			if !hasSub {
				return nil, fmt.Errorf("subtask id must be parent.sub, got %q", argString(inv.Args, "id"))
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
			task := taskstore.FindTask(td, taskID)
			if task == nil {
				return nil, fmt.Errorf("task %d not found in tag %s", taskID, tag)
			}
			sub := taskstore.FindSubtask(task, subtaskID)
			if sub == nil {
				return nil, fmt.Errorf("subtask %d.%d not found", taskID, subtaskID)
			}
			if taskstore.IsCompleted(sub.Status) {
				return nil, fmt.Errorf("subtask %d.%d is %s and cannot be modified", taskID, subtaskID, sub.Status)
			}

			role := c.role(argBool(inv.Args, "research"))
			req, err := c.roles.BuildRequest(role, []provider.Message{
				{Role: "system", Content: updateSubtaskSystem},
				{Role: "user", Content: fmt.Sprintf("Subtask %d.%d: %s\n\nProgress to log: %s",
					taskID, subtaskID, sub.Title, prompt)},
			})
			if err != nil {
				return nil, err
			}

			p, err := c.roles.Provider(role)
			if err != nil {
				return nil, err
			}
			res, err := p.GenerateText(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("update subtask: %w", err)
			}

			if res.Delegated() {
				return delegationSignal(res.Delegation, "update-subtask", role, map[string]any{
					"taskId":     taskID,
					"subtaskId":  subtaskID,
					"userPrompt": prompt,
					"tagInfo":    broker.TagInfo{Tag: tag},
				})
			}

			return c.appendSubtaskDetails(res.Text, taskID, subtaskID, prompt, tag, inv)
		},
	}
}

func (c *Commands) saveSubtaskDetails(_ context.Context, in broker.SaverInput) error {
	taskID, ok := argInt(in.Details.RequestParameters, "taskId")
	if !ok {
		return fmt.Errorf("directive carries no taskId hint")
	}
	subtaskID, ok := argInt(in.Details.RequestParameters, "subtaskId")
	if !ok {
		return fmt.Errorf("directive carries no subtaskId hint")
	}
	prompt := argString(in.Details.RequestParameters, "userPrompt")

	_, err := c.appendSubtaskDetails(in.Output, taskID, subtaskID, prompt, in.TagInfo.Tag, channel.Invocation{
		Args:    in.OriginalArgs,
		Session: in.Session,
		Log:     in.Log,
	})
	return err
}

func (c *Commands) appendSubtaskDetails(payload any, taskID, subtaskID int, prompt, tag string, inv channel.Invocation) (any, error) {
	note := textPayload(payload)
	if note == "" {
		return nil, fmt.Errorf("empty subtask note payload")
	}

	store := c.stores.Get(inv.Session.ProjectRoot)
	skipped := false
	err := store.Mutate(tag, func(td *taskstore.TagData) error {
		task := taskstore.FindTask(td, taskID)
		if task == nil {
			return fmt.Errorf("task %d not found in tag %s", taskID, tag)
		}
		sub := taskstore.FindSubtask(task, subtaskID)
		if sub == nil {
			return fmt.Errorf("subtask %d.%d not found", taskID, subtaskID)
		}
		if taskstore.IsCompleted(sub.Status) {
			inv.Log.Warn("subtask completed since delegation, skipping note", "subtask",
				fmt.Sprintf("%d.%d", taskID, subtaskID))
			skipped = true
			return nil
		}

		sub.Details = appendTimestamped(sub.Details, note)
		if prompt != "" && len(prompt) <= shortPromptLimit {
			sub.Description += fmt.Sprintf(" [Updated: %s]", time.Now().UTC().Format("2006-01-02"))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !skipped {
		inv.Log.Info("appended subtask note", "subtask", fmt.Sprintf("%d.%d", taskID, subtaskID))
	}
	return map[string]any{"subtask": fmt.Sprintf("%d.%d", taskID, subtaskID), "skipped": skipped}, nil
}
